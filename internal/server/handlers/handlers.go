package handlers

import (
	"net/http"

	"github.com/cloudzz-dev/cldzchat/internal/server/auth"
	"github.com/cloudzz-dev/cldzchat/internal/server/files"
	"github.com/cloudzz-dev/cldzchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/cldzchat/internal/server/storage"
	"github.com/cloudzz-dev/cldzchat/internal/server/ws"
	"github.com/cloudzz-dev/cldzchat/internal/wsconn"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("handlers")

const userIDKey = "user_id"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Handler struct {
	store   *storage.Store
	auth    *auth.Service
	files   *files.Store
	limiter *ratelimit.RateLimiter
	hub     *ws.Hub
}

func New(store *storage.Store, authSvc *auth.Service, fileStore *files.Store, limiter *ratelimit.RateLimiter, hub *ws.Hub) *Handler {
	return &Handler{
		store:   store,
		auth:    authSvc,
		files:   fileStore,
		limiter: limiter,
		hub:     hub,
	}
}

// Routes registers the REST API, avatar files, the STOMP endpoint and the
// health check on router.
func (h *Handler) Routes(router gin.IRouter) {
	router.GET("/health", HealthCheck)
	router.GET("/ws", h.HandleWebSocket)
	router.GET("/api/files/avatars/:filename", h.ServeAvatar)

	api := router.Group("/api")
	{
		api.POST("/auth/register", h.authLimit(), h.Register)
		api.POST("/auth/login", h.authLimit(), h.Login)
	}

	protected := api.Group("")
	protected.Use(h.AuthMiddleware())
	{
		protected.GET("/user", h.ListUsers)
		protected.GET("/user/search", h.SearchUsers)
		protected.GET("/user/:id", h.GetUser)
		protected.GET("/user/:id/conversations", h.Conversations)
		protected.GET("/message/:senderId/:receiverId", h.Messages)

		protected.GET("/profile/:id", h.GetProfile)
		protected.PUT("/profile/:id", h.selfOnly(), h.UpdateProfile)
		protected.PUT("/profile/:id/password", h.selfOnly(), h.ChangePassword)
		protected.POST("/profile/:id/avatar", h.selfOnly(), h.UploadAvatar)
		protected.DELETE("/profile/:id/avatar", h.selfOnly(), h.DeleteAvatar)
	}
}

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// HandleWebSocket upgrades to a websocket and runs a STOMP session on it.
// Authentication happens in the STOMP CONNECT frame.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	clientIP := ratelimit.GetClientIP(c.Request)

	if !h.limiter.AcquireConnection(clientIP) {
		log.Warningf("rate limited connection from %s", clientIP)
		c.String(http.StatusTooManyRequests, "Too many connections from your IP")
		return
	}
	defer h.limiter.ReleaseConnection(clientIP)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("upgrade error: %v", err)
		return
	}

	h.hub.ServeConn(c.Request.Context(), wsconn.New(conn), clientIP)
}

func (h *Handler) authLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter.CanAuth(ratelimit.GetClientIP(c.Request)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts. Please wait a minute."})
			return
		}
		c.Next()
	}
}

// AuthMiddleware validates the bearer token and stores the caller's id.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
			return
		}

		claims, err := h.auth.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if _, err := h.store.UserByID(c.Request.Context(), claims.UserID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// selfOnly restricts a /profile/:id route to the profile's owner.
func (h *Handler) selfOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param("id") != c.GetString(userIDKey) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func internalError(c *gin.Context, what string, err error) {
	log.Errorf("%s: %v", what, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + what})
}
