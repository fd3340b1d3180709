package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cloudzz-dev/cldzchat/internal/models"
	"github.com/cloudzz-dev/cldzchat/internal/server/auth"
	"github.com/cloudzz-dev/cldzchat/internal/server/storage"
	"github.com/gin-gonic/gin"
)

const minPasswordLength = 6

// Register creates an account and signs the caller in.
func (h *Handler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Username == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "All fields are required"})
		return
	}
	if len(req.Password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 6 characters"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		internalError(c, "register user", err)
		return
	}

	user := &storage.User{
		User:         models.User{Name: req.Name, Username: req.Username, Email: req.Email},
		PasswordHash: hash,
	}
	switch err := h.store.CreateUser(c.Request.Context(), user); {
	case errors.Is(err, storage.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already exists"})
		return
	case errors.Is(err, storage.ErrUsernameTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username already exists"})
		return
	case err != nil:
		internalError(c, "register user", err)
		return
	}

	h.respondWithToken(c, user)
}

// Login exchanges email and password for a token.
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.store.UserByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		internalError(c, "query user", err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	h.respondWithToken(c, user)
}

func (h *Handler) respondWithToken(c *gin.Context, user *storage.User) {
	token, err := h.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		internalError(c, "generate token", err)
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{
		ID:       user.ID,
		Name:     user.Name,
		Username: user.Username,
		Email:    user.Email,
		Token:    token,
	})
}
