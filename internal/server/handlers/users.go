package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/cloudzz-dev/cldzchat/internal/server/storage"
	"github.com/gin-gonic/gin"
)

const defaultSearchLimit = 20

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		internalError(c, "list users", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.store.UserByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		internalError(c, "get user", err)
		return
	}
	c.JSON(http.StatusOK, user.User)
}

// SearchUsers matches ?query= against username and name, leaving out
// ?currentUserId= (the caller when absent).
func (h *Handler) SearchUsers(c *gin.Context) {
	exclude := c.Query("currentUserId")
	if exclude == "" {
		exclude = c.GetString(userIDKey)
	}
	limit := defaultSearchLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	users, err := h.store.SearchUsers(c.Request.Context(), c.Query("query"), exclude, limit)
	if err != nil {
		internalError(c, "search users", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// Conversations lists the caller's chat partners, most recent first.
func (h *Handler) Conversations(c *gin.Context) {
	userID := c.Param("id")
	if userID != c.GetString(userIDKey) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	convs, err := h.store.Conversations(c.Request.Context(), userID)
	if err != nil {
		internalError(c, "list conversations", err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

// Messages returns the history between two users; the caller must be one
// of them.
func (h *Handler) Messages(c *gin.Context) {
	self := c.GetString(userIDKey)
	sender, receiver := c.Param("senderId"), c.Param("receiverId")
	if self != sender && self != receiver {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	peer := receiver
	if self == receiver {
		peer = sender
	}
	if _, err := h.store.UserByID(c.Request.Context(), peer); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		internalError(c, "get user", err)
		return
	}

	msgs, err := h.store.Messages(c.Request.Context(), sender, receiver)
	if err != nil {
		internalError(c, "load messages", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}
