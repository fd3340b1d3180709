package handlers

import (
	"errors"
	"net/http"

	"github.com/cloudzz-dev/cldzchat/internal/models"
	"github.com/cloudzz-dev/cldzchat/internal/server/auth"
	"github.com/cloudzz-dev/cldzchat/internal/server/files"
	"github.com/cloudzz-dev/cldzchat/internal/server/storage"
	"github.com/gin-gonic/gin"
)

var uploadErrors = map[error]string{
	files.ErrEmptyFile: "Cannot store empty file",
	files.ErrNotImage:  "Only image files are allowed",
	files.ErrTooLarge:  "File size must be less than 5MB",
}

// loadUser fetches the :id user or writes the error response.
func (h *Handler) loadUser(c *gin.Context) (*storage.User, bool) {
	user, err := h.store.UserByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return nil, false
	}
	if err != nil {
		internalError(c, "get user", err)
		return nil, false
	}
	return user, true
}

func (h *Handler) GetProfile(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user.User)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req models.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.store.UpdateProfile(c.Request.Context(), c.Param("id"), req)
	switch {
	case errors.Is(err, storage.ErrUsernameTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username is already taken"})
	case errors.Is(err, storage.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is already in use"})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case err != nil:
		internalError(c, "update profile", err)
	default:
		c.JSON(http.StatusOK, user.User)
	}
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req models.PasswordChange
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Current password is incorrect"})
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password must be at least 6 characters"})
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		internalError(c, "change password", err)
		return
	}
	if err := h.store.SetPassword(c.Request.Context(), user.ID, hash); err != nil {
		internalError(c, "change password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

// UploadAvatar replaces the avatar with the multipart "file" field.
func (h *Handler) UploadAvatar(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	url, err := h.files.StoreAvatar(user.ID, header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		for target, msg := range uploadErrors {
			if errors.Is(err, target) {
				c.JSON(http.StatusBadRequest, gin.H{"error": msg})
				return
			}
		}
		log.Errorf("avatar upload for %s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload avatar"})
		return
	}

	if err := h.store.SetAvatar(c.Request.Context(), user.ID, url); err != nil {
		h.files.DeleteAvatar(url)
		internalError(c, "update avatar", err)
		return
	}
	h.files.DeleteAvatar(user.AvatarURL)

	user.AvatarURL = url
	c.JSON(http.StatusOK, user.User)
}

func (h *Handler) DeleteAvatar(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	if user.AvatarURL != "" {
		if err := h.store.SetAvatar(c.Request.Context(), user.ID, ""); err != nil {
			internalError(c, "delete avatar", err)
			return
		}
		h.files.DeleteAvatar(user.AvatarURL)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Avatar deleted successfully"})
}

// ServeAvatar serves a stored avatar with a one day cache lifetime.
func (h *Handler) ServeAvatar(c *gin.Context) {
	path, err := h.files.AvatarPath(c.Param("filename"))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	c.Header("Cache-Control", "max-age=86400")
	c.File(path)
}
