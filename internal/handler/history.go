package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"pairchat/internal/chat"
	"pairchat/internal/middleware"
	"pairchat/internal/store"
)

type HistoryHandler struct {
	Chat *chat.Service
}

// Get returns the caller's full conversation with the user in the path.
// Fetching marks messages addressed to the caller as read.
func (h *HistoryHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	otherID64, err := strconv.ParseUint(c.Param("userID"), 10, 64)
	if err != nil || otherID64 == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	entries, err := h.Chat.History(c.Request.Context(), userID, uint(otherID64))
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No access"})
		case errors.Is(err, chat.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		case errors.Is(err, store.ErrStorage):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Load history failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": entries})
}
