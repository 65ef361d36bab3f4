package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"pairchat/internal/chat"
	"pairchat/internal/middleware"
	"pairchat/internal/store"
)

type UsersHandler struct {
	Store store.UserStore
	Chat  *chat.Service
}

func (h *UsersHandler) Search(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusOK, gin.H{"users": []any{}})
		return
	}

	users, err := h.Store.SearchUsers(c.Request.Context(), query, userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable"})
		return
	}

	resp := make([]gin.H, 0, len(users))
	for _, u := range users {
		resp = append(resp, gin.H{"id": u.ID, "username": u.Username})
	}
	c.JSON(http.StatusOK, gin.H{"users": resp})
}

func (h *UsersHandler) ListContacts(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	summaries, err := h.Chat.ContactSummaries(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrStorage) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "List contacts failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contacts": summaries})
}

type addContactBody struct {
	ContactID uint `json:"contact_id"`
}

func (h *UsersHandler) AddContact(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body addContactBody
	if err := c.ShouldBindJSON(&body); err != nil || body.ContactID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.ContactID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot add yourself"})
		return
	}

	contact, err := h.Store.UserByID(c.Request.Context(), body.ContactID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable"})
		return
	}
	if contact == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if err := h.Store.AddContact(c.Request.Context(), userID, body.ContactID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contact": gin.H{"id": contact.ID, "username": contact.Username}})
}
