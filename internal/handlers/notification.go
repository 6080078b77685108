package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fibertrak/fibertrak-backend/internal/middleware"
	"github.com/fibertrak/fibertrak-backend/internal/services"
)

// NotificationHandler serves the request/response side of notifications: the
// durable copies the bus told clients to refetch.
type NotificationHandler struct {
	notificationService services.NotificationService
	defaultLimit        int
}

func NewNotificationHandler(notificationService services.NotificationService, defaultLimit int) *NotificationHandler {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &NotificationHandler{notificationService: notificationService, defaultLimit: defaultLimit}
}

func (nh *NotificationHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = nh.defaultLimit
	}
	notifications, err := nh.notificationService.ListForUser(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (nh *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	count, err := nh.notificationService.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (nh *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ids := make([]uuid.UUID, 0, len(body.IDs))
	for _, raw := range body.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
			return
		}
		ids = append(ids, id)
	}
	if err := nh.notificationService.MarkRead(c.Request.Context(), userID, ids); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
