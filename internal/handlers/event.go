package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fibertrak/fibertrak-backend/internal/realtime"
	"github.com/fibertrak/fibertrak-backend/internal/services"
)

// EventHandler is the HTTP counterpart of the socket's realtime_event
// passthrough: internal producers (import jobs, back-office tools) post an
// entity change here and it fans out to the project room.
type EventHandler struct {
	publisher services.RealtimePublisher
}

func NewEventHandler(publisher services.RealtimePublisher) *EventHandler {
	return &EventHandler{publisher: publisher}
}

func (eh *EventHandler) Publish(c *gin.Context) {
	var body struct {
		EntityType   string `json:"entity_type" binding:"required"`
		EntityID     string `json:"entity_id"`
		Action       string `json:"action"`
		ProjectID    string `json:"project_id" binding:"required"`
		TargetUserID string `json:"target_user_id"`
		Status       string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	projectID, err := uuid.Parse(body.ProjectID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	eh.publisher.EntityChanged(c.Request.Context(), projectID, realtime.RealtimeUpdatePayload{
		EntityType:   body.EntityType,
		EntityID:     body.EntityID,
		Action:       body.Action,
		TargetUserID: body.TargetUserID,
		Status:       body.Status,
	})
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}
