package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/scriptgate/internal/broker"
	"github.com/GriffinCanCode/scriptgate/internal/providers/notify"
)

// ListSessions lists open channels
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := []string{}
	if h.sessions != nil {
		sessions = h.sessions.List()
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ListMenu lists the menu commands registered on a session
func (h *Handlers) ListMenu(c *gin.Context) {
	sessionID := c.Param("id")
	if h.sessions != nil && !h.sessions.Has(sessionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"commands":   h.broker.Menus(sessionID),
	})
}

// TriggerMenu runs a menu command in its session
func (h *Handlers) TriggerMenu(c *gin.Context) {
	sessionID, key := c.Param("id"), c.Param("key")
	if err := h.broker.TriggerMenu(sessionID, key); err != nil {
		if errors.Is(err, broker.ErrMenuNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "session_id": sessionID, "key": key})
}

// ListNotifications returns the notification history, newest last
func (h *Handlers) ListNotifications(c *gin.Context) {
	var history []notify.Notification
	if h.notifications != nil {
		history = h.notifications.History()
	}
	if history == nil {
		history = []notify.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": history})
}

// DismissNotification removes one notification
func (h *Handlers) DismissNotification(c *gin.Context) {
	if h.notifications == nil || !h.notifications.Dismiss(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
