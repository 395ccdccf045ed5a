package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
)

// ScriptRequest carries userscript source code.
type ScriptRequest struct {
	Code string `json:"code" binding:"required"`
}

// EnabledRequest toggles a script.
type EnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// MatchRequest asks which scripts run on a page.
type MatchRequest struct {
	URL string `json:"url" binding:"required"`
}

// ScriptSummary is the list view of a script.
type ScriptSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Namespace    string    `json:"namespace,omitempty"`
	Version      string    `json:"version"`
	Enabled      bool      `json:"enabled"`
	Hash         string    `json:"hash"`
	LastModified time.Time `json:"lastModified"`
}

func summarize(list []*scripts.UserScript) []ScriptSummary {
	out := make([]ScriptSummary, 0, len(list))
	for _, s := range list {
		out = append(out, ScriptSummary{
			ID:           s.ID,
			Name:         s.Metadata.Name,
			Namespace:    s.Metadata.Namespace,
			Version:      s.Metadata.Version,
			Enabled:      s.Enabled,
			Hash:         s.Hash,
			LastModified: s.LastModified,
		})
	}
	return out
}

// ListScripts lists installed scripts
func (h *Handlers) ListScripts(c *gin.Context) {
	list := h.scripts.List()
	c.JSON(http.StatusOK, gin.H{
		"scripts": summarize(list),
		"count":   len(list),
	})
}

// InstallScript parses and installs a script
func (h *Handlers) InstallScript(c *gin.Context) {
	var req ScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.scripts.Install(c.Request.Context(), req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GetScript returns one script with its code
func (h *Handlers) GetScript(c *gin.Context) {
	script, ok := h.scripts.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "script not found"})
		return
	}
	c.JSON(http.StatusOK, script)
}

// UpdateScript replaces the code of a script
func (h *Handlers) UpdateScript(c *gin.Context) {
	var req ScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.scripts.Update(c.Request.Context(), c.Param("id"), req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteScript removes a script with its values and permissions
func (h *Handlers) DeleteScript(c *gin.Context) {
	scriptID := c.Param("id")
	if err := h.scripts.Delete(c.Request.Context(), scriptID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "script_id": scriptID})
}

// SetEnabled enables or disables a script
func (h *Handlers) SetEnabled(c *gin.Context) {
	var req EnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	script, err := h.scripts.SetEnabled(c.Request.Context(), c.Param("id"), *req.Enabled)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"script_id": script.ID, "enabled": script.Enabled})
}

// CheckUpdates installs newer versions from each script's update URL
func (h *Handlers) CheckUpdates(c *gin.Context) {
	if h.updates == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "update checks are not configured"})
		return
	}
	updated := h.scripts.CheckForUpdates(c.Request.Context(), h.updates)
	if updated == nil {
		updated = []*scripts.SaveResult{}
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated, "count": len(updated)})
}

// Match lists the enabled scripts that run on a URL
func (h *Handlers) Match(c *gin.Context) {
	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	list := h.scripts.ScriptsFor(req.URL)
	c.JSON(http.StatusOK, gin.H{
		"url":     req.URL,
		"scripts": summarize(list),
	})
}
