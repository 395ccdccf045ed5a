package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/scriptgate/internal/domain/policy"
	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
)

// PermissionRequest grants or refuses a domain.
type PermissionRequest struct {
	Allow *bool `json:"allow" binding:"required"`
}

// ListPermissions lists the user grants of a script
func (h *Handlers) ListPermissions(c *gin.Context) {
	scriptID := c.Param("id")
	if _, ok := h.scripts.Get(scriptID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "script not found"})
		return
	}
	perms := h.permissions.ListPermissions(scriptID)
	if perms == nil {
		perms = []scripts.UserPermission{}
	}
	c.JSON(http.StatusOK, gin.H{"script_id": scriptID, "permissions": perms})
}

// PutPermission records a user decision for a domain
func (h *Handlers) PutPermission(c *gin.Context) {
	scriptID := c.Param("id")
	if _, ok := h.scripts.Get(scriptID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "script not found"})
		return
	}
	domain := policy.NormalizeHost(c.Param("domain"))
	if domain == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid domain"})
		return
	}

	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	perm, err := h.permissions.PutPermission(scriptID, domain, *req.Allow)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, perm)
}

// DeletePermission forgets a user decision
func (h *Handlers) DeletePermission(c *gin.Context) {
	scriptID := c.Param("id")
	domain := policy.NormalizeHost(c.Param("domain"))
	if domain == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid domain"})
		return
	}
	if err := h.permissions.DeletePermission(scriptID, domain); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "script_id": scriptID, "domain": domain})
}
