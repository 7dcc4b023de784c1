package assignments

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orbit-saas/settings-backend/internal/customizations"
	"github.com/orbit-saas/settings-backend/internal/merger"
	"github.com/orbit-saas/settings-backend/internal/middleware"
	"github.com/orbit-saas/settings-backend/internal/models"
	"github.com/orbit-saas/settings-backend/internal/organizations"
	"github.com/orbit-saas/settings-backend/internal/registry"
	"github.com/orbit-saas/settings-backend/pkg/response"
)

// Handler handles the department section-assignment HTTP surface. All
// routes operate on the caller's editing session (X-Session-ID).
type Handler struct {
	manager *Manager
	reg     *registry.Registry
	custom  *customizations.Service
}

// NewHandler creates an assignments handler.
func NewHandler(manager *Manager, reg *registry.Registry, custom *customizations.Service) *Handler {
	return &Handler{manager: manager, reg: reg, custom: custom}
}

// SectionsView is the response body for assignment reads and mutations.
type SectionsView struct {
	State     State                       `json:"state"`
	UndoDepth int                         `json:"undo_depth"`
	Sections  models.SectionedDepartments `json:"sections"`
	Labels    map[models.SectionID]string `json:"section_labels"`
}

func (h *Handler) reconciler(c *gin.Context) (*Reconciler, *registry.Vertical, bool) {
	vertical, err := h.reg.Get(c.Param("vertical"))
	if err != nil {
		response.NotFound(c, "unknown vertical")
		return nil, nil, false
	}
	orgID := organizations.OrgID(c)
	sessionID := middleware.SessionID(c)
	rec, err := h.manager.Get(c.Request.Context(), orgID, vertical.ID, sessionID)
	if err != nil {
		response.Internal(c, "failed to load assignments")
		return nil, nil, false
	}
	return rec, vertical, true
}

// view snapshots the reconciler into a response, layering the saved
// department label overrides onto the merged sections.
func (h *Handler) view(c *gin.Context, rec *Reconciler, vertical *registry.Vertical) SectionsView {
	sections := rec.Sections()
	if cfg, _, err := h.custom.Effective(c.Request.Context(), rec.orgID, vertical.ID); err == nil {
		sections = merger.ApplyDepartmentConfig(sections, cfg.Department)
	}
	labels := make(map[models.SectionID]string, len(models.Sections))
	for _, s := range models.Sections {
		labels[s] = vertical.SectionLabel(s)
	}
	return SectionsView{
		State:     rec.State(),
		UndoDepth: rec.UndoDepth(),
		Sections:  sections,
		Labels:    labels,
	}
}

func (h *Handler) respond(c *gin.Context, rec *Reconciler, vertical *registry.Vertical, err error) {
	switch {
	case err == nil:
		response.OK(c, h.view(c, rec, vertical))
	case errors.Is(err, ErrFallback), errors.Is(err, ErrSchemaUnavailable):
		c.JSON(http.StatusServiceUnavailable, response.Body{
			Success: false,
			Error:   "assignment storage unavailable",
			Data:    h.view(c, rec, vertical),
		})
	case errors.Is(err, ErrBadGesture):
		response.Conflict(c, err.Error())
	default:
		response.Internal(c, "assignment operation failed")
	}
}

// List handles GET .../departments.
func (h *Handler) List(c *gin.Context) {
	rec, vertical, ok := h.reconciler(c)
	if !ok {
		return
	}
	response.OK(c, h.view(c, rec, vertical))
}

// Reload handles POST .../departments/reload.
func (h *Handler) Reload(c *gin.Context) {
	rec, vertical, ok := h.reconciler(c)
	if !ok {
		return
	}
	h.respond(c, rec, vertical, rec.Reload(c.Request.Context()))
}

// CheckAgain handles POST .../departments/check-again. Re-probes storage
// from fallback mode; a no-op in any other state.
func (h *Handler) CheckAgain(c *gin.Context) {
	rec, vertical, ok := h.reconciler(c)
	if !ok {
		return
	}
	_ = rec.CheckAgain(c.Request.Context())
	response.OK(c, h.view(c, rec, vertical))
}

// DragRequest is the body for POST .../departments/drag.
type DragRequest struct {
	DepartmentID string `json:"department_id" binding:"required"`
}

// BeginDrag handles POST .../departments/drag.
func (h *Handler) BeginDrag(c *gin.Context) {
	rec, vertical, ok := h.reconciler(c)
	if !ok {
		return
	}
	var body DragRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "department_id required")
		return
	}
	h.respond(c, rec, vertical, rec.BeginDrag(body.DepartmentID))
}

// DropRequest is the body for POST .../departments/drop. Exactly one of
// target_section or target_department should be set; neither means the
// drop landed outside any drop zone and the gesture is abandoned.
type DropRequest struct {
	TargetSection    *models.SectionID `json:"target_section"`
	TargetDepartment *string           `json:"target_department"`
}

// Drop handles POST .../departments/drop.
func (h *Handler) Drop(c *gin.Context) {
	rec, vertical, ok := h.reconciler(c)
	if !ok {
		return
	}
	var body DropRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid drop target")
		return
	}
	if body.TargetSection != nil && !models.ValidSection(*body.TargetSection) {
		response.BadRequest(c, "unknown target section")
		return
	}
	target := DropTarget{SectionID: body.TargetSection, DepartmentID: body.TargetDepartment}
	h.respond(c, rec, vertical, rec.Drop(c.Request.Context(), target))
}

// CancelDrag handles POST .../departments/cancel.
func (h *Handler) CancelDrag(c *gin.Context) {
	rec, vertical, ok := h.reconciler(c)
	if !ok {
		return
	}
	rec.CancelDrag()
	response.OK(c, h.view(c, rec, vertical))
}

// Undo handles POST .../departments/undo.
func (h *Handler) Undo(c *gin.Context) {
	rec, vertical, ok := h.reconciler(c)
	if !ok {
		return
	}
	h.respond(c, rec, vertical, rec.Undo(c.Request.Context()))
}

// VisibilityRequest is the body for PATCH .../departments/:dept/visibility.
type VisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// SetVisibility handles PATCH .../departments/:dept/visibility.
func (h *Handler) SetVisibility(c *gin.Context) {
	rec, vertical, ok := h.reconciler(c)
	if !ok {
		return
	}
	var body VisibilityRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Visible == nil {
		response.BadRequest(c, "visible required")
		return
	}
	deptID := c.Param("dept")
	if vertical.Department(deptID) == nil {
		response.NotFound(c, "unknown department")
		return
	}
	h.respond(c, rec, vertical, rec.SetVisibility(c.Request.Context(), deptID, *body.Visible))
}

// ResetRequest is the body for POST .../departments/reset. The confirm
// flag guards the bulk delete; without it the call is rejected.
type ResetRequest struct {
	Confirm bool `json:"confirm"`
}

// Reset handles POST .../departments/reset.
func (h *Handler) Reset(c *gin.Context) {
	rec, vertical, ok := h.reconciler(c)
	if !ok {
		return
	}
	var body ResetRequest
	if err := c.ShouldBindJSON(&body); err != nil || !body.Confirm {
		response.BadRequest(c, "reset requires confirm: true")
		return
	}
	h.respond(c, rec, vertical, rec.Reset(c.Request.Context()))
}
