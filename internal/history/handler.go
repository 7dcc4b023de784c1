package history

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orbit-saas/settings-backend/internal/middleware"
	"github.com/orbit-saas/settings-backend/internal/organizations"
	"github.com/orbit-saas/settings-backend/pkg/queue"
	"github.com/orbit-saas/settings-backend/pkg/response"
)

// Handler handles history and retention HTTP endpoints. The /history/:id
// routes are unscoped in the URL, so the handler resolves the snapshot's
// organization and checks access itself.
type Handler struct {
	svc     *Service
	orgRepo *organizations.Repository
	jobs    *queue.Queue
}

// NewHandler creates a history handler. jobs may be nil when no worker
// queue is configured; cleanup then runs inline only.
func NewHandler(svc *Service, orgRepo *organizations.Repository, jobs *queue.Queue) *Handler {
	return &Handler{svc: svc, orgRepo: orgRepo, jobs: jobs}
}

// List handles GET .../history?limit=&milestones_only=.
func (h *Handler) List(c *gin.Context) {
	orgID := organizations.OrgID(c)
	verticalID := c.Param("vertical")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	milestonesOnly := c.Query("milestones_only") == "true"

	entries, err := h.svc.List(c.Request.Context(), orgID, verticalID, limit, milestonesOnly)
	if err != nil {
		response.Internal(c, "failed to load history")
		return
	}
	response.OK(c, entries)
}

// resolve loads the snapshot named by :id and verifies the caller may edit
// the owning organization's settings.
func (h *Handler) resolve(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid history id")
		return uuid.Nil, false
	}
	snapshot, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "history entry not found")
		} else {
			response.Internal(c, "failed to load history entry")
		}
		return uuid.Nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ok, _ := h.orgRepo.UserCanEditSettings(c.Request.Context(), snapshot.OrganizationID, userID)
	if !ok {
		response.Forbidden(c, "not authorized for this organization")
		return uuid.Nil, false
	}
	return id, true
}

// MilestoneRequest is the body for POST /history/:id/milestone.
type MilestoneRequest struct {
	Name  string `json:"name" binding:"required"`
	Notes string `json:"notes"`
}

// MarkMilestone handles POST /history/:id/milestone.
func (h *Handler) MarkMilestone(c *gin.Context) {
	id, ok := h.resolve(c)
	if !ok {
		return
	}
	var body MilestoneRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "milestone name required")
		return
	}
	entry, err := h.svc.MarkMilestone(c.Request.Context(), id, body.Name, body.Notes)
	if err != nil {
		response.Internal(c, "failed to mark milestone")
		return
	}
	response.OK(c, entry)
}

// Rollback handles POST /history/:id/rollback.
func (h *Handler) Rollback(c *gin.Context) {
	id, ok := h.resolve(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	saved, err := h.svc.Rollback(c.Request.Context(), id, userID)
	if err != nil {
		response.Internal(c, "failed to roll back")
		return
	}
	response.OK(c, saved)
}

// Diff handles GET .../history/:a/diff/:b. The service scopes both
// snapshots to the route's organization and vertical, so ids from another
// tenant come back as not found.
func (h *Handler) Diff(c *gin.Context) {
	aID, err := uuid.Parse(c.Param("a"))
	if err != nil {
		response.BadRequest(c, "invalid history id")
		return
	}
	bID, err := uuid.Parse(c.Param("b"))
	if err != nil {
		response.BadRequest(c, "invalid history id")
		return
	}
	diffs, err := h.svc.Diff(c.Request.Context(), organizations.OrgID(c), c.Param("vertical"), aID, bID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "history entry not found")
			return
		}
		response.Internal(c, "failed to diff snapshots")
		return
	}
	response.OK(c, diffs)
}

// RetentionSummary handles GET /organizations/:id/retention/summary?vertical=.
func (h *Handler) RetentionSummary(c *gin.Context) {
	orgID := organizations.OrgID(c)
	summary, err := h.svc.RetentionSummary(c.Request.Context(), orgID, c.Query("vertical"))
	if err != nil {
		response.Internal(c, "failed to compute retention summary")
		return
	}
	response.OK(c, summary)
}

// RetentionCleanup handles POST /organizations/:id/retention/cleanup?vertical=.
// With async=true the deletion is handed to the worker queue instead of
// running inline.
func (h *Handler) RetentionCleanup(c *gin.Context) {
	orgID := organizations.OrgID(c)
	verticalID := c.Query("vertical")

	if c.Query("async") == "true" && h.jobs != nil {
		payload := queue.RetentionCleanupPayload{OrganizationID: &orgID, VerticalID: verticalID}
		if err := h.jobs.EnqueueRetentionCleanup(c.Request.Context(), payload); err != nil {
			response.Internal(c, "failed to enqueue cleanup")
			return
		}
		response.OK(c, gin.H{"enqueued": true})
		return
	}

	results, err := h.svc.Cleanup(c.Request.Context(), orgID, verticalID)
	if err != nil {
		response.Internal(c, "failed to run cleanup")
		return
	}
	response.OK(c, results)
}
