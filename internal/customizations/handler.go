package customizations

import (
	"bytes"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbit-saas/settings-backend/internal/middleware"
	"github.com/orbit-saas/settings-backend/internal/models"
	"github.com/orbit-saas/settings-backend/internal/organizations"
	"github.com/orbit-saas/settings-backend/pkg/response"
	"github.com/orbit-saas/settings-backend/pkg/storage"
)

// Notifier publishes save events to connected sessions.
type Notifier interface {
	CustomizationSaved(orgID uuid.UUID, verticalID string, originSession uuid.UUID, version int)
}

// Handler handles customization HTTP endpoints.
type Handler struct {
	svc      *Service
	store    *storage.S3
	notifier Notifier
	logger   *zap.Logger
}

// NewHandler creates a customizations handler. store and notifier may be
// nil when S3 or websockets are not configured.
func NewHandler(svc *Service, store *storage.S3, notifier Notifier, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, store: store, notifier: notifier, logger: logger}
}

func (h *Handler) scope(c *gin.Context) (orgID uuid.UUID, verticalID string, sessionID uuid.UUID) {
	return organizations.OrgID(c), c.Param("vertical"), middleware.SessionID(c)
}

// EffectiveResponse is the body for GET .../customization.
type EffectiveResponse struct {
	Config  models.ConfigBlocks `json:"config"`
	Version int                 `json:"version"`
	Saved   bool                `json:"saved"`
}

// GetEffective handles GET .../customization: vertical defaults layered
// with the active saved customization.
func (h *Handler) GetEffective(c *gin.Context) {
	orgID, verticalID, _ := h.scope(c)
	cfg, active, err := h.svc.Effective(c.Request.Context(), orgID, verticalID)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	resp := EffectiveResponse{Config: cfg}
	if active != nil {
		resp.Version = active.Version
		resp.Saved = true
	}
	response.OK(c, resp)
}

// GetDraft handles GET .../draft.
func (h *Handler) GetDraft(c *gin.Context) {
	orgID, verticalID, sessionID := h.scope(c)
	draft, err := h.svc.GetDraft(c.Request.Context(), orgID, verticalID, sessionID)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.OK(c, draft)
}

// PatchDraft handles PATCH .../draft with a per-block partial body.
func (h *Handler) PatchDraft(c *gin.Context) {
	orgID, verticalID, sessionID := h.scope(c)
	var patch BlockPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid patch body")
		return
	}
	draft, err := h.svc.PatchDraft(c.Request.Context(), orgID, verticalID, sessionID, patch)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.OK(c, draft)
}

// DiscardDraft handles DELETE .../draft.
func (h *Handler) DiscardDraft(c *gin.Context) {
	orgID, verticalID, sessionID := h.scope(c)
	if err := h.svc.DiscardDraft(c.Request.Context(), orgID, verticalID, sessionID); err != nil {
		response.Internal(c, "failed to discard draft")
		return
	}
	response.NoContent(c)
}

// SaveRequest is the body for POST .../customization/save.
type SaveRequest struct {
	Description string `json:"description"`
	Note        string `json:"note"`
}

// Save handles POST .../customization/save.
func (h *Handler) Save(c *gin.Context) {
	orgID, verticalID, sessionID := h.scope(c)
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body SaveRequest
	_ = c.ShouldBindJSON(&body) // both fields optional

	saved, err := h.svc.Save(c.Request.Context(), orgID, verticalID, sessionID, userID, body.Description, body.Note)
	if err != nil {
		if errors.Is(err, ErrNothingToSave) {
			response.Conflict(c, err.Error())
			return
		}
		response.Internal(c, "failed to save customization")
		return
	}
	if h.notifier != nil {
		h.notifier.CustomizationSaved(orgID, verticalID, sessionID, saved.Version)
	}
	response.OK(c, saved)
}

// ResetRequest is the body for POST .../customization/reset.
type ResetRequest struct {
	Confirm bool `json:"confirm"`
}

// Reset handles POST .../customization/reset: deactivate the saved
// customization so the vertical defaults apply again. Destructive for the
// active state (history survives), so it is confirm-gated.
func (h *Handler) Reset(c *gin.Context) {
	orgID, verticalID, sessionID := h.scope(c)
	var body ResetRequest
	if err := c.ShouldBindJSON(&body); err != nil || !body.Confirm {
		response.BadRequest(c, "reset requires confirm=true")
		return
	}
	if err := h.svc.ResetToDefaults(c.Request.Context(), orgID, verticalID, sessionID); err != nil {
		response.Internal(c, "failed to reset customization")
		return
	}
	if h.notifier != nil {
		h.notifier.CustomizationSaved(orgID, verticalID, sessionID, 0)
	}
	response.NoContent(c)
}

// UploadLogo handles POST .../logo (multipart field "logo").
func (h *Handler) UploadLogo(c *gin.Context) {
	if h.store == nil {
		response.ServiceUnavailable(c, "asset storage not configured")
		return
	}
	orgID, verticalID, sessionID := h.scope(c)

	file, header, err := c.Request.FormFile("logo")
	if err != nil {
		response.BadRequest(c, "multipart field 'logo' required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, storage.MaxLogoSize+1))
	if err != nil {
		response.BadRequest(c, "failed to read upload")
		return
	}

	v, err := storage.ValidateLogo(header.Header.Get("Content-Type"), data)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	key := storage.LogoKey(orgID.String(), v.Ext)
	url, err := h.store.Upload(c.Request.Context(), key, v.ContentType, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		h.logger.Error("logo upload failed", zap.Error(err))
		response.Internal(c, "failed to store logo")
		return
	}

	draft, oldKey, err := h.svc.SetLogo(c.Request.Context(), orgID, verticalID, sessionID, url, key)
	if err != nil {
		response.Internal(c, "failed to update draft")
		return
	}
	if oldKey != "" && oldKey != key {
		if err := h.store.DeleteObject(c.Request.Context(), oldKey); err != nil {
			h.logger.Warn("stale logo cleanup failed", zap.String("key", oldKey), zap.Error(err))
		}
	}
	if v.Warning != "" {
		response.OKWarning(c, draft, v.Warning)
		return
	}
	response.OK(c, draft)
}

// DeleteLogo handles DELETE .../logo.
func (h *Handler) DeleteLogo(c *gin.Context) {
	orgID, verticalID, sessionID := h.scope(c)
	draft, oldKey, err := h.svc.ClearLogo(c.Request.Context(), orgID, verticalID, sessionID)
	if err != nil {
		response.Internal(c, "failed to update draft")
		return
	}
	if oldKey != "" && h.store != nil {
		if err := h.store.DeleteObject(c.Request.Context(), oldKey); err != nil {
			h.logger.Warn("logo delete failed", zap.String("key", oldKey), zap.Error(err))
		}
	}
	response.OK(c, draft)
}
