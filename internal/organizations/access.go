package organizations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orbit-saas/settings-backend/internal/middleware"
	"github.com/orbit-saas/settings-backend/pkg/response"
)

// ContextOrganizationID is the context key for the resolved organization ID.
const ContextOrganizationID = "organization_id"

// OrgID returns the organization ID resolved by an access middleware.
func OrgID(c *gin.Context) uuid.UUID {
	return c.MustGet(ContextOrganizationID).(uuid.UUID)
}

// RequireMember validates that the caller belongs to the organization in the
// :id route param. Call after JWT.
func RequireMember(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid organization id")
			c.Abort()
			return
		}
		userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
		ok, _ := repo.UserIsMember(c.Request.Context(), orgID, userID)
		if !ok {
			response.Forbidden(c, "not authorized for this organization")
			c.Abort()
			return
		}
		c.Set(ContextOrganizationID, orgID)
		c.Next()
	}
}

// RequireSettingsEditor validates that the caller may change the
// organization's settings (owner or admin). Call after JWT.
func RequireSettingsEditor(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid organization id")
			c.Abort()
			return
		}
		userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
		ok, _ := repo.UserCanEditSettings(c.Request.Context(), orgID, userID)
		if !ok {
			response.Forbidden(c, "settings access requires owner or admin role")
			c.Abort()
			return
		}
		c.Set(ContextOrganizationID, orgID)
		c.Next()
	}
}
