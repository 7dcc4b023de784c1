package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextSessionID is the key for the editing session ID in gin context.
const ContextSessionID = "session_id"

// Session reads the X-Session-ID header identifying the caller's editing
// session. A missing or malformed header yields a fresh session ID so
// draft and undo state stay isolated per request stream.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader("X-Session-ID"))
		if err != nil {
			id = uuid.New()
		}
		c.Set(ContextSessionID, id)
		c.Next()
	}
}

// SessionID returns the editing session ID set by Session.
func SessionID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ContextSessionID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
