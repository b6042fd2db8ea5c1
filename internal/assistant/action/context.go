package action

import (
	"time"

	"workshop-assistant/internal/common/errors"
	"workshop-assistant/internal/models"

	"github.com/google/uuid"
)

// User is the authenticated workshop staff member behind a request.
type User struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

func (u *User) HasPermission(permission string) bool {
	if u == nil {
		return false
	}
	for _, p := range u.Permissions {
		if p == permission || p == "admin" {
			return true
		}
	}
	return false
}

// RequestContext is owned by a single processMessage call. Only the executor
// and the context enricher write to it.
type RequestContext struct {
	RequestID  string                  `json:"requestId"`
	SessionID  string                  `json:"sessionId,omitempty"`
	WorkshopID string                  `json:"workshopId,omitempty"`
	User       *User                   `json:"user,omitempty"`
	Sources    []string                `json:"sources"`
	Timestamp  time.Time               `json:"timestamp"`
	StartTime  time.Time               `json:"startTime"`
	History    []models.Turn           `json:"history,omitempty"`
	Workshop   *models.WorkshopProfile `json:"workshop,omitempty"`
	Error      *errors.StandardError   `json:"error,omitempty"`

	resolved map[string]string
}

func NewRequestContext(sessionID, workshopID string, user *User) *RequestContext {
	return &RequestContext{
		RequestID:  uuid.NewString(),
		SessionID:  sessionID,
		WorkshopID: workshopID,
		User:       user,
	}
}

// AddSource records a context provider once; the list only grows.
func (c *RequestContext) AddSource(source string) {
	for _, s := range c.Sources {
		if s == source {
			return
		}
	}
	c.Sources = append(c.Sources, source)
}

// Resolve stores an identifier discovered mid-plan.
func (c *RequestContext) Resolve(field, value string) {
	if c.resolved == nil {
		c.resolved = make(map[string]string)
	}
	c.resolved[field] = value
}

func (c *RequestContext) Resolved(field string) (string, bool) {
	v, ok := c.resolved[field]
	return v, ok
}

// Clone returns a copy safe to enrich without touching the original.
func (c *RequestContext) Clone() *RequestContext {
	out := *c
	out.Sources = append([]string(nil), c.Sources...)
	out.History = append([]models.Turn(nil), c.History...)
	if c.resolved != nil {
		out.resolved = make(map[string]string, len(c.resolved))
		for k, v := range c.resolved {
			out.resolved[k] = v
		}
	}
	return &out
}
