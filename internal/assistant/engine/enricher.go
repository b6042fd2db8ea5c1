package engine

import (
	"context"
	"fmt"
	"time"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/common/logger"
)

// Context source names recorded in RequestContext.Sources.
const (
	SourceRequest         = "request"
	SourceSessionHistory  = "session_history"
	SourceWorkshopProfile = "workshop_profile"
)

// Enricher adds collaborator data to a request context. It must not modify base.
type Enricher interface {
	Enrich(ctx context.Context, base *action.RequestContext) (*action.RequestContext, error)
}

// ContextEnricher pulls the session history and the workshop profile.
// Either store may be nil.
type ContextEnricher struct {
	sessions  SessionStore
	workshops WorkshopStore
	logger    logger.Logger
	now       func() time.Time
}

func NewContextEnricher(sessions SessionStore, workshops WorkshopStore, log logger.Logger) *ContextEnricher {
	return &ContextEnricher{
		sessions:  sessions,
		workshops: workshops,
		logger:    logger.ForComponent(log, "enricher"),
		now:       time.Now,
	}
}

func (e *ContextEnricher) Enrich(ctx context.Context, base *action.RequestContext) (*action.RequestContext, error) {
	rc := base.Clone()
	stamp(rc, e.now())
	rc.AddSource(SourceRequest)

	if e.sessions != nil && rc.SessionID != "" {
		history, err := e.sessions.History(ctx, rc.SessionID)
		if err != nil {
			return nil, fmt.Errorf("session history: %w", err)
		}
		rc.History = history
		rc.AddSource(SourceSessionHistory)
	}

	if e.workshops != nil && rc.WorkshopID != "" {
		profile, err := e.workshops.Profile(ctx, rc.WorkshopID)
		if err != nil {
			return nil, fmt.Errorf("workshop profile: %w", err)
		}
		if profile != nil {
			rc.Workshop = profile
			rc.AddSource(SourceWorkshopProfile)
		}
	}
	return rc, nil
}

func stamp(rc *action.RequestContext, now time.Time) {
	rc.Timestamp = now.UTC()
	if rc.StartTime.IsZero() {
		rc.StartTime = now
	}
}
