package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/assistant/planner"
	"workshop-assistant/internal/common/database"
	"workshop-assistant/internal/common/logger"
	"workshop-assistant/internal/models"
)

// Record is everything known about one processed message.
type Record struct {
	Utterance string
	Decision  *planner.Decision
	Outcomes  []action.Outcome
	Context   *action.RequestContext
	Success   bool
}

// Recorder persists interactions. Record must not block the caller and its
// failures never reach the user.
type Recorder interface {
	Record(ctx context.Context, rec Record)
}

type InteractionRecorder struct {
	db       *database.PostgresClient
	sessions SessionStore
	timeout  time.Duration
	logger   logger.Logger
	wg       sync.WaitGroup
}

func NewInteractionRecorder(db *database.PostgresClient, sessions SessionStore, timeout time.Duration, log logger.Logger) *InteractionRecorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &InteractionRecorder{
		db:       db,
		sessions: sessions,
		timeout:  timeout,
		logger:   logger.ForComponent(log, "recorder"),
	}
}

// Record saves rec in the background. The request's cancellation does not
// abort the write.
func (r *InteractionRecorder) Record(ctx context.Context, rec Record) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		if err := r.Save(ctx, rec); err != nil {
			requestID := ""
			if rec.Context != nil {
				requestID = rec.Context.RequestID
			}
			r.logger.Warn("failed to record interaction", map[string]interface{}{
				"requestId": requestID,
				"error":     err.Error(),
			})
		}
	}()
}

// Wait blocks until pending writes finish.
func (r *InteractionRecorder) Wait() {
	r.wg.Wait()
}

const insertInteractionQuery = `
	INSERT INTO assistant_interactions
		(id, session_id, workshop_id, user_id, message, intent, confidence, actions, response_text, success, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

// Save writes the interaction row, then appends the exchange to the session.
func (r *InteractionRecorder) Save(ctx context.Context, rec Record) error {
	interaction, err := toInteraction(rec, time.Now().UTC())
	if err != nil {
		return err
	}

	if r.db != nil {
		_, err := r.db.DB.ExecContext(ctx, insertInteractionQuery,
			interaction.ID,
			interaction.SessionID,
			interaction.WorkshopID,
			interaction.UserID,
			interaction.Message,
			interaction.Intent,
			interaction.Confidence,
			interaction.Actions,
			interaction.ResponseText,
			interaction.Success,
			interaction.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert interaction: %w", err)
		}
	}

	if r.sessions != nil && interaction.SessionID != "" {
		turns := []models.Turn{
			{Role: "user", Content: interaction.Message, Intent: interaction.Intent, Timestamp: interaction.CreatedAt},
			{Role: "assistant", Content: interaction.ResponseText, Timestamp: interaction.CreatedAt},
		}
		if err := r.sessions.Append(ctx, interaction.SessionID, turns...); err != nil {
			return fmt.Errorf("append session: %w", err)
		}
	}
	return nil
}

func toInteraction(rec Record, now time.Time) (*models.Interaction, error) {
	outcomes := rec.Outcomes
	if outcomes == nil {
		outcomes = []action.Outcome{}
	}
	actions, err := json.Marshal(outcomes)
	if err != nil {
		return nil, fmt.Errorf("marshal outcomes: %w", err)
	}

	i := &models.Interaction{
		ID:        uuid.NewString(),
		Message:   rec.Utterance,
		Actions:   actions,
		Success:   rec.Success,
		CreatedAt: now,
	}
	if rc := rec.Context; rc != nil {
		i.SessionID = rc.SessionID
		i.WorkshopID = rc.WorkshopID
		if rc.User != nil {
			i.UserID = rc.User.ID
		}
	}
	if d := rec.Decision; d != nil {
		i.Intent = string(d.Intent.Type)
		i.Confidence = d.Intent.Confidence
		i.ResponseText = d.ResponseText
	}
	return i, nil
}
