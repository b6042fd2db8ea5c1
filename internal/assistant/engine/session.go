package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"workshop-assistant/internal/common/database"
	"workshop-assistant/internal/models"
)

const sessionPrefix = "assistant:session:"

// SessionStore keeps the recent turns of a conversation.
type SessionStore interface {
	History(ctx context.Context, sessionID string) ([]models.Turn, error)
	Append(ctx context.Context, sessionID string, turns ...models.Turn) error
}

// RedisSessionStore stores the capped history as one JSON value per session.
type RedisSessionStore struct {
	rdb         *redis.Client
	maxMessages int
	ttl         time.Duration
}

func NewRedisSessionStore(rdb *redis.Client, maxMessages int, ttl time.Duration) *RedisSessionStore {
	if maxMessages <= 0 {
		maxMessages = 10
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessionStore{rdb: rdb, maxMessages: maxMessages, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return sessionPrefix + sessionID
}

func (s *RedisSessionStore) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	data, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return []models.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var history []models.Turn
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return history, nil
}

func (s *RedisSessionStore) Append(ctx context.Context, sessionID string, turns ...models.Turn) error {
	history, err := s.History(ctx, sessionID)
	if err != nil {
		return err
	}

	history = append(history, turns...)
	if len(history) > s.maxMessages {
		history = history[len(history)-s.maxMessages:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// WorkshopStore loads tenant settings used by the composer and the scheduler.
type WorkshopStore interface {
	Profile(ctx context.Context, workshopID string) (*models.WorkshopProfile, error)
}

type PostgresWorkshopStore struct {
	db *database.PostgresClient
}

func NewPostgresWorkshopStore(db *database.PostgresClient) *PostgresWorkshopStore {
	return &PostgresWorkshopStore{db: db}
}

const workshopProfileQuery = `
	SELECT id, name, opening_hour, closing_hour, slot_capacity
	FROM workshops
	WHERE id = $1
`

// Profile returns nil without error for an unknown workshop.
func (s *PostgresWorkshopStore) Profile(ctx context.Context, workshopID string) (*models.WorkshopProfile, error) {
	var p models.WorkshopProfile
	err := s.db.DB.QueryRowContext(ctx, workshopProfileQuery, workshopID).
		Scan(&p.ID, &p.Name, &p.OpeningHour, &p.ClosingHour, &p.SlotCapacity)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workshop profile: %w", err)
	}
	return &p, nil
}
