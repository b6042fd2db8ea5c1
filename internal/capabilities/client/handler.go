// Package client implements the client.search and client.create capabilities.
package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/common/logger"
	"workshop-assistant/internal/models"
)

var (
	ErrQueryFailed  = errors.New("CLIENT_QUERY_FAILED")
	ErrInsertFailed = errors.New("CLIENT_INSERT_FAILED")
)

// Business error codes returned in action.Result.Error.
const (
	CodeMissingCriteria = "INFORME_NOME_OU_TELEFONE"
	CodeInvalidPhone    = "TELEFONE_INVALIDO"
)

type Config struct {
	Timeout    time.Duration
	CacheTTL   time.Duration
	MaxResults int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    5 * time.Second,
		CacheTTL:   10 * time.Minute,
		MaxResults: 5,
	}
}

type Handler struct {
	config      *Config
	db          *sql.DB
	redisClient *redis.Client
	logger      logger.Logger
}

// NewHandler builds the handler. redisClient may be nil to disable caching.
func NewHandler(config *Config, db *sql.DB, redisClient *redis.Client, log logger.Logger) *Handler {
	return &Handler{
		config:      config,
		db:          db,
		redisClient: redisClient,
		logger:      log.WithFields(map[string]interface{}{"capability": "client"}),
	}
}

var nonDigits = regexp.MustCompile(`\D`)

// PhoneDigits keeps only the digits of a phone number.
func PhoneDigits(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

type match struct {
	Client    models.Client `json:"cliente"`
	VehicleID string        `json:"veiculoId,omitempty"`
}

const searchByPhoneQuery = `
	SELECT c.id, c.workshop_id, c.name, c.phone, COALESCE(c.email, ''), c.created_at,
	       COALESCE((SELECT v.id FROM vehicles v WHERE v.client_id = c.id ORDER BY v.created_at DESC LIMIT 1), '')
	FROM clients c
	WHERE c.workshop_id = $1 AND c.phone_digits LIKE '%' || $2
	ORDER BY c.created_at DESC
	LIMIT $3
`

const searchByNameQuery = `
	SELECT c.id, c.workshop_id, c.name, c.phone, COALESCE(c.email, ''), c.created_at,
	       COALESCE((SELECT v.id FROM vehicles v WHERE v.client_id = c.id ORDER BY v.created_at DESC LIMIT 1), '')
	FROM clients c
	WHERE c.workshop_id = $1 AND c.name ILIKE '%' || $2 || '%'
	ORDER BY c.created_at DESC
	LIMIT $3
`

// Search looks a client up by phone (preferred) or name.
func (h *Handler) Search(ctx context.Context, params action.Params, rc *action.RequestContext) (*action.Result, error) {
	name := strings.TrimSpace(params.String(action.ParamName))
	phone := PhoneDigits(params.String(action.ParamPhone))
	if name == "" && phone == "" {
		return &action.Result{
			Success: false,
			Message: "Informe o nome ou o telefone do cliente",
			Error:   CodeMissingCriteria,
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	cacheKey := h.cacheKey(rc.WorkshopID, phone)
	if phone != "" {
		if cached, ok := h.cached(ctx, cacheKey); ok {
			return searchResult(cached), nil
		}
	}

	query, arg := searchByNameQuery, name
	if phone != "" {
		query, arg = searchByPhoneQuery, phone
	}

	rows, err := h.db.QueryContext(ctx, query, rc.WorkshopID, arg, h.config.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var matches []match
	for rows.Next() {
		var m match
		if err := rows.Scan(&m.Client.ID, &m.Client.WorkshopID, &m.Client.Name, &m.Client.Phone,
			&m.Client.Email, &m.Client.CreatedAt, &m.VehicleID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	if phone != "" && len(matches) > 0 {
		h.store(ctx, cacheKey, matches)
	}

	h.logger.Debug("client search", map[string]interface{}{
		"requestId": rc.RequestID,
		"byPhone":   phone != "",
		"matches":   len(matches),
	})
	return searchResult(matches), nil
}

func searchResult(matches []match) *action.Result {
	data := map[string]interface{}{
		"total":    len(matches),
		"clientes": matches,
	}
	if len(matches) == 0 {
		return &action.Result{Success: true, Message: "Nenhum cliente encontrado", Data: data}
	}

	best := matches[0]
	data[action.ParamClientID] = best.Client.ID
	if best.VehicleID != "" {
		data[action.ParamVehicleID] = best.VehicleID
	}

	message := fmt.Sprintf("Cliente %s encontrado", best.Client.Name)
	if len(matches) > 1 {
		message = fmt.Sprintf("%d clientes encontrados, usando %s", len(matches), best.Client.Name)
	}
	return &action.Result{Success: true, Message: message, Data: data}
}

const insertClientQuery = `
	INSERT INTO clients (id, workshop_id, name, phone, phone_digits, email, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Create registers a new client.
func (h *Handler) Create(ctx context.Context, params action.Params, rc *action.RequestContext) (*action.Result, error) {
	name := strings.TrimSpace(params.String(action.ParamName))
	phone := strings.TrimSpace(params.String(action.ParamPhone))
	digits := PhoneDigits(phone)
	if len(digits) < 8 || len(digits) > 13 {
		return &action.Result{
			Success: false,
			Message: fmt.Sprintf("O telefone %s não parece válido", phone),
			Error:   CodeInvalidPhone,
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	c := models.Client{
		ID:         uuid.NewString(),
		WorkshopID: rc.WorkshopID,
		Name:       name,
		Phone:      phone,
		Email:      strings.TrimSpace(params.String(action.ParamEmail)),
		CreatedAt:  time.Now().UTC(),
	}
	var email interface{}
	if c.Email != "" {
		email = c.Email
	}

	if _, err := h.db.ExecContext(ctx, insertClientQuery,
		c.ID, c.WorkshopID, c.Name, c.Phone, digits, email, c.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}

	if h.redisClient != nil {
		h.redisClient.Del(ctx, h.cacheKey(rc.WorkshopID, digits))
	}

	h.logger.Info("client created", map[string]interface{}{
		"requestId": rc.RequestID,
		"clientId":  c.ID,
	})
	return &action.Result{
		Success: true,
		Message: fmt.Sprintf("Cliente %s cadastrado", c.Name),
		Data: map[string]interface{}{
			action.ParamClientID: c.ID,
			"cliente":            c,
		},
	}, nil
}

func (h *Handler) cacheKey(workshopID, phoneDigits string) string {
	return fmt.Sprintf("assistant:client:%s:%s", workshopID, phoneDigits)
}

func (h *Handler) cached(ctx context.Context, key string) ([]match, bool) {
	if h.redisClient == nil {
		return nil, false
	}
	val, err := h.redisClient.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	var matches []match
	if err := json.Unmarshal([]byte(val), &matches); err != nil {
		return nil, false
	}
	return matches, true
}

func (h *Handler) store(ctx context.Context, key string, matches []match) {
	if h.redisClient == nil {
		return
	}
	data, err := json.Marshal(matches)
	if err != nil {
		return
	}
	if err := h.redisClient.Set(ctx, key, data, h.config.CacheTTL).Err(); err != nil {
		h.logger.Warn("failed to cache client search", map[string]interface{}{"error": err.Error()})
	}
}
