// Package serviceorder implements service.create, service.search and
// service.update. Postgres is the record of truth; Elasticsearch serves
// free-text search.
package serviceorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/common/database"
	"workshop-assistant/internal/common/logger"
	"workshop-assistant/internal/models"
)

var (
	ErrInsertFailed = errors.New("ORDER_INSERT_FAILED")
	ErrQueryFailed  = errors.New("ORDER_QUERY_FAILED")
	ErrSearchFailed = errors.New("ORDER_SEARCH_FAILED")
	ErrUpdateFailed = errors.New("ORDER_UPDATE_FAILED")
)

const (
	CodeOrderNotFound  = "ORDEM_NAO_ENCONTRADA"
	CodeInvalidStatus  = "STATUS_INVALIDO"
	CodeInvalidOrderID = "NUMERO_ORDEM_INVALIDO"
	CodeOrderClosed    = "ORDEM_ENCERRADA"
	CodeSearchCriteria = "INFORME_CRITERIO_BUSCA"
)

const DefaultPriority = "NORMAL"

type Config struct {
	Timeout     time.Duration
	OrdersIndex string
	MaxResults  int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     10 * time.Second,
		OrdersIndex: "service_orders",
		MaxResults:  10,
	}
}

// SearchIndex is the part of the Elasticsearch client the handler uses.
type SearchIndex interface {
	IndexDocument(ctx context.Context, index, id string, doc interface{}) error
	UpdateDocument(ctx context.Context, index, id string, partial map[string]interface{}) error
	Search(ctx context.Context, index string, query map[string]interface{}, size int) ([]database.SearchHit, error)
}

type Handler struct {
	config *Config
	db     *sql.DB
	index  SearchIndex
	logger logger.Logger
}

// NewHandler builds the handler. index may be nil, which disables free-text search.
func NewHandler(config *Config, db *sql.DB, index SearchIndex, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"capability": "serviceorder"}),
	}
}

const insertOrderQuery = `
	INSERT INTO service_orders
		(id, workshop_id, client_id, vehicle_id, service_type, description, plate, priority, status, created_by, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	RETURNING number
`

// Create opens a new service order.
func (h *Handler) Create(ctx context.Context, params action.Params, rc *action.RequestContext) (*action.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	now := time.Now().UTC()
	order := models.ServiceOrder{
		ID:          uuid.NewString(),
		WorkshopID:  rc.WorkshopID,
		ClientID:    params.String(action.ParamClientID),
		VehicleID:   params.String(action.ParamVehicleID),
		ServiceType: strings.ToUpper(params.String(action.ParamServiceType)),
		Description: params.String(action.ParamDescription),
		Plate:       params.String(action.ParamPlate),
		Priority:    strings.ToUpper(params.String(action.ParamPriority)),
		Status:      models.OrderStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if order.Priority == "" {
		order.Priority = DefaultPriority
	}
	if rc.User != nil {
		order.CreatedBy = rc.User.ID
	}

	err := h.db.QueryRowContext(ctx, insertOrderQuery,
		order.ID, order.WorkshopID, order.ClientID, order.VehicleID, order.ServiceType,
		order.Description, order.Plate, order.Priority, order.Status, order.CreatedBy, order.CreatedAt,
	).Scan(&order.Number)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}

	if h.index != nil {
		if err := h.index.IndexDocument(ctx, h.config.OrdersIndex, order.ID, order); err != nil {
			h.logger.Warn("failed to index service order", map[string]interface{}{
				"requestId": rc.RequestID,
				"orderId":   order.ID,
				"error":     err.Error(),
			})
		}
	}

	h.logger.Info("service order created", map[string]interface{}{
		"requestId":   rc.RequestID,
		"orderNumber": order.Number,
		"serviceType": order.ServiceType,
	})

	message := fmt.Sprintf("OS nº %d aberta", order.Number)
	if order.Description != "" {
		message += " (" + order.Description + ")"
	}
	return &action.Result{
		Success: true,
		Message: message,
		Data: map[string]interface{}{
			action.ParamOrderID: strconv.FormatInt(order.Number, 10),
			"ordem":             order,
		},
	}, nil
}

const orderByNumberQuery = `
	SELECT id, number, workshop_id, client_id, vehicle_id, service_type, COALESCE(description, ''),
	       COALESCE(plate, ''), priority, status, COALESCE(created_by, ''), created_at, updated_at
	FROM service_orders
	WHERE workshop_id = $1 AND number = $2
`

// Search finds orders by number through Postgres, or by term, plate and
// status through the search index.
func (h *Handler) Search(ctx context.Context, params action.Params, rc *action.RequestContext) (*action.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	if params.Has(action.ParamOrderID) {
		number, ok := parseOrderNumber(params.String(action.ParamOrderID))
		if !ok {
			return invalidOrderID(params.String(action.ParamOrderID)), nil
		}
		order, err := h.byNumber(ctx, rc.WorkshopID, number)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return &action.Result{
				Success: true,
				Message: fmt.Sprintf("Nenhuma OS nº %d encontrada", number),
				Data:    map[string]interface{}{"total": 0},
			}, nil
		}
		return ordersResult([]models.ServiceOrder{*order}), nil
	}

	query, ok := buildSearchQuery(rc.WorkshopID, params)
	if !ok {
		return &action.Result{
			Success: false,
			Message: "Informe um termo, placa ou status para buscar ordens",
			Error:   CodeSearchCriteria,
		}, nil
	}
	if h.index == nil {
		return nil, fmt.Errorf("%w: search index not configured", ErrSearchFailed)
	}

	hits, err := h.index.Search(ctx, h.config.OrdersIndex, query, h.config.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	orders := make([]models.ServiceOrder, 0, len(hits))
	for _, hit := range hits {
		var o models.ServiceOrder
		if err := json.Unmarshal(hit.Source, &o); err != nil {
			h.logger.Warn("skipping malformed search hit", map[string]interface{}{"id": hit.ID})
			continue
		}
		orders = append(orders, o)
	}
	return ordersResult(orders), nil
}

// buildSearchQuery returns false when params carry no criteria.
func buildSearchQuery(workshopID string, params action.Params) (map[string]interface{}, bool) {
	filter := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"workshopId": workshopID}},
	}
	var must []interface{}

	if term := params.String(action.ParamTerm); strings.TrimSpace(term) != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  term,
				"fields": []string{"descricaoProblema^2", "tipoServico", "placa"},
			},
		})
	}
	if plate := params.String(action.ParamPlate); plate != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"placa": strings.ToUpper(plate)}})
	}
	if status := params.String(action.ParamStatus); status != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"status": status}})
	}
	if len(must) == 0 && len(filter) == 1 {
		return nil, false
	}

	boolQuery := map[string]interface{}{"filter": filter}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []interface{}{"_score", map[string]interface{}{"createdAt": "desc"}},
	}, true
}

func ordersResult(orders []models.ServiceOrder) *action.Result {
	data := map[string]interface{}{"total": len(orders), "ordens": orders}
	switch len(orders) {
	case 0:
		return &action.Result{Success: true, Message: "Nenhuma ordem de serviço encontrada", Data: data}
	case 1:
		o := orders[0]
		data[action.ParamOrderID] = strconv.FormatInt(o.Number, 10)
		return &action.Result{
			Success: true,
			Message: fmt.Sprintf("OS nº %d: %s, status %s", o.Number, o.ServiceType, o.Status),
			Data:    data,
		}
	}
	return &action.Result{Success: true, Message: fmt.Sprintf("%d ordens de serviço encontradas", len(orders)), Data: data}
}

const updateStatusQuery = `
	UPDATE service_orders
	SET status = $1, updated_at = $2
	WHERE workshop_id = $3 AND number = $4 AND status <> $5
	RETURNING id
`

// Update changes the status of an order. Cancelled orders are final.
func (h *Handler) Update(ctx context.Context, params action.Params, rc *action.RequestContext) (*action.Result, error) {
	raw := params.String(action.ParamOrderID)
	number, ok := parseOrderNumber(raw)
	if !ok {
		return invalidOrderID(raw), nil
	}
	status := strings.ToUpper(params.String(action.ParamStatus))
	if !models.ValidOrderStatus(status) {
		return &action.Result{
			Success: false,
			Message: fmt.Sprintf("Status \"%s\" não é válido", params.String(action.ParamStatus)),
			Error:   CodeInvalidStatus,
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	now := time.Now().UTC()
	var id string
	err := h.db.QueryRowContext(ctx, updateStatusQuery, status, now, rc.WorkshopID, number, models.OrderStatusCancelled).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		existing, lookupErr := h.byNumber(ctx, rc.WorkshopID, number)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil {
			return &action.Result{
				Success: false,
				Message: fmt.Sprintf("OS nº %d não encontrada", number),
				Error:   CodeOrderNotFound,
			}, nil
		}
		return &action.Result{
			Success: false,
			Message: fmt.Sprintf("A OS nº %d está cancelada e não pode ser alterada", number),
			Error:   CodeOrderClosed,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}

	if h.index != nil {
		partial := map[string]interface{}{"status": status, "updatedAt": now}
		if err := h.index.UpdateDocument(ctx, h.config.OrdersIndex, id, partial); err != nil {
			h.logger.Warn("failed to update search index", map[string]interface{}{
				"requestId": rc.RequestID,
				"orderId":   id,
				"error":     err.Error(),
			})
		}
	}

	return &action.Result{
		Success: true,
		Message: fmt.Sprintf("OS nº %d atualizada para %s", number, status),
		Data: map[string]interface{}{
			action.ParamOrderID: strconv.FormatInt(number, 10),
			action.ParamStatus:  status,
		},
	}, nil
}

func (h *Handler) byNumber(ctx context.Context, workshopID string, number int64) (*models.ServiceOrder, error) {
	var o models.ServiceOrder
	err := h.db.QueryRowContext(ctx, orderByNumberQuery, workshopID, number).Scan(
		&o.ID, &o.Number, &o.WorkshopID, &o.ClientID, &o.VehicleID, &o.ServiceType, &o.Description,
		&o.Plate, &o.Priority, &o.Status, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return &o, nil
}

func parseOrderNumber(raw string) (int64, bool) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "#")
	n, err := strconv.ParseInt(raw, 10, 64)
	return n, err == nil && n > 0
}

func invalidOrderID(raw string) *action.Result {
	return &action.Result{
		Success: false,
		Message: fmt.Sprintf("\"%s\" não é um número de OS válido", raw),
		Error:   CodeInvalidOrderID,
	}
}
