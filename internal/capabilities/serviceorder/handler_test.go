package serviceorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/common/database"
	"workshop-assistant/internal/common/logger"
	"workshop-assistant/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{Timeout: 2 * time.Second, OrdersIndex: "service_orders", MaxResults: 10}
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type esRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

// fakeElasticsearch records requests and answers searches with hits.
type fakeElasticsearch struct {
	mu       sync.Mutex
	requests []esRequest
	hits     []map[string]interface{}
	status   int
}

func (f *fakeElasticsearch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]interface{}
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.requests = append(f.requests, esRequest{Method: r.Method, Path: r.URL.Path, Body: body})
	status := f.status
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
		return
	}
	if strings.HasSuffix(r.URL.Path, "/_search") {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{
				"total": map[string]interface{}{"value": len(f.hits)},
				"hits":  f.hits,
			},
		})
		return
	}
	_, _ = w.Write([]byte(`{"result":"ok"}`))
}

func (f *fakeElasticsearch) recorded() []esRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]esRequest(nil), f.requests...)
}

func setupElasticsearch(t *testing.T, fake *fakeElasticsearch) *database.ElasticsearchClient {
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return &database.ElasticsearchClient{Client: es}
}

func requestContext() *action.RequestContext {
	return action.NewRequestContext("s1", "w1", &action.User{ID: "u1", Permissions: []string{"service:write"}})
}

// ==========================
// Create
// ==========================

func TestHandler_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	fake := &fakeElasticsearch{}
	es := setupElasticsearch(t, fake)

	mock.ExpectQuery("INSERT INTO service_orders").
		WithArgs(sqlmock.AnyArg(), "w1", "c-1", "v-1", "TROCA_OLEO", "barulho no motor", "",
			DefaultPriority, models.OrderStatusOpen, "u1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"number"}).AddRow(1234))

	h := NewHandler(createTestConfig(), db, es, logger.NewTestLogger(t))
	res, err := h.Create(context.Background(), action.Params{
		action.ParamClientID:    "c-1",
		action.ParamVehicleID:   "v-1",
		action.ParamServiceType: "troca_oleo",
		action.ParamDescription: "barulho no motor",
	}, requestContext())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "1234", res.Value(action.ParamOrderID))
	assert.Equal(t, "OS nº 1234 aberta (barulho no motor)", res.Message)
	assert.NoError(t, mock.ExpectationsWereMet())

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasPrefix(reqs[0].Path, "/service_orders/_doc/"))
	assert.Equal(t, models.OrderStatusOpen, reqs[0].Body["status"])
}

func TestHandler_Create_IndexFailureIsNotFatal(t *testing.T) {
	db, mock := setupMockDB(t)
	es := setupElasticsearch(t, &fakeElasticsearch{status: http.StatusInternalServerError})

	mock.ExpectQuery("INSERT INTO service_orders").
		WillReturnRows(sqlmock.NewRows([]string{"number"}).AddRow(7))

	h := NewHandler(createTestConfig(), db, es, logger.NewNoOpLogger())
	res, err := h.Create(context.Background(), action.Params{
		action.ParamClientID:    "c-1",
		action.ParamVehicleID:   "v-1",
		action.ParamServiceType: "REVISAO",
		action.ParamPriority:    "alta",
	}, requestContext())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "OS nº 7 aberta", res.Message)
}

func TestHandler_Create_InsertError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery("INSERT INTO service_orders").WillReturnError(errors.New("fk violation"))

	h := NewHandler(createTestConfig(), db, nil, logger.NewNoOpLogger())
	_, err := h.Create(context.Background(), action.Params{
		action.ParamClientID:    "c-1",
		action.ParamVehicleID:   "v-1",
		action.ParamServiceType: "REVISAO",
	}, requestContext())

	assert.ErrorIs(t, err, ErrInsertFailed)
}

// ==========================
// Search
// ==========================

func orderRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "number", "workshop_id", "client_id", "vehicle_id", "service_type",
		"description", "plate", "priority", "status", "created_by", "created_at", "updated_at"})
}

func TestHandler_Search_ByNumber(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		orderID     string
		setupMock   func(mock sqlmock.Sqlmock)
		wantSuccess bool
		wantError   string
		wantMessage string
	}{
		{
			name:    "found",
			orderID: "1234",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM service_orders").WithArgs("w1", int64(1234)).
					WillReturnRows(orderRows().AddRow("o-1", 1234, "w1", "c-1", "v-1", "REVISAO", "", "ABC1D23",
						"NORMAL", models.OrderStatusInProgress, "u1", now, now))
			},
			wantSuccess: true,
			wantMessage: "OS nº 1234: REVISAO, status EM_ANDAMENTO",
		},
		{
			name:    "missing",
			orderID: "#99",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM service_orders").WithArgs("w1", int64(99)).WillReturnRows(orderRows())
			},
			wantSuccess: true,
			wantMessage: "Nenhuma OS nº 99 encontrada",
		},
		{
			name:        "not a number",
			orderID:     "abc",
			setupMock:   func(sqlmock.Sqlmock) {},
			wantError:   CodeInvalidOrderID,
			wantMessage: "\"abc\" não é um número de OS válido",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			tt.setupMock(mock)

			h := NewHandler(createTestConfig(), db, nil, logger.NewNoOpLogger())
			res, err := h.Search(context.Background(), action.Params{action.ParamOrderID: tt.orderID}, requestContext())

			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantError, res.Error)
			assert.Equal(t, tt.wantMessage, res.Message)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_Search_FullText(t *testing.T) {
	db, _ := setupMockDB(t)
	fake := &fakeElasticsearch{hits: []map[string]interface{}{
		{"_id": "o-1", "_score": 2.1, "_source": map[string]interface{}{"numero": 10, "tipoServico": "FREIOS", "status": "ABERTA"}},
		{"_id": "o-2", "_score": 1.4, "_source": map[string]interface{}{"numero": 11, "tipoServico": "FREIOS", "status": "ABERTA"}},
	}}
	es := setupElasticsearch(t, fake)

	h := NewHandler(createTestConfig(), db, es, logger.NewNoOpLogger())
	res, err := h.Search(context.Background(), action.Params{
		action.ParamTerm:   "freio",
		action.ParamPlate:  "abc1d23",
		action.ParamStatus: "ABERTA",
	}, requestContext())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Data["total"])
	assert.Equal(t, "2 ordens de serviço encontradas", res.Message)

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/service_orders/_search", reqs[0].Path)
	boolQuery := reqs[0].Body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Len(t, boolQuery["filter"], 3)
	assert.Len(t, boolQuery["must"], 1)
}

func TestHandler_Search_RequiresCriteria(t *testing.T) {
	db, _ := setupMockDB(t)
	h := NewHandler(createTestConfig(), db, nil, logger.NewNoOpLogger())

	res, err := h.Search(context.Background(), action.Params{}, requestContext())

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeSearchCriteria, res.Error)
}

func TestHandler_Search_IndexError(t *testing.T) {
	db, _ := setupMockDB(t)
	es := setupElasticsearch(t, &fakeElasticsearch{status: http.StatusServiceUnavailable})

	h := NewHandler(createTestConfig(), db, es, logger.NewNoOpLogger())
	_, err := h.Search(context.Background(), action.Params{action.ParamTerm: "freio"}, requestContext())

	assert.ErrorIs(t, err, ErrSearchFailed)
}

// ==========================
// Update
// ==========================

func TestHandler_Update(t *testing.T) {
	db, mock := setupMockDB(t)
	fake := &fakeElasticsearch{}
	es := setupElasticsearch(t, fake)

	mock.ExpectQuery("UPDATE service_orders").
		WithArgs(models.OrderStatusDone, sqlmock.AnyArg(), "w1", int64(1234), models.OrderStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("o-1"))

	h := NewHandler(createTestConfig(), db, es, logger.NewTestLogger(t))
	res, err := h.Update(context.Background(), action.Params{
		action.ParamOrderID: "1234",
		action.ParamStatus:  "concluida",
	}, requestContext())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "OS nº 1234 atualizada para CONCLUIDA", res.Message)
	assert.NoError(t, mock.ExpectationsWereMet())

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/service_orders/_update/o-1", reqs[0].Path)
	doc := reqs[0].Body["doc"].(map[string]interface{})
	assert.Equal(t, models.OrderStatusDone, doc["status"])
}

func TestHandler_Update_BusinessFailures(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		params    action.Params
		setupMock func(mock sqlmock.Sqlmock)
		wantError string
	}{
		{
			name:      "invalid status",
			params:    action.Params{action.ParamOrderID: "1", action.ParamStatus: "voando"},
			setupMock: func(sqlmock.Sqlmock) {},
			wantError: CodeInvalidStatus,
		},
		{
			name:      "invalid number",
			params:    action.Params{action.ParamOrderID: "x1", action.ParamStatus: "CONCLUIDA"},
			setupMock: func(sqlmock.Sqlmock) {},
			wantError: CodeInvalidOrderID,
		},
		{
			name:   "unknown order",
			params: action.Params{action.ParamOrderID: "5", action.ParamStatus: "CONCLUIDA"},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE service_orders").WillReturnRows(sqlmock.NewRows([]string{"id"}))
				mock.ExpectQuery("FROM service_orders").WithArgs("w1", int64(5)).WillReturnRows(orderRows())
			},
			wantError: CodeOrderNotFound,
		},
		{
			name:   "cancelled order",
			params: action.Params{action.ParamOrderID: "6", action.ParamStatus: "ABERTA"},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE service_orders").WillReturnRows(sqlmock.NewRows([]string{"id"}))
				mock.ExpectQuery("FROM service_orders").WithArgs("w1", int64(6)).
					WillReturnRows(orderRows().AddRow("o-6", 6, "w1", "c-1", "v-1", "REVISAO", "", "",
						"NORMAL", models.OrderStatusCancelled, "", now, now))
			},
			wantError: CodeOrderClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			tt.setupMock(mock)

			h := NewHandler(createTestConfig(), db, nil, logger.NewNoOpLogger())
			res, err := h.Update(context.Background(), tt.params, requestContext())

			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantError, res.Error)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_Update_DatabaseError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery("UPDATE service_orders").WillReturnError(errors.New("deadlock"))

	h := NewHandler(createTestConfig(), db, nil, logger.NewNoOpLogger())
	_, err := h.Update(context.Background(), action.Params{
		action.ParamOrderID: "1",
		action.ParamStatus:  "CONCLUIDA",
	}, requestContext())

	assert.ErrorIs(t, err, ErrUpdateFailed)
}
