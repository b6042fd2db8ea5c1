package schedule

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/common/logger"
	"workshop-assistant/internal/models"
)

// Wednesday.
var fixedNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

// ==========================
// Date Resolution
// ==========================

func TestResolveDate(t *testing.T) {
	tests := []struct {
		expr    string
		want    time.Time
		wantErr bool
	}{
		{expr: "hoje", want: time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)},
		{expr: "amanhã", want: time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)},
		{expr: "amanha", want: time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)},
		{expr: "depois de amanhã", want: time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)},
		{expr: "sexta-feira", want: time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)},
		{expr: "segunda", want: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)},
		{expr: "quarta", want: time.Date(2024, 5, 22, 0, 0, 0, 0, time.UTC)},
		{expr: "20/05", want: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)},
		{expr: "02/01", want: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		{expr: "02/01/25", want: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		{expr: "31/02", wantErr: true},
		{expr: "semana que vem", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ResolveDate(tt.expr, fixedNow)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDate)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		expr      string
		hour, min int
		wantErr   bool
	}{
		{expr: "14:00", hour: 14},
		{expr: "14h", hour: 14},
		{expr: "9h30", hour: 9, min: 30},
		{expr: "8", hour: 8},
		{expr: "25:00", wantErr: true},
		{expr: "meio-dia", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			hour, minute, err := ParseClock(tt.expr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTime)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hour, hour)
			assert.Equal(t, tt.min, minute)
		})
	}
}

// ==========================
// Test Helper Functions
// ==========================

func setupHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &Config{
		Timeout:      time.Second,
		Location:     time.UTC,
		OpeningHour:  8,
		ClosingHour:  18,
		SlotCapacity: 2,
		Alternatives: 3,
	}
	h := NewHandler(cfg, db, logger.NewTestLogger(t))
	h.now = func() time.Time { return fixedNow }
	return h, mock
}

func loadRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"scheduled_at", "count"})
}

func slotParams(date, hour string) action.Params {
	return action.Params{
		action.ParamDate:        date,
		action.ParamTime:        hour,
		action.ParamServiceKind: "Revisão geral",
	}
}

func requestContext() *action.RequestContext {
	return action.NewRequestContext("s1", "w1", &action.User{ID: "u1"})
}

// ==========================
// CheckAvailability
// ==========================

func TestHandler_CheckAvailability(t *testing.T) {
	tomorrow14 := time.Date(2024, 5, 16, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		params      action.Params
		setupMock   func(mock sqlmock.Sqlmock)
		wantSuccess bool
		wantError   string
		wantMessage string
	}{
		{
			name:   "free slot",
			params: slotParams("amanhã", "14:00"),
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM appointments").
					WithArgs("w1", time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), StatusCancelled).
					WillReturnRows(loadRows().AddRow(tomorrow14, 1))
			},
			wantSuccess: true,
			wantMessage: "Horário disponível: 16/05 às 14:00",
		},
		{
			name:   "full slot suggests alternatives",
			params: slotParams("amanhã", "8h"),
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM appointments").
					WillReturnRows(loadRows().
						AddRow(time.Date(2024, 5, 16, 8, 0, 0, 0, time.UTC), 2).
						AddRow(time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC), 2))
			},
			wantError:   CodeUnavailable,
			wantMessage: "O horário 16/05 às 08:00 está lotado. Horários livres no mesmo dia: 10:00, 11:00, 12:00",
		},
		{
			name:        "past slot",
			params:      slotParams("hoje", "09:00"),
			setupMock:   func(sqlmock.Sqlmock) {},
			wantError:   CodePastSlot,
			wantMessage: "O horário 15/05 às 09:00 já passou",
		},
		{
			name:        "after closing",
			params:      slotParams("amanhã", "19:00"),
			setupMock:   func(sqlmock.Sqlmock) {},
			wantError:   CodeClosed,
			wantMessage: "Funcionamos de segunda a sábado, das 8h às 18h",
		},
		{
			name:        "sunday",
			params:      slotParams("domingo", "10:00"),
			setupMock:   func(sqlmock.Sqlmock) {},
			wantError:   CodeClosed,
			wantMessage: "Funcionamos de segunda a sábado, das 8h às 18h",
		},
		{
			name:        "bad date",
			params:      slotParams("semana que vem", "10:00"),
			setupMock:   func(sqlmock.Sqlmock) {},
			wantError:   CodeInvalidDate,
			wantMessage: "Não entendi a data \"semana que vem\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mock := setupHandler(t)
			tt.setupMock(mock)

			res, err := h.CheckAvailability(context.Background(), tt.params, requestContext())

			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantError, res.Error)
			assert.Equal(t, tt.wantMessage, res.Message)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_CheckAvailability_UsesWorkshopProfile(t *testing.T) {
	h, mock := setupHandler(t)
	rc := requestContext()
	rc.Workshop = &models.WorkshopProfile{ID: "w1", OpeningHour: 7, ClosingHour: 20, SlotCapacity: 1}

	mock.ExpectQuery("FROM appointments").WillReturnRows(loadRows())

	res, err := h.CheckAvailability(context.Background(), slotParams("amanhã", "19:00"), rc)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_CheckAvailability_QueryError(t *testing.T) {
	h, mock := setupHandler(t)
	mock.ExpectQuery("FROM appointments").WillReturnError(errors.New("connection refused"))

	_, err := h.CheckAvailability(context.Background(), slotParams("amanhã", "14:00"), requestContext())

	assert.ErrorIs(t, err, ErrQueryFailed)
}

// ==========================
// Book
// ==========================

func TestHandler_Book(t *testing.T) {
	h, mock := setupHandler(t)
	slot := time.Date(2024, 5, 16, 14, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments").WillReturnRows(loadRows().AddRow(slot, 1))
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(sqlmock.AnyArg(), "w1", "c-1", "Revisão geral", slot, StatusBooked, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	params := slotParams("amanhã", "14:00")
	params[action.ParamClientID] = "c-1"
	res, err := h.Book(context.Background(), params, requestContext())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Revisão geral agendada para 16/05 às 14:00", res.Message)
	assert.NotEmpty(t, res.Value("agendamentoId"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Book_WithoutClient(t *testing.T) {
	h, mock := setupHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments").WillReturnRows(loadRows())
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(sqlmock.AnyArg(), "w1", nil, "Revisão geral", sqlmock.AnyArg(), StatusBooked, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := h.Book(context.Background(), slotParams("sexta", "10h"), requestContext())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Book_FullSlotRollsBack(t *testing.T) {
	h, mock := setupHandler(t)
	slot := time.Date(2024, 5, 16, 14, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments").WillReturnRows(loadRows().AddRow(slot, 2))
	mock.ExpectRollback()

	res, err := h.Book(context.Background(), slotParams("amanhã", "14:00"), requestContext())

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeUnavailable, res.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Book_InsertError(t *testing.T) {
	h, mock := setupHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments").WillReturnRows(loadRows())
	mock.ExpectExec("INSERT INTO appointments").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := h.Book(context.Background(), slotParams("amanhã", "14:00"), requestContext())

	assert.ErrorIs(t, err, ErrInsertFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
