// Package schedule implements schedule.checkAvailability and schedule.book
// against the appointments table.
package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/common/logger"
	"workshop-assistant/internal/models"
)

var (
	ErrQueryFailed  = errors.New("SCHEDULE_QUERY_FAILED")
	ErrInsertFailed = errors.New("SCHEDULE_INSERT_FAILED")
)

const (
	CodeInvalidDate = "DATA_INVALIDA"
	CodeInvalidTime = "HORARIO_INVALIDO"
	CodePastSlot    = "HORARIO_PASSADO"
	CodeClosed      = "FORA_DO_EXPEDIENTE"
	CodeUnavailable = "HORARIO_INDISPONIVEL"
)

const (
	StatusBooked    = "AGENDADO"
	StatusCancelled = "CANCELADO"
)

type Config struct {
	Timeout      time.Duration
	Location     *time.Location
	OpeningHour  int
	ClosingHour  int
	SlotCapacity int
	// Alternatives is how many free slots are suggested when one is full.
	Alternatives int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      5 * time.Second,
		Location:     time.Local,
		OpeningHour:  8,
		ClosingHour:  18,
		SlotCapacity: 2,
		Alternatives: 3,
	}
}

type Handler struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	if config.Location == nil {
		config.Location = time.Local
	}
	return &Handler{
		config: config,
		db:     db,
		logger: log.WithFields(map[string]interface{}{"capability": "schedule"}),
		now:    time.Now,
	}
}

// hours are the opening rules in effect for one request.
type hours struct {
	opening, closing, capacity int
}

func (h *Handler) hoursFor(rc *action.RequestContext) hours {
	out := hours{h.config.OpeningHour, h.config.ClosingHour, h.config.SlotCapacity}
	if w := rc.Workshop; w != nil {
		if w.ClosingHour > w.OpeningHour {
			out.opening, out.closing = w.OpeningHour, w.ClosingHour
		}
		if w.SlotCapacity > 0 {
			out.capacity = w.SlotCapacity
		}
	}
	return out
}

func (o hours) open(slot time.Time) bool {
	return slot.Weekday() != time.Sunday && slot.Hour() >= o.opening && slot.Hour() < o.closing
}

// resolveSlot validates the requested date and time. A non-nil result means
// the request was rejected and carries the reason.
func (h *Handler) resolveSlot(params action.Params, rc *action.RequestContext) (time.Time, *action.Result) {
	now := h.now().In(h.config.Location)

	day, err := ResolveDate(params.String(action.ParamDate), now)
	if err != nil {
		return time.Time{}, &action.Result{
			Success: false,
			Message: fmt.Sprintf("Não entendi a data \"%s\"", params.String(action.ParamDate)),
			Error:   CodeInvalidDate,
		}
	}
	hour, minute, err := ParseClock(params.String(action.ParamTime))
	if err != nil {
		return time.Time{}, &action.Result{
			Success: false,
			Message: fmt.Sprintf("Não entendi o horário \"%s\"", params.String(action.ParamTime)),
			Error:   CodeInvalidTime,
		}
	}

	slot := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, h.config.Location)
	if slot.Before(now) {
		return time.Time{}, &action.Result{
			Success: false,
			Message: fmt.Sprintf("O horário %s já passou", FormatSlot(slot)),
			Error:   CodePastSlot,
		}
	}
	if o := h.hoursFor(rc); !o.open(slot) {
		return time.Time{}, &action.Result{
			Success: false,
			Message: fmt.Sprintf("Funcionamos de segunda a sábado, das %dh às %dh", o.opening, o.closing),
			Error:   CodeClosed,
		}
	}
	return slot, nil
}

const dayLoadQuery = `
	SELECT scheduled_at, COUNT(*)
	FROM appointments
	WHERE workshop_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3 AND status <> $4
	GROUP BY scheduled_at
`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// dayLoad counts active appointments per start time ("15:04") on slot's day.
func (h *Handler) dayLoad(ctx context.Context, q querier, workshopID string, slot time.Time) (map[string]int, error) {
	start := time.Date(slot.Year(), slot.Month(), slot.Day(), 0, 0, 0, 0, slot.Location())
	rows, err := q.QueryContext(ctx, dayLoadQuery, workshopID, start, start.AddDate(0, 0, 1), StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	load := make(map[string]int)
	for rows.Next() {
		var at time.Time
		var count int
		if err := rows.Scan(&at, &count); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}
		load[at.In(h.config.Location).Format("15:04")] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return load, nil
}

// alternatives lists free hourly slots on the same day, after now.
func (h *Handler) alternatives(slot time.Time, o hours, load map[string]int) []models.Slot {
	now := h.now()
	var out []models.Slot
	for hour := o.opening; hour < o.closing && len(out) < h.config.Alternatives; hour++ {
		candidate := time.Date(slot.Year(), slot.Month(), slot.Day(), hour, 0, 0, 0, slot.Location())
		if candidate.Equal(slot) || candidate.Before(now) {
			continue
		}
		if load[candidate.Format("15:04")] < o.capacity {
			out = append(out, models.Slot{Start: candidate, Available: true})
		}
	}
	return out
}

func unavailable(slot time.Time, alts []models.Slot) *action.Result {
	message := fmt.Sprintf("O horário %s está lotado", FormatSlot(slot))
	if len(alts) > 0 {
		labels := make([]string, len(alts))
		for i, a := range alts {
			labels[i] = a.Start.Format("15:04")
		}
		message += ". Horários livres no mesmo dia: " + strings.Join(labels, ", ")
	}
	return &action.Result{
		Success: false,
		Message: message,
		Error:   CodeUnavailable,
		Data:    map[string]interface{}{"disponivel": false, "alternativas": alts},
	}
}

// CheckAvailability reports whether the requested slot can still be booked.
func (h *Handler) CheckAvailability(ctx context.Context, params action.Params, rc *action.RequestContext) (*action.Result, error) {
	slot, rejected := h.resolveSlot(params, rc)
	if rejected != nil {
		return rejected, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	load, err := h.dayLoad(ctx, h.db, rc.WorkshopID, slot)
	if err != nil {
		return nil, err
	}
	o := h.hoursFor(rc)
	if load[slot.Format("15:04")] >= o.capacity {
		return unavailable(slot, h.alternatives(slot, o, load)), nil
	}

	return &action.Result{
		Success: true,
		Message: fmt.Sprintf("Horário disponível: %s", FormatSlot(slot)),
		Data: map[string]interface{}{
			"disponivel": true,
			"dataHora":   slot.Format(time.RFC3339),
		},
	}, nil
}

const insertAppointmentQuery = `
	INSERT INTO appointments (id, workshop_id, client_id, service_type, scheduled_at, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Book reserves the slot. Capacity is checked again inside the transaction
// so two concurrent bookings cannot both take the last place.
func (h *Handler) Book(ctx context.Context, params action.Params, rc *action.RequestContext) (*action.Result, error) {
	slot, rejected := h.resolveSlot(params, rc)
	if rejected != nil {
		return rejected, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	tx, err := h.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}
	defer tx.Rollback()

	load, err := h.dayLoad(ctx, tx, rc.WorkshopID, slot)
	if err != nil {
		return nil, err
	}
	o := h.hoursFor(rc)
	if load[slot.Format("15:04")] >= o.capacity {
		return unavailable(slot, h.alternatives(slot, o, load)), nil
	}

	appt := models.Appointment{
		ID:          uuid.NewString(),
		WorkshopID:  rc.WorkshopID,
		ClientID:    params.String(action.ParamClientID),
		ServiceType: params.String(action.ParamServiceKind),
		ScheduledAt: slot,
		Status:      StatusBooked,
		CreatedAt:   h.now().UTC(),
	}
	var clientID interface{}
	if appt.ClientID != "" {
		clientID = appt.ClientID
	}

	if _, err := tx.ExecContext(ctx, insertAppointmentQuery,
		appt.ID, appt.WorkshopID, clientID, appt.ServiceType, appt.ScheduledAt, appt.Status, appt.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}

	h.logger.Info("appointment booked", map[string]interface{}{
		"requestId":     rc.RequestID,
		"appointmentId": appt.ID,
		"scheduledAt":   appt.ScheduledAt.Format(time.RFC3339),
	})

	return &action.Result{
		Success: true,
		Message: fmt.Sprintf("%s agendada para %s", appt.ServiceType, FormatSlot(slot)),
		Data: map[string]interface{}{
			"agendamentoId": appt.ID,
			"dataHora":      slot.Format(time.RFC3339),
			"agendamento":   appt,
		},
	}, nil
}
