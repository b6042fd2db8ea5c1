// Package vehicle implements the vehicle.search capability.
package vehicle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/common/logger"
	"workshop-assistant/internal/models"
)

var ErrQueryFailed = errors.New("VEHICLE_QUERY_FAILED")

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

type Handler struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		logger: log.WithFields(map[string]interface{}{"capability": "vehicle"}),
	}
}

// NormalizePlate upper-cases a plate and drops separators.
func NormalizePlate(plate string) string {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	return strings.NewReplacer("-", "", " ", "").Replace(plate)
}

const searchByPlateQuery = `
	SELECT v.id, v.client_id, v.plate, COALESCE(v.model, ''), COALESCE(v.brand, ''), COALESCE(v.year, 0)
	FROM vehicles v
	JOIN clients c ON c.id = v.client_id
	WHERE c.workshop_id = $1 AND v.plate = $2
	LIMIT 1
`

// Search finds the vehicle with the given plate and its owner.
func (h *Handler) Search(ctx context.Context, params action.Params, rc *action.RequestContext) (*action.Result, error) {
	plate := NormalizePlate(params.String(action.ParamPlate))

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	var v models.Vehicle
	err := h.db.QueryRowContext(ctx, searchByPlateQuery, rc.WorkshopID, plate).
		Scan(&v.ID, &v.ClientID, &v.Plate, &v.Model, &v.Brand, &v.Year)
	if errors.Is(err, sql.ErrNoRows) {
		return &action.Result{
			Success: true,
			Message: fmt.Sprintf("Nenhum veículo com a placa %s", plate),
			Data:    map[string]interface{}{"total": 0},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	h.logger.Debug("vehicle found", map[string]interface{}{
		"requestId": rc.RequestID,
		"vehicleId": v.ID,
	})

	return &action.Result{
		Success: true,
		Message: describe(v),
		Data: map[string]interface{}{
			"total":               1,
			"veiculo":             v,
			action.ParamVehicleID: v.ID,
			action.ParamClientID:  v.ClientID,
		},
	}, nil
}

func describe(v models.Vehicle) string {
	parts := []string{"Veículo", v.Plate}
	if model := strings.TrimSpace(v.Brand + " " + v.Model); model != "" {
		parts = append(parts, "("+model+")")
	}
	return strings.Join(parts, " ") + " encontrado"
}
