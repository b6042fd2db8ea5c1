package models

import "time"

const (
	OrderStatusOpen       = "ABERTA"
	OrderStatusInProgress = "EM_ANDAMENTO"
	OrderStatusWaiting    = "AGUARDANDO_PECA"
	OrderStatusDone       = "CONCLUIDA"
	OrderStatusCancelled  = "CANCELADA"
)

// ServiceOrder ("ordem de serviço") is a unit of work on a vehicle.
type ServiceOrder struct {
	ID          string    `json:"id" db:"id"`
	Number      int64     `json:"numero" db:"number"`
	WorkshopID  string    `json:"workshopId" db:"workshop_id"`
	ClientID    string    `json:"clienteId" db:"client_id"`
	VehicleID   string    `json:"veiculoId" db:"vehicle_id"`
	ServiceType string    `json:"tipoServico" db:"service_type"`
	Description string    `json:"descricaoProblema,omitempty" db:"description"`
	Plate       string    `json:"placa,omitempty" db:"plate"`
	Priority    string    `json:"prioridade,omitempty" db:"priority"`
	Status      string    `json:"status" db:"status"`
	CreatedBy   string    `json:"createdBy,omitempty" db:"created_by"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// ValidOrderStatus reports whether status is a known order status.
func ValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusOpen, OrderStatusInProgress, OrderStatusWaiting, OrderStatusDone, OrderStatusCancelled:
		return true
	}
	return false
}
