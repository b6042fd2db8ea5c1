package models

import "time"

type Appointment struct {
	ID          string    `json:"id" db:"id"`
	WorkshopID  string    `json:"workshopId" db:"workshop_id"`
	ClientID    string    `json:"clienteId,omitempty" db:"client_id"`
	ServiceType string    `json:"servicoTipo" db:"service_type"`
	ScheduledAt time.Time `json:"dataHora" db:"scheduled_at"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Slot is a bookable period on a workshop's agenda.
type Slot struct {
	Start     time.Time `json:"inicio"`
	Available bool      `json:"disponivel"`
}
