package models

import "time"

// Interaction is the persisted trace of one processed message.
type Interaction struct {
	ID           string    `json:"id" db:"id"`
	SessionID    string    `json:"sessionId" db:"session_id"`
	WorkshopID   string    `json:"workshopId" db:"workshop_id"`
	UserID       string    `json:"userId,omitempty" db:"user_id"`
	Message      string    `json:"message" db:"message"`
	Intent       string    `json:"intent" db:"intent"`
	Confidence   float64   `json:"confidence" db:"confidence"`
	Actions      []byte    `json:"actions" db:"actions"` // JSON encoded outcomes
	ResponseText string    `json:"responseText" db:"response_text"`
	Success      bool      `json:"success" db:"success"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Turn is one user/assistant exchange kept in the session history.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkshopProfile is loaded during context enrichment.
type WorkshopProfile struct {
	ID           string `json:"id" db:"id"`
	Name         string `json:"nome" db:"name"`
	OpeningHour  int    `json:"abertura" db:"opening_hour"`
	ClosingHour  int    `json:"fechamento" db:"closing_hour"`
	SlotCapacity int    `json:"capacidade" db:"slot_capacity"`
}
