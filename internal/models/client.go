package models

import "time"

// Client is a workshop customer.
type Client struct {
	ID         string    `json:"id" db:"id"`
	WorkshopID string    `json:"workshopId" db:"workshop_id"`
	Name       string    `json:"nome" db:"name"`
	Phone      string    `json:"telefone" db:"phone"`
	Email      string    `json:"email,omitempty" db:"email"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// Vehicle belongs to a client and is identified by its plate.
type Vehicle struct {
	ID       string `json:"id" db:"id"`
	ClientID string `json:"clienteId" db:"client_id"`
	Plate    string `json:"placa" db:"plate"`
	Model    string `json:"modelo,omitempty" db:"model"`
	Brand    string `json:"marca,omitempty" db:"brand"`
	Year     int    `json:"ano,omitempty" db:"year"`
}
