package models

type Notification struct {
	ID          string                 `json:"id"`
	ClientID    string                 `json:"clienteId"`
	Channel     string                 `json:"canal"`  // "email", "sms", "whatsapp"
	Status      string                 `json:"status"` // "sent", "failed", "disabled"
	Destination string                 `json:"destino"`
	Message     string                 `json:"mensagem"`
	ProviderID  string                 `json:"providerId,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	SentAt      string                 `json:"sentAt,omitempty"`
	CreatedAt   string                 `json:"createdAt"`
}
