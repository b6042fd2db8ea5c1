// Package notify implements notify.send: e-mail through SES, SMS and the
// WhatsApp bridge through SNS.
package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"

	"workshop-assistant/internal/assistant/action"
	awsclient "workshop-assistant/internal/common/aws"
	"workshop-assistant/internal/common/logger"
	"workshop-assistant/internal/models"
)

var (
	ErrQueryFailed    = errors.New("NOTIFY_QUERY_FAILED")
	ErrDeliveryFailed = errors.New("NOTIFY_DELIVERY_FAILED")
)

const (
	CodeClientNotFound     = "CLIENTE_NAO_ENCONTRADO"
	CodeChannelDisabled    = "CANAL_DESATIVADO"
	CodeNoContact          = "CONTATO_INDISPONIVEL"
	CodeUnsupportedChannel = "CANAL_INVALIDO"
)

const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

type Config struct {
	Timeout        time.Duration
	EmailEnabled   bool
	SMSEnabled     bool
	FromEmail      string
	SenderID       string
	Subject        string
	DefaultChannel string
	CountryCode    string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        10 * time.Second,
		Subject:        "Atualização da sua oficina",
		DefaultChannel: ChannelWhatsApp,
		CountryCode:    "55",
	}
}

// EmailSender is satisfied by *aws.SESClient.
type EmailSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// SMSSender is satisfied by *aws.SNSClient.
type SMSSender interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

type Handler struct {
	config *Config
	db     *sql.DB
	email  EmailSender
	sms    SMSSender
	logger logger.Logger
}

// NewHandler builds the handler. A nil sender disables its channels.
func NewHandler(config *Config, db *sql.DB, email EmailSender, sms SMSSender, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		email:  email,
		sms:    sms,
		logger: log.WithFields(map[string]interface{}{"capability": "notify"}),
	}
}

var channelLabels = map[string]string{
	ChannelEmail:    "e-mail",
	ChannelSMS:      "SMS",
	ChannelWhatsApp: "WhatsApp",
}

const contactQuery = `
	SELECT name, phone, COALESCE(email, '')
	FROM clients
	WHERE workshop_id = $1 AND id = $2
`

const insertNotificationQuery = `
	INSERT INTO notifications (id, workshop_id, client_id, channel, destination, message, status, provider_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// Send delivers a message to a client over the requested channel, or the
// default one. Every attempt is recorded, including disabled channels.
func (h *Handler) Send(ctx context.Context, params action.Params, rc *action.RequestContext) (*action.Result, error) {
	clientID := params.String(action.ParamClientID)
	message := params.String(action.ParamMessage)
	channel := strings.ToLower(strings.TrimSpace(params.String(action.ParamChannel)))
	if channel == "" {
		channel = h.config.DefaultChannel
	}
	label, known := channelLabels[channel]
	if !known {
		return &action.Result{
			Success: false,
			Message: fmt.Sprintf("Canal \"%s\" não suportado", channel),
			Error:   CodeUnsupportedChannel,
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	var name, phone, email string
	err := h.db.QueryRowContext(ctx, contactQuery, rc.WorkshopID, clientID).Scan(&name, &phone, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return &action.Result{Success: false, Message: "Cliente não encontrado para envio", Error: CodeClientNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	destination := email
	if channel != ChannelEmail {
		destination = E164(phone, h.config.CountryCode)
	}
	if destination == "" {
		return &action.Result{
			Success: false,
			Message: fmt.Sprintf("%s não tem %s cadastrado", name, label),
			Error:   CodeNoContact,
		}, nil
	}

	n := &models.Notification{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		Channel:     channel,
		Destination: destination,
		Message:     message,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	if !h.enabled(channel) {
		n.Status = StatusDisabled
		h.record(ctx, rc, n)
		return &action.Result{
			Success: false,
			Message: fmt.Sprintf("Envio por %s está desativado", label),
			Error:   CodeChannelDisabled,
			Data:    map[string]interface{}{"notificacao": n},
		}, nil
	}

	providerID, sendErr := h.deliver(ctx, channel, destination, message)
	if sendErr != nil {
		n.Status = StatusFailed
		h.record(ctx, rc, n)
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, sendErr)
	}

	n.Status = StatusSent
	n.ProviderID = providerID
	n.SentAt = time.Now().UTC().Format(time.RFC3339)
	h.record(ctx, rc, n)

	h.logger.Info("notification sent", map[string]interface{}{
		"requestId":      rc.RequestID,
		"notificationId": n.ID,
		"channel":        channel,
	})

	return &action.Result{
		Success: true,
		Message: fmt.Sprintf("Mensagem enviada para %s por %s", name, label),
		Data: map[string]interface{}{
			"notificacaoId": n.ID,
			"notificacao":   n,
		},
	}, nil
}

func (h *Handler) enabled(channel string) bool {
	if channel == ChannelEmail {
		return h.config.EmailEnabled && h.email != nil
	}
	return h.config.SMSEnabled && h.sms != nil
}

func (h *Handler) deliver(ctx context.Context, channel, destination, message string) (string, error) {
	if channel == ChannelEmail {
		out, err := h.email.SendEmail(ctx, awsclient.TextEmail(h.config.FromEmail, destination, h.config.Subject, message))
		if err != nil {
			return "", err
		}
		return awssdk.ToString(out.MessageId), nil
	}

	input := awsclient.SMSMessage(destination, h.config.SenderID, message)
	if channel == ChannelWhatsApp {
		input.MessageAttributes["canal"] = snstypes.MessageAttributeValue{
			DataType:    awssdk.String("String"),
			StringValue: awssdk.String(ChannelWhatsApp),
		}
	}
	out, err := h.sms.Publish(ctx, input)
	if err != nil {
		return "", err
	}
	return awssdk.ToString(out.MessageId), nil
}

// record is best effort: a delivered message is not failed because its audit
// row could not be written.
func (h *Handler) record(ctx context.Context, rc *action.RequestContext, n *models.Notification) {
	var providerID interface{}
	if n.ProviderID != "" {
		providerID = n.ProviderID
	}
	_, err := h.db.ExecContext(ctx, insertNotificationQuery,
		n.ID, rc.WorkshopID, n.ClientID, n.Channel, n.Destination, n.Message, n.Status, providerID, n.CreatedAt)
	if err != nil {
		h.logger.Warn("failed to record notification", map[string]interface{}{
			"requestId":      rc.RequestID,
			"notificationId": n.ID,
			"error":          err.Error(),
		})
	}
}

// E164 formats a Brazilian phone for SNS. Numbers without a country code get
// countryCode prepended; anything too short yields "".
func E164(phone, countryCode string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	switch {
	case len(digits) < 10:
		return ""
	case len(digits) <= 11:
		return "+" + countryCode + digits
	}
	return "+" + digits
}
