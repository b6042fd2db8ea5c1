package notify

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: awssdk.String("ses-1")}, nil
}

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: awssdk.String("sns-1")}, nil
}

func createTestConfig() *Config {
	return &Config{
		Timeout:        time.Second,
		EmailEnabled:   true,
		SMSEnabled:     true,
		FromEmail:      "oficina@example.com",
		SenderID:       "OFICINA",
		Subject:        "Atualização da sua oficina",
		DefaultChannel: ChannelWhatsApp,
		CountryCode:    "55",
	}
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func contactRows(name, phone, email string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"name", "phone", "email"}).AddRow(name, phone, email)
}

func requestContext() *action.RequestContext {
	return action.NewRequestContext("s1", "w1", &action.User{ID: "u1"})
}

func sendParams(channel string) action.Params {
	p := action.Params{action.ParamClientID: "c-1", action.ParamMessage: "Seu carro está pronto"}
	if channel != "" {
		p[action.ParamChannel] = channel
	}
	return p
}

// ==========================
// Send
// ==========================

func TestE164(t *testing.T) {
	assert.Equal(t, "+5511987654321", E164("(11) 98765-4321", "55"))
	assert.Equal(t, "+551133334444", E164("11 3333-4444", "55"))
	assert.Equal(t, "+5511987654321", E164("+55 11 98765-4321", "55"))
	assert.Equal(t, "", E164("98765-4321", "55"))
}

func TestHandler_Send_DefaultChannelIsWhatsApp(t *testing.T) {
	db, mock := setupMockDB(t)
	snsClient := &fakeSNS{}

	mock.ExpectQuery("FROM clients").WithArgs("w1", "c-1").
		WillReturnRows(contactRows("João Silva", "11 98765-4321", ""))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "w1", "c-1", ChannelWhatsApp, "+5511987654321", "Seu carro está pronto",
			StatusSent, "sns-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	h := NewHandler(createTestConfig(), db, &fakeSES{}, snsClient, logger.NewTestLogger(t))
	res, err := h.Send(context.Background(), sendParams(""), requestContext())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Mensagem enviada para João Silva por WhatsApp", res.Message)
	require.Len(t, snsClient.inputs, 1)
	assert.Equal(t, "+5511987654321", awssdk.ToString(snsClient.inputs[0].PhoneNumber))
	assert.Equal(t, ChannelWhatsApp, awssdk.ToString(snsClient.inputs[0].MessageAttributes["canal"].StringValue))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Send_Email(t *testing.T) {
	db, mock := setupMockDB(t)
	sesClient := &fakeSES{}

	mock.ExpectQuery("FROM clients").WillReturnRows(contactRows("Ana", "11 91111-2222", "ana@email.com"))
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(1, 1))

	h := NewHandler(createTestConfig(), db, sesClient, &fakeSNS{}, logger.NewNoOpLogger())
	res, err := h.Send(context.Background(), sendParams("EMAIL"), requestContext())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Mensagem enviada para Ana por e-mail", res.Message)
	require.Len(t, sesClient.inputs, 1)
	assert.Equal(t, []string{"ana@email.com"}, sesClient.inputs[0].Destination.ToAddresses)
	assert.Equal(t, "oficina@example.com", awssdk.ToString(sesClient.inputs[0].Source))
}

func TestHandler_Send_BusinessFailures(t *testing.T) {
	tests := []struct {
		name      string
		channel   string
		config    func(c *Config)
		setupMock func(mock sqlmock.Sqlmock)
		wantError string
	}{
		{
			name:      "unknown channel",
			channel:   "pombo",
			setupMock: func(sqlmock.Sqlmock) {},
			wantError: CodeUnsupportedChannel,
		},
		{
			name: "unknown client",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM clients").WillReturnRows(sqlmock.NewRows([]string{"name", "phone", "email"}))
			},
			wantError: CodeClientNotFound,
		},
		{
			name:    "no e-mail on file",
			channel: ChannelEmail,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM clients").WillReturnRows(contactRows("João", "11 98765-4321", ""))
			},
			wantError: CodeNoContact,
		},
		{
			name:    "sms disabled",
			channel: ChannelSMS,
			config:  func(c *Config) { c.SMSEnabled = false },
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM clients").WillReturnRows(contactRows("João", "11 98765-4321", ""))
				mock.ExpectExec("INSERT INTO notifications").
					WithArgs(sqlmock.AnyArg(), "w1", "c-1", ChannelSMS, "+5511987654321", sqlmock.AnyArg(),
						StatusDisabled, nil, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
			wantError: CodeChannelDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			tt.setupMock(mock)
			cfg := createTestConfig()
			if tt.config != nil {
				tt.config(cfg)
			}
			snsClient := &fakeSNS{}

			h := NewHandler(cfg, db, &fakeSES{}, snsClient, logger.NewNoOpLogger())
			res, err := h.Send(context.Background(), sendParams(tt.channel), requestContext())

			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantError, res.Error)
			assert.Empty(t, snsClient.inputs)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_Send_DeliveryFailureIsRecorded(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery("FROM clients").WillReturnRows(contactRows("João", "11 98765-4321", ""))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "w1", "c-1", ChannelSMS, sqlmock.AnyArg(), sqlmock.AnyArg(),
			StatusFailed, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	h := NewHandler(createTestConfig(), db, nil, &fakeSNS{err: errors.New("throttled")}, logger.NewNoOpLogger())
	_, err := h.Send(context.Background(), sendParams("sms"), requestContext())

	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Send_RecordFailureDoesNotFailDelivery(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery("FROM clients").WillReturnRows(contactRows("João", "11 98765-4321", ""))
	mock.ExpectExec("INSERT INTO notifications").WillReturnError(errors.New("disk full"))

	h := NewHandler(createTestConfig(), db, nil, &fakeSNS{}, logger.NewNoOpLogger())
	res, err := h.Send(context.Background(), sendParams("sms"), requestContext())

	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestHandler_Send_QueryError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery("FROM clients").WillReturnError(errors.New("connection refused"))

	h := NewHandler(createTestConfig(), db, nil, &fakeSNS{}, logger.NewNoOpLogger())
	_, err := h.Send(context.Background(), sendParams(""), requestContext())

	assert.ErrorIs(t, err, ErrQueryFailed)
}
