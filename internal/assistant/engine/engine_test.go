package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/assistant/nlu"
	"workshop-assistant/internal/common/errors"
	"workshop-assistant/internal/common/logger"
)

type calls []action.Name

func stub(log *calls, name action.Name, result *action.Result) action.Invoker {
	return action.InvokerFunc(func(_ context.Context, _ action.Params, _ *action.RequestContext) (*action.Result, error) {
		*log = append(*log, name)
		return result, nil
	})
}

func workshopRegistry(log *calls) *action.Registry {
	reg := action.NewRegistry()
	reg.MustRegister(action.ClientSearch, action.Definition{
		Invoker: stub(log, action.ClientSearch, &action.Result{Success: true, Message: "Nenhum cliente encontrado", Data: map[string]interface{}{"total": 0}}),
	})
	reg.MustRegister(action.ClientCreate, action.Definition{
		RequiredParams: []string{action.ParamName, action.ParamPhone},
		Invoker:        stub(log, action.ClientCreate, &action.Result{Success: true, Message: "Cliente cadastrado", Data: map[string]interface{}{action.ParamClientID: "c-new"}}),
	})
	reg.MustRegister(action.ServiceCreate, action.Definition{
		RequiredParams: []string{action.ParamClientID, action.ParamVehicleID, action.ParamServiceType},
		Invoker:        stub(log, action.ServiceCreate, &action.Result{Success: true, Message: "OS criada"}),
	})
	reg.MustRegister(action.ScheduleCheckAvailability, action.Definition{
		RequiredParams: []string{action.ParamDate, action.ParamTime},
		Invoker:        stub(log, action.ScheduleCheckAvailability, &action.Result{Success: true, Message: "Horário disponível"}),
	})
	reg.MustRegister(action.ScheduleBook, action.Definition{
		RequiredParams: []string{action.ParamDate, action.ParamTime, action.ParamServiceKind},
		Invoker:        stub(log, action.ScheduleBook, &action.Result{Success: true, Message: "Agendamento registrado"}),
	})
	reg.MustRegister(action.NotifySend, action.Definition{
		RequiredParams: []string{action.ParamClientID, action.ParamMessage},
		Invoker:        stub(log, action.NotifySend, &action.Result{Success: true}),
	})
	reg.Seal()
	return reg
}

func defaultOptions() Options {
	return Options{MinConfidence: 0.15, AmbiguityPenalty: 0.5, ExecuteTimeout: time.Second}
}

func TestProcessMessage_ScheduleEndToEnd(t *testing.T) {
	var log calls
	eng := New(Dependencies{Registry: workshopRegistry(&log)}, defaultOptions(), logger.NewTestLogger(t))

	res := eng.ProcessMessage(context.Background(), "agendar revisão para amanhã às 14h", action.NewRequestContext("s1", "w1", nil))

	require.True(t, res.Success)
	assert.Equal(t, nlu.IntentSchedule, res.Intent.Type)
	assert.True(t, res.RequiresConfirmation)
	assert.Equal(t, calls{action.ScheduleCheckAvailability, action.ScheduleBook}, log)
	require.Len(t, res.ActionsExecuted, 2)
	for _, o := range res.ActionsExecuted {
		assert.True(t, o.Succeeded, string(o.Action))
	}
	assert.Contains(t, res.Response.Text, "Vamos agendar revisão geral para amanhã às 14:00.")
	assert.Contains(t, res.Response.Text, "confirme")
	assert.InDelta(t, 1.0, res.DecisionConfidence, 1e-9)
	assert.Empty(t, res.FallbackResponse)
}

func TestProcessMessage_FindOrCreateClient(t *testing.T) {
	var log calls
	eng := New(Dependencies{Registry: workshopRegistry(&log)}, defaultOptions(), logger.NewNoOpLogger())

	res := eng.ProcessMessage(context.Background(),
		"Criar OS de revisão para o cliente João Silva, telefone 11 98765-4321",
		action.NewRequestContext("s1", "w1", &action.User{ID: "u1"}))

	require.True(t, res.Success)
	assert.Equal(t, calls{action.ClientSearch, action.ClientCreate}, log)
	require.Len(t, res.ActionsExecuted, 3)

	order := res.ActionsExecuted[2]
	assert.Equal(t, action.ServiceCreate, order.Action)
	assert.Equal(t, errors.ErrCodeMissingParameter, order.ErrorCode())
	assert.Equal(t, action.ParamVehicleID, order.Error.Field(), "clienteId came from client.create")

	assert.Contains(t, res.Response.Text, "• Cadastro de cliente: Cliente cadastrado")
	assert.Contains(t, res.Response.Text, "placa ABC1D23")
	assert.NotContains(t, res.Response.Text, "MISSING_PARAMETER")
}

func TestProcessMessage_DiagnoseAsksForClientAndVehicle(t *testing.T) {
	var log calls
	eng := New(Dependencies{Registry: workshopRegistry(&log)}, defaultOptions(), logger.NewNoOpLogger())

	res := eng.ProcessMessage(context.Background(),
		"o carro está fazendo um barulho estranho no motor",
		action.NewRequestContext("s1", "w1", &action.User{ID: "u1"}))

	require.True(t, res.Success)
	assert.Equal(t, nlu.IntentDiagnose, res.Intent.Type)
	assert.Empty(t, log)
	require.Len(t, res.ActionsExecuted, 1)

	order := res.ActionsExecuted[0]
	assert.Equal(t, errors.ErrCodeMissingParameter, order.ErrorCode())
	assert.Equal(t, []string{action.ParamClientID, action.ParamVehicleID}, order.Missing)

	assert.Contains(t, res.Response.Text, "nome e o telefone do cliente")
	assert.Contains(t, res.Response.Text, "placa ou o modelo do veículo")
	assert.Equal(t, []string{"cliente", "veiculo"}, res.Response.Metadata["missing"])
}

func TestProcessMessage_AmbiguousSkipsExecution(t *testing.T) {
	var log calls
	opts := defaultOptions()
	opts.MinConfidence = 0.3
	eng := New(Dependencies{Registry: workshopRegistry(&log)}, opts, logger.NewNoOpLogger())

	res := eng.ProcessMessage(context.Background(), "avisar o cliente que o carro está pronto", nil)

	require.True(t, res.Success)
	assert.Equal(t, nlu.IntentNotify, res.Intent.Type)
	assert.Empty(t, log)
	assert.Empty(t, res.ActionsExecuted)
	assert.InDelta(t, 0.1, res.DecisionConfidence, 1e-9)
	assert.Contains(t, res.Response.Text, "Não tenho certeza")
}

func TestProcessMessage_GreetingPlansNothing(t *testing.T) {
	var log calls
	eng := New(Dependencies{Registry: workshopRegistry(&log)}, defaultOptions(), logger.NewNoOpLogger())

	res := eng.ProcessMessage(context.Background(), "Bom dia, quero criar uma ordem de serviço", nil)

	require.True(t, res.Success)
	assert.Equal(t, nlu.IntentGreeting, res.Intent.Type)
	assert.Empty(t, log)
	assert.NotNil(t, res.ActionsExecuted)
	assert.Contains(t, res.Response.Text, "Olá!")
}

type enricherFunc func(ctx context.Context, base *action.RequestContext) (*action.RequestContext, error)

func (f enricherFunc) Enrich(ctx context.Context, base *action.RequestContext) (*action.RequestContext, error) {
	return f(ctx, base)
}

func TestProcessMessage_EnrichmentFailureDegrades(t *testing.T) {
	var log calls
	eng := New(Dependencies{
		Registry: workshopRegistry(&log),
		Enricher: enricherFunc(func(context.Context, *action.RequestContext) (*action.RequestContext, error) {
			return nil, fmt.Errorf("redis: connection refused")
		}),
	}, defaultOptions(), logger.NewNoOpLogger())

	base := action.NewRequestContext("s1", "w1", nil)
	res := eng.ProcessMessage(context.Background(), "agendar revisão para amanhã às 14h", base)

	require.True(t, res.Success)
	assert.Len(t, res.ActionsExecuted, 2)
	assert.Empty(t, res.ContextSourcesUsed)
	assert.Nil(t, base.Error, "base context is never modified")
}

func TestProcessMessage_PanicYieldsPoliteFallback(t *testing.T) {
	eng := New(Dependencies{
		Registry: action.NewRegistry(),
		Enricher: enricherFunc(func(context.Context, *action.RequestContext) (*action.RequestContext, error) {
			panic("nil map write")
		}),
	}, defaultOptions(), logger.NewNoOpLogger())

	res := eng.ProcessMessage(context.Background(), "oi", nil)

	require.False(t, res.Success)
	assert.Equal(t, FallbackResponse, res.FallbackResponse)
	assert.NotContains(t, res.FallbackResponse, "nil map")
	require.NotNil(t, res.Error)
	assert.Equal(t, errors.ErrCodeInternal, res.Error.Code)
	assert.Nil(t, res.Response)
}

func TestProcessMessage_TimeoutKeepsPartialOutcomes(t *testing.T) {
	reg := action.NewRegistry()
	reg.MustRegister(action.ScheduleCheckAvailability, action.Definition{
		Invoker: action.InvokerFunc(func(ctx context.Context, _ action.Params, _ *action.RequestContext) (*action.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})
	reg.MustRegister(action.ScheduleBook, action.Definition{
		Invoker: action.InvokerFunc(func(context.Context, action.Params, *action.RequestContext) (*action.Result, error) {
			return &action.Result{Success: true}, nil
		}),
	})

	opts := defaultOptions()
	opts.ExecuteTimeout = 20 * time.Millisecond
	eng := New(Dependencies{Registry: reg}, opts, logger.NewNoOpLogger())

	res := eng.ProcessMessage(context.Background(), "agendar revisão para amanhã às 14h", nil)

	require.True(t, res.Success)
	require.Len(t, res.ActionsExecuted, 1)
	assert.Equal(t, errors.ErrCodeCollaboratorFailure, res.ActionsExecuted[0].ErrorCode())
	assert.Contains(t, res.Response.Text, "interrompido")
}

type recorderSpy struct {
	records []Record
}

func (r *recorderSpy) Record(_ context.Context, rec Record) {
	r.records = append(r.records, rec)
}

func TestProcessMessage_RecordsInteraction(t *testing.T) {
	var log calls
	spy := &recorderSpy{}
	eng := New(Dependencies{Registry: workshopRegistry(&log), Recorder: spy}, defaultOptions(), logger.NewNoOpLogger())

	res := eng.ProcessMessage(context.Background(), "agendar revisão para amanhã às 14h", action.NewRequestContext("s1", "w1", nil))

	require.Len(t, spy.records, 1)
	rec := spy.records[0]
	assert.Equal(t, "agendar revisão para amanhã às 14h", rec.Utterance)
	assert.Equal(t, res.Response.Text, rec.Decision.ResponseText)
	assert.Len(t, rec.Outcomes, 2)
	assert.True(t, rec.Success)
}

func TestResult_PublicDropsDetails(t *testing.T) {
	res := &Result{
		Error: errors.NewInternalError("panic: boom"),
		ActionsExecuted: []action.Outcome{
			{Action: action.ClientSearch, Error: errors.NewCollaboratorFailureError("client.search", "dial tcp: connection refused")},
			{Action: action.ServiceCreate, Error: errors.NewMissingParameterError("service.create", action.ParamVehicleID)},
			{Action: action.ScheduleBook, Succeeded: true},
		},
		FallbackResponse: FallbackResponse,
	}

	public := res.Public()

	assert.Empty(t, public.Error.Details)
	assert.Equal(t, errors.ErrCodeInternal, public.Error.Code)
	assert.Empty(t, public.ActionsExecuted[0].Error.Details)
	assert.Equal(t, action.ParamVehicleID, public.ActionsExecuted[1].Error.Field())
	assert.Nil(t, public.ActionsExecuted[2].Error)

	assert.Equal(t, "panic: boom", res.Error.Details, "the original keeps its details for logging")
	assert.Equal(t, "dial tcp: connection refused", res.ActionsExecuted[0].Error.Details)
}
