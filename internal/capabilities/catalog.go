// Package capabilities binds the workshop handlers to the capability
// contracts the planner emits and the executor enforces.
package capabilities

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/capabilities/client"
	"workshop-assistant/internal/capabilities/notify"
	"workshop-assistant/internal/capabilities/schedule"
	"workshop-assistant/internal/capabilities/serviceorder"
	"workshop-assistant/internal/capabilities/vehicle"
	"workshop-assistant/internal/common/config"
	"workshop-assistant/internal/common/logger"
)

const (
	PermissionClientsWrite = "clients:write"
	PermissionOrdersWrite  = "orders:write"
)

// Contracts is the static catalog, without invokers.
func Contracts() []action.Definition {
	return []action.Definition{
		{
			Name:           action.ClientSearch,
			Description:    "Busca cliente por telefone ou nome",
			OptionalParams: []string{action.ParamName, action.ParamPhone},
			Keywords:       []string{"cliente", "buscar", "procurar", "telefone", "nome"},
			Examples:       []string{"buscar cliente João Silva", "cliente com telefone 11 98765-4321"},
		},
		{
			Name:           action.ClientCreate,
			Description:    "Cadastra um novo cliente",
			RequiredParams: []string{action.ParamName, action.ParamPhone},
			OptionalParams: []string{action.ParamEmail},
			RequiresAuth:   true,
			Permissions:    []string{PermissionClientsWrite},
			Keywords:       []string{"cliente", "cadastrar", "novo", "registrar"},
			Examples:       []string{"cadastrar cliente Maria Souza telefone 11 91234-5678"},
		},
		{
			Name:           action.VehicleSearch,
			Description:    "Busca veículo e proprietário pela placa",
			RequiredParams: []string{action.ParamPlate},
			Keywords:       []string{"veículo", "veiculo", "carro", "placa"},
			Examples:       []string{"buscar placa ABC1D23"},
		},
		{
			Name:           action.ServiceCreate,
			Description:    "Abre uma ordem de serviço",
			RequiredParams: []string{action.ParamClientID, action.ParamVehicleID, action.ParamServiceType},
			OptionalParams: []string{action.ParamDescription, action.ParamPlate, action.ParamPriority},
			RequiresAuth:   true,
			Permissions:    []string{PermissionOrdersWrite},
			Keywords:       []string{"ordem", "os", "serviço", "servico", "abrir", "criar"},
			Examples:       []string{"criar OS de troca de óleo para o cliente João Silva"},
		},
		{
			Name:           action.ServiceSearch,
			Description:    "Consulta ordens de serviço por número, termo, placa ou status",
			OptionalParams: []string{action.ParamTerm, action.ParamPlate, action.ParamOrderID, action.ParamStatus},
			Keywords:       []string{"ordem", "os", "consultar", "status", "buscar"},
			Examples:       []string{"status da OS 1234", "ordens abertas da placa ABC1D23"},
		},
		{
			Name:           action.ServiceUpdate,
			Description:    "Atualiza o status de uma ordem de serviço",
			RequiredParams: []string{action.ParamOrderID, action.ParamStatus},
			RequiresAuth:   true,
			Permissions:    []string{PermissionOrdersWrite},
			Keywords:       []string{"ordem", "os", "atualizar", "status", "concluir", "cancelar"},
			Examples:       []string{"marcar a OS 1234 como concluída"},
		},
		{
			Name:           action.ScheduleCheckAvailability,
			Description:    "Verifica se um horário está livre",
			RequiredParams: []string{action.ParamDate, action.ParamTime},
			Keywords:       []string{"horário", "horario", "disponível", "disponivel", "agenda"},
			Examples:       []string{"tem horário amanhã às 14h?"},
		},
		{
			Name:           action.ScheduleBook,
			Description:    "Agenda um atendimento",
			RequiredParams: []string{action.ParamDate, action.ParamTime, action.ParamServiceKind},
			OptionalParams: []string{action.ParamClientID},
			RequiresAuth:   true,
			Keywords:       []string{"agendar", "marcar", "agendamento", "horário", "horario"},
			Examples:       []string{"agendar revisão para amanhã às 14h"},
		},
		{
			Name:           action.NotifySend,
			Description:    "Envia uma mensagem ao cliente por WhatsApp, SMS ou e-mail",
			RequiredParams: []string{action.ParamClientID, action.ParamMessage},
			OptionalParams: []string{action.ParamChannel},
			RequiresAuth:   true,
			Keywords:       []string{"avisar", "notificar", "mensagem", "whatsapp", "email", "sms"},
			Examples:       []string{"avisar o cliente João Silva que o carro está pronto"},
		},
	}
}

// Handlers holds the concrete capability implementations. A nil handler
// leaves its capabilities unregistered.
type Handlers struct {
	Client       *client.Handler
	Vehicle      *vehicle.Handler
	ServiceOrder *serviceorder.Handler
	Schedule     *schedule.Handler
	Notify       *notify.Handler
}

// Dependencies are the collaborators the handlers are built on.
type Dependencies struct {
	DB     *sql.DB
	Redis  *redis.Client
	Search serviceorder.SearchIndex
	Email  notify.EmailSender
	SMS    notify.SMSSender
}

// NewHandlers builds every handler from cfg.
func NewHandlers(cfg *config.Config, deps Dependencies, log logger.Logger) Handlers {
	orderCfg := serviceorder.LoadConfig()
	if cfg.Database.Elasticsearch.OrdersIndex != "" {
		orderCfg.OrdersIndex = cfg.Database.Elasticsearch.OrdersIndex
	}

	notifyCfg := notify.LoadConfig()
	notifyCfg.EmailEnabled = cfg.Notifications.Email.Enabled
	notifyCfg.FromEmail = cfg.Notifications.Email.FromEmail
	notifyCfg.SMSEnabled = cfg.Notifications.SMS.Enabled
	notifyCfg.SenderID = cfg.Notifications.SMS.SenderID

	return Handlers{
		Client:       client.NewHandler(client.LoadConfig(), deps.DB, deps.Redis, log),
		Vehicle:      vehicle.NewHandler(vehicle.LoadConfig(), deps.DB, log),
		ServiceOrder: serviceorder.NewHandler(orderCfg, deps.DB, deps.Search, log),
		Schedule:     schedule.NewHandler(schedule.LoadConfig(), deps.DB, log),
		Notify:       notify.NewHandler(notifyCfg, deps.DB, deps.Email, deps.SMS, log),
	}
}

func (h Handlers) invokers() map[action.Name]action.Invoker {
	out := make(map[action.Name]action.Invoker)
	if h.Client != nil {
		out[action.ClientSearch] = action.InvokerFunc(h.Client.Search)
		out[action.ClientCreate] = action.InvokerFunc(h.Client.Create)
	}
	if h.Vehicle != nil {
		out[action.VehicleSearch] = action.InvokerFunc(h.Vehicle.Search)
	}
	if h.ServiceOrder != nil {
		out[action.ServiceCreate] = action.InvokerFunc(h.ServiceOrder.Create)
		out[action.ServiceSearch] = action.InvokerFunc(h.ServiceOrder.Search)
		out[action.ServiceUpdate] = action.InvokerFunc(h.ServiceOrder.Update)
	}
	if h.Schedule != nil {
		out[action.ScheduleCheckAvailability] = action.InvokerFunc(h.Schedule.CheckAvailability)
		out[action.ScheduleBook] = action.InvokerFunc(h.Schedule.Book)
	}
	if h.Notify != nil {
		out[action.NotifySend] = action.InvokerFunc(h.Notify.Send)
	}
	return out
}

// Build registers every enabled capability that has a handler and seals the
// registry. Capabilities disabled in config are left out, so the executor
// reports them as not found.
func Build(cfg *config.Config, h Handlers, log logger.Logger) (*action.Registry, error) {
	invokers := h.invokers()
	registry := action.NewRegistry()

	for _, def := range Contracts() {
		name := string(def.Name)
		if !config.IsCapabilityEnabled(cfg, name) {
			log.Info("capability disabled", map[string]interface{}{"capability": name})
			continue
		}
		invoker, ok := invokers[def.Name]
		if !ok {
			log.Warn("capability has no handler", map[string]interface{}{"capability": name})
			continue
		}
		if capCfg, exists := config.CapabilityFor(cfg, name); exists && capCfg.Timeout > 0 {
			invoker = withTimeout(invoker, config.GetDuration(capCfg.Timeout))
		}
		def.Invoker = invoker
		if err := registry.Register(def.Name, def); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}

	registry.Seal()
	log.Info("capability registry sealed", map[string]interface{}{"capabilities": registry.Len()})
	return registry, nil
}

func withTimeout(inner action.Invoker, timeout time.Duration) action.Invoker {
	return action.InvokerFunc(func(ctx context.Context, params action.Params, rc *action.RequestContext) (*action.Result, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return inner.Invoke(ctx, params, rc)
	})
}
