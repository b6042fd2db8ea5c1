// Package composer turns a decision and its execution outcomes into the
// Portuguese reply shown to workshop staff.
package composer

import (
	"fmt"
	"strings"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/assistant/nlu"
	"workshop-assistant/internal/assistant/planner"
	"workshop-assistant/internal/common/errors"
)

// Reply is the composed answer.
type Reply struct {
	Text        string                 `json:"text"`
	Suggestions []string               `json:"suggestions"`
	Metadata    map[string]interface{} `json:"metadata"`
}

var descriptions = map[action.Name]string{
	action.ClientSearch:              "Busca de cliente",
	action.ClientCreate:              "Cadastro de cliente",
	action.VehicleSearch:             "Busca de veículo",
	action.ServiceCreate:             "Ordem de serviço",
	action.ServiceSearch:             "Consulta de ordens",
	action.ServiceUpdate:             "Atualização de ordem",
	action.ScheduleCheckAvailability: "Disponibilidade",
	action.ScheduleBook:              "Agendamento",
	action.NotifySend:                "Notificação",
}

// Describe returns the human-readable label of an action.
func Describe(name action.Name) string {
	if d, ok := descriptions[name]; ok {
		return d
	}
	return string(name)
}

// missingInfo is one class of information the user can be asked for.
type missingInfo struct {
	class   string
	ask     string
	example string
}

var (
	askClient  = missingInfo{class: "cliente", ask: "Informe o nome e o telefone do cliente.", example: "cliente João Silva, telefone 11 98765-4321"}
	askVehicle = missingInfo{class: "veiculo", ask: "Informe a placa ou o modelo do veículo.", example: "placa ABC1D23"}
	askWhen    = missingInfo{class: "horario", ask: "Informe a data e o horário desejados.", example: "amanhã às 14h"}
	askOrder   = missingInfo{class: "ordem", ask: "Informe o número da ordem de serviço.", example: "OS 1234"}
	askStatus  = missingInfo{class: "status", ask: "Informe o novo status da ordem.", example: "concluída"}
	askService = missingInfo{class: "servico", ask: "Informe o tipo de serviço.", example: "troca de óleo"}
	askMessage = missingInfo{class: "mensagem", ask: "Informe a mensagem que devo enviar.", example: "seu carro está pronto para retirada"}
)

var missingByField = map[string]missingInfo{
	action.ParamClientID:    askClient,
	action.ParamName:        askClient,
	action.ParamPhone:       askClient,
	action.ParamVehicleID:   askVehicle,
	action.ParamPlate:       askVehicle,
	action.ParamDate:        askWhen,
	action.ParamTime:        askWhen,
	action.ParamOrderID:     askOrder,
	action.ParamStatus:      askStatus,
	action.ParamServiceType: askService,
	action.ParamServiceKind: askService,
	action.ParamMessage:     askMessage,
}

func missingFor(field string) missingInfo {
	if m, ok := missingByField[field]; ok {
		return m
	}
	return missingInfo{class: field, ask: fmt.Sprintf("Preciso da informação \"%s\" para continuar.", field)}
}

var suggestions = map[nlu.Intent][]string{
	nlu.IntentGreeting:    {"Criar ordem de serviço", "Agendar revisão", "Buscar cliente"},
	nlu.IntentInfoRequest: {"Agendar horário", "Consultar ordens abertas"},
	nlu.IntentCreate:      {"Ver ordens abertas", "Agendar horário", "Avisar cliente"},
	nlu.IntentSearch:      {"Criar ordem de serviço", "Agendar horário"},
	nlu.IntentSchedule:    {"Confirmar agendamento", "Escolher outro horário"},
	nlu.IntentDiagnose:    {"Agendar diagnóstico", "Consultar histórico do veículo"},
	nlu.IntentNotify:      {"Confirmar envio", "Enviar por outro canal"},
	nlu.IntentUpdate:      {"Confirmar atualização", "Avisar cliente"},
	nlu.IntentUnknown:     {"Criar ordem de serviço", "Agendar revisão", "Buscar cliente pela placa"},
}

var intentLabels = map[nlu.Intent]string{
	nlu.IntentCreate:   "criar um cadastro ou ordem de serviço",
	nlu.IntentSearch:   "buscar um cliente, veículo ou ordem",
	nlu.IntentSchedule: "agendar um horário",
	nlu.IntentDiagnose: "registrar um diagnóstico",
	nlu.IntentNotify:   "enviar um aviso ao cliente",
	nlu.IntentUpdate:   "atualizar uma ordem de serviço",
}

type Composer struct{}

func New() *Composer {
	return &Composer{}
}

// Compose builds the reply. outcomes may be partial when d.Interrupted is set.
func (c *Composer) Compose(d *planner.Decision, outcomes []action.Outcome, rc *action.RequestContext) Reply {
	var b strings.Builder
	intent := d.Intent.Type

	meta := map[string]interface{}{
		"intent":               string(intent),
		"confidence":           d.Intent.Confidence,
		"requiresConfirmation": d.RequiresConfirmation,
	}

	switch {
	case intent == nlu.IntentGreeting:
		b.WriteString(greeting(rc))
	case intent == nlu.IntentInfoRequest:
		b.WriteString(info(rc))
	case d.Ambiguous:
		fmt.Fprintf(&b, "Não tenho certeza se entendi. Você quer %s? Pode dar mais detalhes?", intentLabels[intent])
		meta["ambiguous"] = true
	case intent == nlu.IntentUnknown:
		b.WriteString("Desculpe, não entendi. Você pode pedir, por exemplo, para criar uma ordem de serviço, agendar uma revisão ou buscar um cliente.")
	case len(d.Plan) == 0:
		b.WriteString("Preciso de mais informações para continuar.")
		if hint, ok := emptyPlanHint(intent); ok {
			fmt.Fprintf(&b, " %s Exemplo: \"%s\"", hint.ask, hint.example)
			meta["missing"] = []string{hint.class}
		}
	default:
		c.writeOutcomes(&b, d, outcomes, meta)
	}

	return Reply{
		Text:        strings.TrimSpace(b.String()),
		Suggestions: append([]string(nil), suggestions[intent]...),
		Metadata:    meta,
	}
}

func (c *Composer) writeOutcomes(b *strings.Builder, d *planner.Decision, outcomes []action.Outcome, meta map[string]interface{}) {
	b.WriteString(header(d))

	succeeded, failed := 0, 0
	var missing []missingInfo
	seen := map[string]bool{}
	unauthorized := false
	var unavailable, retry []string

	for _, o := range outcomes {
		if o.Succeeded {
			succeeded++
			fmt.Fprintf(b, "\n• %s: %s", Describe(o.Action), outcomeMessage(o))
			continue
		}
		failed++
		switch o.ErrorCode() {
		case errors.ErrCodeMissingParameter:
			for _, field := range o.MissingFields() {
				m := missingFor(field)
				if !seen[m.class] {
					seen[m.class] = true
					missing = append(missing, m)
				}
			}
		case errors.ErrCodeUnauthorized:
			unauthorized = true
		case errors.ErrCodeActionNotFound:
			unavailable = append(unavailable, Describe(o.Action))
		default:
			// business rule rejections carry a message meant for the user
			if o.Payload != nil && o.Payload.Message != "" {
				fmt.Fprintf(b, "\n• %s: %s", Describe(o.Action), o.Payload.Message)
				continue
			}
			retry = append(retry, Describe(o.Action))
		}
	}

	for _, m := range missing {
		fmt.Fprintf(b, "\n%s Exemplo: \"%s\"", m.ask, m.example)
	}
	if unauthorized {
		b.WriteString("\nPara concluir essa ação, faça login com um usuário autorizado da oficina.")
	}
	if len(unavailable) > 0 {
		fmt.Fprintf(b, "\nNo momento não consigo executar: %s.", strings.Join(unavailable, ", "))
	}
	if len(retry) > 0 {
		fmt.Fprintf(b, "\nNão foi possível concluir: %s. Tente novamente em instantes.", strings.Join(retry, ", "))
	}
	if d.Interrupted {
		b.WriteString("\nO atendimento foi interrompido antes de terminar. As etapas listadas acima já foram concluídas.")
	}
	if d.RequiresConfirmation && succeeded > 0 {
		b.WriteString("\nPor favor, confirme se está tudo certo.")
	}

	classes := make([]string, 0, len(missing))
	for _, m := range missing {
		classes = append(classes, m.class)
	}
	meta["succeeded"] = succeeded
	meta["failed"] = failed
	if len(classes) > 0 {
		meta["missing"] = classes
	}
	if d.Interrupted {
		meta["interrupted"] = true
	}
}

func header(d *planner.Decision) string {
	e := d.Entities
	switch d.Intent.Type {
	case nlu.IntentCreate:
		if label := e.String(nlu.EntityServiceLabel); label != "" {
			return fmt.Sprintf("Certo, vou registrar o atendimento de %s.", strings.ToLower(label))
		}
		return "Certo, vou registrar o atendimento."
	case nlu.IntentSearch:
		return "Aqui está o que encontrei:"
	case nlu.IntentSchedule:
		for _, inv := range d.Plan {
			if inv.Action == action.ScheduleBook {
				return fmt.Sprintf("Vamos agendar %s para %s às %s.",
					strings.ToLower(inv.Params.String(action.ParamServiceKind)),
					inv.Params.String(action.ParamDate),
					inv.Params.String(action.ParamTime))
			}
		}
		return "Vamos agendar o atendimento."
	case nlu.IntentDiagnose:
		return "Vou abrir uma ordem de diagnóstico para o veículo."
	case nlu.IntentNotify:
		return "Vou avisar o cliente."
	case nlu.IntentUpdate:
		return "Vou atualizar a ordem de serviço."
	}
	return "Pronto."
}

func emptyPlanHint(intent nlu.Intent) (missingInfo, bool) {
	switch intent {
	case nlu.IntentSchedule:
		return askWhen, true
	case nlu.IntentCreate:
		return askClient, true
	case nlu.IntentSearch:
		return askVehicle, true
	case nlu.IntentUpdate:
		return askOrder, true
	}
	return missingInfo{}, false
}

func outcomeMessage(o action.Outcome) string {
	if o.Payload != nil && o.Payload.Message != "" {
		return o.Payload.Message
	}
	return "concluído"
}

func greeting(rc *action.RequestContext) string {
	name := "da oficina"
	if rc != nil && rc.Workshop != nil && rc.Workshop.Name != "" {
		name = "da " + rc.Workshop.Name
	}
	return fmt.Sprintf("Olá! Sou o assistente %s. Posso criar ordens de serviço, agendar horários, buscar clientes e veículos ou avisar clientes. Como posso ajudar?", name)
}

func info(rc *action.RequestContext) string {
	opening, closing := 8, 18
	if rc != nil && rc.Workshop != nil && rc.Workshop.ClosingHour > rc.Workshop.OpeningHour {
		opening, closing = rc.Workshop.OpeningHour, rc.Workshop.ClosingHour
	}
	return fmt.Sprintf("Funcionamos de segunda a sábado, das %dh às %dh. Fazemos revisão, troca de óleo, freios, suspensão, alinhamento e diagnóstico. Quer agendar um horário?", opening, closing)
}
