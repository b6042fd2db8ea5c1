package nlu

import (
	"regexp"
	"strings"
)

const RulesV1Version = "rules-v1"

var greetingPhrases = []string{
	"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "e aí", "e ai", "eae",
	"opa", "hello", "tudo bem", "tudo bom",
}

var infoPhrases = []string{
	"quanto custa", "qual o preço", "qual o valor", "quais serviços", "quais os serviços",
	"que horas", "horário de funcionamento", "horario de funcionamento", "onde fica",
	"como funciona", "vocês fazem", "voces fazem", "queria saber", "gostaria de saber",
	"informação", "informações", "informacao",
}

var timeTokenPattern = regexp.MustCompile(`^(?:\d{1,2}(?:h\d{0,2}|:\d{2})|\d{1,2}/\d{1,2}(?:/\d{2,4})?)$`)

var scheduleTimeWords = map[string]bool{
	"hoje": true, "amanhã": true, "amanha": true, "segunda": true, "terça": true, "terca": true,
	"quarta": true, "quinta": true, "sexta": true, "sábado": true, "sabado": true, "domingo": true,
	"manhã": true, "tarde": true, "noite": true, "semana": true, "hora": true, "horas": true,
}

// mustHave is a precision gate: an intent whose gate does not pass scores 0.
type mustHave struct {
	name   string
	tokens []string
}

func (g mustHave) Name() string { return g.name }

func (g mustHave) Allows(text string) bool {
	for _, t := range g.tokens {
		if containsPhrase(text, t) {
			return true
		}
	}
	return false
}

// CreateRequiresOrderContext keeps bare "criar" requests from being read as
// service order or client creation.
var CreateRequiresOrderContext = mustHave{
	name:   "create-requires-order-context",
	tokens: []string{"os", "ordem", "cliente", "cadastrar"},
}

type specificIntent struct {
	intent   Intent
	triggers []string
	keywords []string
	timed    bool
	gate     *mustHave
	boost    func(text string) float64
}

type genericIntent struct {
	intent       Intent
	keywords     []string
	entityTokens []string
	base         float64
}

// RulesV1 is the deterministic keyword/trigger scoring strategy.
type RulesV1 struct {
	opts     Options
	specific []specificIntent
	generic  []genericIntent
}

func NewRulesV1(opts Options) *RulesV1 {
	if opts.SpecificThreshold <= 0 {
		opts.SpecificThreshold = DefaultOptions().SpecificThreshold
	}

	searchTriggers := []string{"buscar", "procurar", "pesquisar", "consultar", "encontrar", "localizar", "mostrar", "listar"}
	searchKeywords := []string{"cliente", "veículo", "veiculo", "carro", "placa", "ordem", "os", "histórico", "telefone", "status"}
	scheduleTriggers := []string{"agendar", "marcar", "agendamento", "reservar", "remarcar"}
	createTriggers := []string{"criar", "abrir", "cadastrar", "registrar", "nova", "novo"}

	return &RulesV1{
		opts: opts,
		specific: []specificIntent{
			{
				intent:   IntentSearch,
				triggers: searchTriggers,
				keywords: searchKeywords,
				boost: func(text string) float64 {
					if anyPhrase(text, searchTriggers) && (anyPhrase(text, searchKeywords) || extractPlate(text) != "") {
						return 2
					}
					return 1
				},
			},
			{
				intent:   IntentSchedule,
				triggers: scheduleTriggers,
				keywords: []string{"revisão", "horário", "data", "dia", "serviço", "visita"},
				timed:    true,
				boost: func(text string) float64 {
					if anyPhrase(text, scheduleTriggers) && countTimeTokens(text) > 0 {
						return 2
					}
					return 1
				},
			},
			{
				intent:   IntentCreate,
				triggers: createTriggers,
				keywords: []string{"ordem", "os", "serviço", "cliente", "veículo", "carro", "troca", "óleo", "revisão"},
				gate:     &CreateRequiresOrderContext,
				// Any creation verb next to an order or client token earns the
				// full boost, so "cadastrar cliente" ranks like "criar os".
				boost: func(text string) float64 {
					if anyPhrase(text, createTriggers) && anyPhrase(text, []string{"os", "ordem", "cliente"}) {
						return 3
					}
					return 0.5
				},
			},
		},
		generic: []genericIntent{
			{
				intent:       IntentNotify,
				keywords:     []string{"avisar", "notificar", "enviar", "mandar", "mensagem", "whatsapp", "email", "sms", "lembrete", "comunicar", "lembrar"},
				entityTokens: []string{"cliente", "telefone", "pronto", "pronta", "retirada"},
				base:         0.8,
			},
			{
				intent: IntentDiagnose,
				keywords: []string{"diagnóstico", "diagnostico", "barulho", "problema", "defeito", "vazamento",
					"não liga", "nao liga", "falhando", "estranho", "rangendo", "fumaça", "superaquecendo", "luz do painel"},
				entityTokens: []string{"motor", "freio", "freios", "bateria", "embreagem", "suspensão", "pneu", "carro"},
				base:         0.75,
			},
			{
				intent:       IntentUpdate,
				keywords:     []string{"atualizar", "alterar", "mudar", "status", "concluir", "concluída", "concluida", "finalizar", "cancelar", "andamento"},
				entityTokens: []string{"os", "ordem", "pronta"},
				base:         0.7,
			},
		},
	}
}

func (r *RulesV1) Version() string {
	return RulesV1Version
}

// Classify short-circuits on greetings and info requests, then runs the
// specific pass and, when it stays under the threshold, the generic pass.
func (r *RulesV1) Classify(text string) IntentResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return IntentResult{Type: IntentUnknown}
	}
	if anyPhrase(text, greetingPhrases) {
		return IntentResult{Type: IntentGreeting, Confidence: 0.9}
	}
	if anyPhrase(text, infoPhrases) {
		return IntentResult{Type: IntentInfoRequest, Confidence: 0.85}
	}

	wordCount := len(strings.Fields(text))
	best := IntentResult{Type: IntentUnknown}
	bestBoost := 0.0

	for _, def := range r.specific {
		confidence, boost := r.scoreSpecific(def, text, wordCount)
		if confidence <= 0 {
			continue
		}
		if confidence > best.Confidence || (confidence == best.Confidence && boost > bestBoost) {
			best = IntentResult{Type: def.intent, Confidence: confidence}
			bestBoost = boost
		}
	}

	if best.Confidence < r.opts.SpecificThreshold {
		for _, def := range r.generic {
			if confidence := scoreGeneric(def, text, wordCount); confidence > best.Confidence {
				best = IntentResult{Type: def.intent, Confidence: confidence}
			}
		}
	}

	if best.Confidence <= 0 {
		return IntentResult{Type: IntentUnknown}
	}
	return best
}

func (r *RulesV1) scoreSpecific(def specificIntent, text string, wordCount int) (float64, float64) {
	if def.gate != nil && !def.gate.Allows(text) {
		return 0, 0
	}

	boost := def.boost(text)
	score := 0.0
	for _, t := range def.triggers {
		if containsPhrase(text, t) {
			score += 3 * boost
		}
	}
	for _, k := range def.keywords {
		if containsPhrase(text, k) {
			score += boost
		}
	}
	if def.timed {
		score += 2 * float64(countTimeTokens(text))
	}
	if score == 0 {
		return 0, boost
	}

	confidence := score / float64(wordCount+len(def.keywords)) * boost
	return clamp(confidence), boost
}

func scoreGeneric(def genericIntent, text string, wordCount int) float64 {
	score := 0.0
	for _, k := range def.keywords {
		if containsPhrase(text, k) {
			score++
		}
	}
	for _, e := range def.entityTokens {
		if containsPhrase(text, e) {
			score += 0.5
		}
	}
	if score == 0 || wordCount == 0 {
		return 0
	}
	return clamp(score / float64(wordCount) * def.base)
}

func countTimeTokens(text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		if scheduleTimeWords[w] || timeTokenPattern.MatchString(w) {
			n++
		}
	}
	return n
}

func anyPhrase(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
