package nlu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"workshop-assistant/internal/models"
)

// Entity names.
const (
	EntityName           = "name"
	EntityPhone          = "phone"
	EntityDate           = "date"
	EntityTime           = "time"
	EntityPlate          = "plate"
	EntityMoney          = "money"
	EntityEmail          = "email"
	EntityOrderNumber    = "orderNumber"
	EntityChannel        = "channel"
	EntityProblem        = "problem"
	EntityPart           = "part"
	EntityServiceType    = "serviceType"
	EntityServiceLabel   = "serviceLabel"
	EntityIsServiceOrder = "isServiceOrder"
	EntityOrderStatus    = "orderStatus"
)

// EntitySet maps entity names to extracted values.
type EntitySet map[string]interface{}

func (e EntitySet) String(key string) string {
	s, _ := e[key].(string)
	return s
}

func (e EntitySet) Bool(key string) bool {
	b, _ := e[key].(bool)
	return b
}

func (e EntitySet) Has(key string) bool {
	switch v := e[key].(type) {
	case string:
		return v != ""
	case nil:
		return false
	default:
		return true
	}
}

func (e EntitySet) Clone() EntitySet {
	out := make(EntitySet, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// bounded wraps a pattern so it only matches whole tokens. Group 1 is the match.
func bounded(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(` + pattern + `)(?:[^\p{L}\p{N}]|$)`)
}

var (
	phonePattern = bounded(`(?:\d{2}\s?)?9?\d{4}-?\d{4}`)
	datePattern  = bounded(`depois de amanhã|depois de amanha|amanhã|amanha|hoje|` +
		`(?:segunda|terça|terca|quarta|quinta|sexta)(?:-feira)?|sábado|sabado|domingo|` +
		`\d{1,2}/\d{1,2}(?:/\d{2,4})?`)
	timePattern        = bounded(`(\d{1,2})(?:h(\d{2})?|:(\d{2}))`)
	plateLegacy        = bounded(`[a-z]{3}-?\d{4}`)
	plateMercosul      = bounded(`[a-z]{3}\d[a-z]\d{2}`)
	moneyPattern       = bounded(`r\$\s?\d{1,3}(?:\.\d{3})*(?:,\d{2})?|\d{1,3}(?:\.\d{3})*,\d{2}|\d+(?:,\d{2})?\sreais`)
	orderNumberPattern = bounded(`(?:os|o\.s|ordem(?: de serviço)?)\s(?:n[º°o]?\s)?#?(\d{1,8})|#(\d{1,8})`)
	emailPattern       = regexp.MustCompile(`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	capitalizedToken   = regexp.MustCompile(`^\p{Lu}\p{Ll}+$`)
)

var channelAliases = []struct {
	alias   string
	channel string
}{
	{"whatsapp", "whatsapp"}, {"zap", "whatsapp"}, {"wpp", "whatsapp"},
	{"e-mail", "email"}, {"email", "email"},
	{"sms", "sms"}, {"mensagem de texto", "sms"},
}

var problemVocabulary = []string{
	"não liga", "nao liga", "não pega", "nao pega", "barulho", "vazamento", "vazando",
	"superaquecendo", "esquentando", "falhando", "trepidando", "trepidação", "rangendo",
	"fumaça", "luz do painel", "luz acesa", "pneu furado", "travando",
}

var partVocabulary = []string{
	"motor", "freio", "freios", "pastilha", "pneu", "pneus", "bateria", "embreagem",
	"radiador", "amortecedor", "correia", "vela", "velas", "filtro", "câmbio", "cambio",
	"direção", "escapamento", "farol", "alternador",
}

var orderStatusVocabulary = []struct {
	phrase string
	status string
}{
	{"aguardando peça", models.OrderStatusWaiting}, {"aguardando peca", models.OrderStatusWaiting},
	{"em andamento", models.OrderStatusInProgress}, {"andamento", models.OrderStatusInProgress},
	{"concluída", models.OrderStatusDone}, {"concluida", models.OrderStatusDone}, {"concluído", models.OrderStatusDone},
	{"concluir", models.OrderStatusDone}, {"finalizada", models.OrderStatusDone}, {"finalizar", models.OrderStatusDone},
	{"pronta", models.OrderStatusDone}, {"pronto", models.OrderStatusDone},
	{"cancelada", models.OrderStatusCancelled}, {"cancelar", models.OrderStatusCancelled}, {"cancelado", models.OrderStatusCancelled},
	{"reabrir", models.OrderStatusOpen}, {"aberta", models.OrderStatusOpen},
}

// Words that start sentences or commands and must never begin a person name.
var nameStopwords = map[string]bool{
	"cliente": true, "senhor": true, "senhora": true, "sr": true, "sra": true, "dona": true, "seu": true,
	"oi": true, "olá": true, "ola": true, "bom": true, "boa": true, "obrigado": true, "obrigada": true,
	"criar": true, "abrir": true, "cadastrar": true, "registrar": true, "buscar": true, "procurar": true,
	"agendar": true, "marcar": true, "avisar": true, "notificar": true, "atualizar": true, "ordem": true,
	"os": true, "para": true, "o": true, "a": true, "por": true, "favor": true, "quero": true, "preciso": true,
	"segunda": true, "terça": true, "quarta": true, "quinta": true, "sexta": true, "sábado": true, "domingo": true,
}

// Extractor pulls entities out of utterances. It holds no state.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract runs every intent-independent pattern. Only the first match of each
// pattern is kept and absent matches omit the key.
func (x *Extractor) Extract(u Utterance) EntitySet {
	text := u.Normalized
	set := EntitySet{}

	if name := extractName(u.Raw); name != "" {
		set[EntityName] = name
	}
	if m := phonePattern.FindStringSubmatch(text); m != nil {
		set[EntityPhone] = m[1]
	}
	if m := datePattern.FindStringSubmatch(text); m != nil {
		set[EntityDate] = m[1]
	}
	if t := extractTime(text); t != "" {
		set[EntityTime] = t
	}
	if p := extractPlate(text); p != "" {
		set[EntityPlate] = p
	}
	if m := moneyPattern.FindStringSubmatch(text); m != nil {
		set[EntityMoney] = m[1]
	}
	if m := emailPattern.FindString(text); m != "" {
		set[EntityEmail] = m
	}
	if m := orderNumberPattern.FindStringSubmatch(text); m != nil {
		if m[2] != "" {
			set[EntityOrderNumber] = m[2]
		} else {
			set[EntityOrderNumber] = m[3]
		}
	}
	for _, c := range channelAliases {
		if containsPhrase(text, c.alias) {
			set[EntityChannel] = c.channel
			break
		}
	}
	if p := earliest(text, problemVocabulary); p != "" {
		set[EntityProblem] = p
	}
	if p := earliest(text, partVocabulary); p != "" {
		set[EntityPart] = p
	}
	return set
}

// Refine applies the intent-conditional rules on top of a generic set. The
// input set is not modified.
func (x *Extractor) Refine(u Utterance, intent Intent, set EntitySet) EntitySet {
	out := set.Clone()
	text := u.Normalized

	switch intent {
	case IntentCreate:
		if kind, ok := MatchService(text); ok {
			out[EntityServiceType] = kind.Phrase
			out[EntityServiceLabel] = kind.Label
		}
		out[EntityIsServiceOrder] = containsPhrase(text, "os") || containsPhrase(text, "ordem") ||
			containsPhrase(text, "o.s")
	case IntentSchedule, IntentDiagnose, IntentSearch:
		if kind, ok := MatchService(text); ok {
			out[EntityServiceType] = kind.Phrase
			out[EntityServiceLabel] = kind.Label
		}
	case IntentUpdate:
		best := -1
		for _, s := range orderStatusVocabulary {
			if idx := phraseIndex(text, s.phrase); idx >= 0 && (best < 0 || idx < best) {
				best = idx
				out[EntityOrderStatus] = s.status
			}
		}
	}
	return out
}

// ExtractFor is Extract followed by Refine.
func (x *Extractor) ExtractFor(u Utterance, intent Intent) EntitySet {
	return x.Refine(u, intent, x.Extract(u))
}

func extractName(raw string) string {
	var tokens []string
	for _, f := range strings.Fields(raw) {
		tokens = append(tokens, strings.Trim(f, ",.:;!?()\"'"))
	}
	for i := 0; i+1 < len(tokens); i++ {
		first, second := tokens[i], tokens[i+1]
		if !capitalizedToken.MatchString(first) || !capitalizedToken.MatchString(second) {
			continue
		}
		if nameStopwords[strings.ToLower(first)] || nameStopwords[strings.ToLower(second)] {
			continue
		}
		return first + " " + second
	}
	return ""
}

func extractTime(text string) string {
	m := timePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	hour, _ := strconv.Atoi(m[2])
	minute := 0
	if mm := m[3] + m[4]; mm != "" {
		minute, _ = strconv.Atoi(mm)
	}
	if hour > 23 || minute > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

func extractPlate(text string) string {
	idx := -1
	var plate string
	for _, re := range []*regexp.Regexp{plateLegacy, plateMercosul} {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		if idx < 0 || loc[2] < idx {
			idx = loc[2]
			plate = text[loc[2]:loc[3]]
		}
	}
	return strings.ToUpper(strings.ReplaceAll(plate, "-", ""))
}

func earliest(text string, vocabulary []string) string {
	best, found := -1, ""
	for _, phrase := range vocabulary {
		if idx := phraseIndex(text, phrase); idx >= 0 && (best < 0 || idx < best) {
			best, found = idx, phrase
		}
	}
	return found
}
