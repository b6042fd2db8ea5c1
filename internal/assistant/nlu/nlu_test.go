package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-assistant/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "  Olá!!  Tudo bem?  ", want: "olá tudo bem"},
		{raw: "Às 14:00, ok.", want: "às 14:00 ok"},
		{raw: "Cliente (11) 98765-4321; placa ABC-1234", want: "cliente 11 98765-4321 placa abc-1234"},
		{raw: "Orçamento: R$ 1.500,00.", want: "orçamento r$ 1.500,00"},
		{raw: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u := Normalize(tt.raw)
			assert.Equal(t, tt.want, u.Normalized)
			assert.Equal(t, tt.raw, u.Raw)
		})
	}
}

func TestRulesV1_Greetings(t *testing.T) {
	c := NewRulesV1(DefaultOptions())

	for _, raw := range []string{
		"bom dia",
		"Oi",
		"Boa tarde, quero criar uma ordem de serviço",
		"olá, preciso agendar revisão amanhã às 14h",
		"oi, queria saber dos serviços",
	} {
		t.Run(raw, func(t *testing.T) {
			got := c.Classify(Normalize(raw).Normalized)
			assert.Equal(t, IntentGreeting, got.Type)
			assert.GreaterOrEqual(t, got.Confidence, 0.9)
		})
	}
}

func TestRulesV1_Classify(t *testing.T) {
	c := NewRulesV1(DefaultOptions())

	tests := []struct {
		name       string
		raw        string
		want       Intent
		confidence float64
	}{
		{name: "info request", raw: "Que horas vocês abrem?", want: IntentInfoRequest, confidence: 0.85},
		{name: "service order", raw: "criar ordem de serviço para troca de óleo", want: IntentCreate, confidence: 1},
		{name: "schedule", raw: "agendar revisão para amanhã às 14h", want: IntentSchedule, confidence: 1},
		{name: "search client", raw: "Buscar cliente João Silva", want: IntentSearch, confidence: 1},
		{name: "notify via generic pass", raw: "avisar o cliente que o carro está pronto", want: IntentNotify, confidence: 0.2},
		{name: "diagnose via generic pass", raw: "o carro está fazendo um barulho estranho no motor", want: IntentDiagnose, confidence: 0.25},
		{name: "update via generic pass", raw: "mudar status da os 123 para concluída", want: IntentUpdate, confidence: 0.35},
		{name: "nothing matches", raw: "xyz abc", want: IntentUnknown, confidence: 0},
		{name: "empty", raw: "   ", want: IntentUnknown, confidence: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(Normalize(tt.raw).Normalized)
			assert.Equal(t, tt.want, got.Type)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
		})
	}
}

func TestRulesV1_CreateGate(t *testing.T) {
	c := NewRulesV1(DefaultOptions())

	assert.False(t, CreateRequiresOrderContext.Allows("criar"))
	assert.True(t, CreateRequiresOrderContext.Allows("criar os"))
	assert.Equal(t, "create-requires-order-context", CreateRequiresOrderContext.Name())

	for _, raw := range []string{"criar", "criar um lembrete", "quero criar algo novo"} {
		got := c.Classify(Normalize(raw).Normalized)
		assert.NotEqual(t, IntentCreate, got.Type, raw)
	}
}

func TestRulesV1_TieBrokenByBoost(t *testing.T) {
	c := NewRulesV1(DefaultOptions())

	// search (boost 2) and create (boost 3) both clamp to 1.
	got := c.Classify(Normalize("buscar cliente e criar ordem de serviço").Normalized)
	assert.Equal(t, IntentCreate, got.Type)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
}

func TestRulesV1_CreateBoostCoversRegistrationVerbs(t *testing.T) {
	c := NewRulesV1(DefaultOptions())

	for _, raw := range []string{
		"cadastrar cliente João Silva 11987654321",
		"abrir ordem para troca de óleo",
	} {
		got := c.Classify(Normalize(raw).Normalized)
		assert.Equal(t, IntentCreate, got.Type, raw)
		assert.GreaterOrEqual(t, got.Confidence, 0.3, raw)
	}
}

func TestRulesV1_SpecificThresholdIsTunable(t *testing.T) {
	text := Normalize("avisar o cliente que o carro está pronto").Normalized

	defaults := NewRulesV1(DefaultOptions())
	assert.Equal(t, IntentNotify, defaults.Classify(text).Type)

	// A low threshold keeps the weak specific match and skips the generic pass.
	lenient := NewRulesV1(Options{SpecificThreshold: 0.05})
	assert.Equal(t, IntentSearch, lenient.Classify(text).Type)
}

func TestRulesV1_Idempotent(t *testing.T) {
	c := NewRulesV1(DefaultOptions())
	x := NewExtractor()

	for _, raw := range []string{
		"criar ordem de serviço para troca de óleo",
		"Cliente João Silva, telefone 11 98765-4321, placa ABC1D23",
		"agendar revisão para amanhã às 14h",
	} {
		u := Normalize(raw)
		assert.Equal(t, c.Classify(u.Normalized), c.Classify(u.Normalized))
		first := x.ExtractFor(u, IntentCreate)
		second := x.ExtractFor(u, IntentCreate)
		assert.Equal(t, first, second)
	}
}

func TestNewClassifier(t *testing.T) {
	c, err := NewClassifier(RulesV1Version, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "rules-v1", c.Version())
	assert.Contains(t, Strategies(), RulesV1Version)

	_, err = NewClassifier("bert", DefaultOptions())
	assert.Error(t, err)
}

func TestExtractor_Extract(t *testing.T) {
	x := NewExtractor()

	tests := []struct {
		name string
		raw  string
		want EntitySet
	}{
		{
			name: "client with phone",
			raw:  "Cliente João Silva, telefone (11) 98765-4321",
			want: EntitySet{EntityName: "João Silva", EntityPhone: "11 98765-4321"},
		},
		{
			name: "contiguous phone digits",
			raw:  "cadastrar cliente João Silva 11987654321",
			want: EntitySet{EntityName: "João Silva", EntityPhone: "11987654321"},
		},
		{
			name: "phone without area code",
			raw:  "ligar para 98765-4321",
			want: EntitySet{EntityPhone: "98765-4321"},
		},
		{
			name: "mercosul plate",
			raw:  "buscar placa ABC1D23",
			want: EntitySet{EntityPlate: "ABC1D23"},
		},
		{
			name: "legacy plate",
			raw:  "carro placa abc-1234",
			want: EntitySet{EntityPlate: "ABC1234"},
		},
		{
			name: "money",
			raw:  "orçamento de R$ 1.500,00",
			want: EntitySet{EntityMoney: "r$ 1.500,00"},
		},
		{
			name: "order number",
			raw:  "a OS 4521 está pronta",
			want: EntitySet{EntityOrderNumber: "4521"},
		},
		{
			name: "channel and email",
			raw:  "mandar por whatsapp ou para joao@email.com",
			want: EntitySet{EntityChannel: "whatsapp", EntityEmail: "joao@email.com"},
		},
		{
			name: "numeric date and time",
			raw:  "dia 12/05 às 9h30",
			want: EntitySet{EntityDate: "12/05", EntityTime: "09:30"},
		},
		{
			name: "invalid time is dropped",
			raw:  "às 25h",
			want: EntitySet{},
		},
		{
			name: "problem and part",
			raw:  "barulho no freio",
			want: EntitySet{EntityProblem: "barulho", EntityPart: "freio"},
		},
		{
			name: "only first date kept",
			raw:  "hoje ou amanhã às 10:15",
			want: EntitySet{EntityDate: "hoje", EntityTime: "10:15"},
		},
		{
			name: "greeting is not a name",
			raw:  "Bom Dia",
			want: EntitySet{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, x.Extract(Normalize(tt.raw)))
		})
	}
}

func TestExtractor_RefineCreate(t *testing.T) {
	x := NewExtractor()
	u := Normalize("criar ordem de serviço para troca de óleo")

	generic := x.Extract(u)
	refined := x.Refine(u, IntentCreate, generic)

	assert.Equal(t, "troca de óleo", refined.String(EntityServiceType))
	assert.Equal(t, "Troca de óleo", refined.String(EntityServiceLabel))
	assert.True(t, refined.Bool(EntityIsServiceOrder))
	assert.False(t, generic.Has(EntityServiceType), "refine must not mutate its input")

	other := x.Refine(u, IntentSearch, generic)
	assert.False(t, other.Has(EntityIsServiceOrder))
}

func TestExtractor_RefineUpdate(t *testing.T) {
	x := NewExtractor()
	set := x.ExtractFor(Normalize("mudar status da os 123 para concluída"), IntentUpdate)

	assert.Equal(t, "123", set.String(EntityOrderNumber))
	assert.Equal(t, models.OrderStatusDone, set.String(EntityOrderStatus))
}

func TestMatchService(t *testing.T) {
	tests := []struct {
		text string
		code string
		ok   bool
	}{
		{text: "preciso trocar o óleo", code: "TROCA_OLEO", ok: true},
		{text: "revisão dos freios", code: "REVISAO", ok: true},
		{text: "barulho na pastilha", code: "FREIOS", ok: true},
		{text: "lavar o carro", ok: false},
	}

	for _, tt := range tests {
		kind, ok := MatchService(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.code, kind.Code, tt.text)
	}

	kind, ok := ServiceByPhrase("troca de óleo")
	require.True(t, ok)
	assert.Equal(t, "TROCA_OLEO", kind.Code)
}
