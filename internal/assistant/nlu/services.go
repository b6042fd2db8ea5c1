package nlu

// ServiceKind maps free-text service phrases to a canonical service code.
type ServiceKind struct {
	Phrase  string
	Code    string
	Label   string
	Aliases []string
}

// Catalog order decides which kind wins when a text mentions several.
var serviceKinds = []ServiceKind{
	{Phrase: "troca de óleo", Code: "TROCA_OLEO", Label: "Troca de óleo", Aliases: []string{"troca de óleo", "troca de oleo", "trocar o óleo", "trocar óleo", "óleo", "oleo"}},
	{Phrase: "revisão", Code: "REVISAO", Label: "Revisão geral", Aliases: []string{"revisão", "revisao"}},
	{Phrase: "alinhamento", Code: "ALINHAMENTO", Label: "Alinhamento", Aliases: []string{"alinhamento", "alinhar"}},
	{Phrase: "balanceamento", Code: "BALANCEAMENTO", Label: "Balanceamento", Aliases: []string{"balanceamento", "balancear"}},
	{Phrase: "freios", Code: "FREIOS", Label: "Revisão de freios", Aliases: []string{"freios", "freio", "pastilha", "pastilhas"}},
	{Phrase: "suspensão", Code: "SUSPENSAO", Label: "Suspensão", Aliases: []string{"suspensão", "suspensao", "amortecedor", "amortecedores"}},
	{Phrase: "ar condicionado", Code: "AR_CONDICIONADO", Label: "Ar condicionado", Aliases: []string{"ar condicionado", "ar-condicionado"}},
	{Phrase: "embreagem", Code: "EMBREAGEM", Label: "Embreagem", Aliases: []string{"embreagem"}},
	{Phrase: "elétrica", Code: "ELETRICA", Label: "Sistema elétrico", Aliases: []string{"elétrica", "eletrica", "bateria"}},
	{Phrase: "diagnóstico", Code: "DIAGNOSTICO", Label: "Diagnóstico", Aliases: []string{"diagnóstico", "diagnostico"}},
}

// GeneralService is used when an order names no recognizable service.
var GeneralService = ServiceKind{Phrase: "serviço geral", Code: "GERAL", Label: "Serviço geral"}

// DiagnosticService is the kind of every diagnose order.
var DiagnosticService = serviceKinds[len(serviceKinds)-1]

// MatchService finds the first catalog kind mentioned in normalized text.
func MatchService(text string) (ServiceKind, bool) {
	for _, kind := range serviceKinds {
		for _, alias := range kind.Aliases {
			if containsPhrase(text, alias) {
				return kind, true
			}
		}
	}
	return ServiceKind{}, false
}

// ServiceByPhrase resolves the canonical phrase stored in the serviceType entity.
func ServiceByPhrase(phrase string) (ServiceKind, bool) {
	for _, kind := range serviceKinds {
		if kind.Phrase == phrase {
			return kind, true
		}
	}
	return MatchService(phrase)
}

// ServiceKinds returns a copy of the catalog.
func ServiceKinds() []ServiceKind {
	return append([]ServiceKind(nil), serviceKinds...)
}
