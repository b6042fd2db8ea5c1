package nlu

import (
	"fmt"
	"sort"
	"sync"
)

// Intent is the classified purpose of an utterance.
type Intent string

const (
	IntentGreeting    Intent = "greeting"
	IntentInfoRequest Intent = "info_request"
	IntentSearch      Intent = "search"
	IntentSchedule    Intent = "schedule"
	IntentCreate      Intent = "create"
	IntentNotify      Intent = "notify"
	IntentDiagnose    Intent = "diagnose"
	IntentUpdate      Intent = "update"
	IntentUnknown     Intent = "unknown"
)

// IntentResult carries a confidence in [0,1].
type IntentResult struct {
	Type       Intent  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Conversational intents never produce actions.
func (r IntentResult) Conversational() bool {
	return r.Type == IntentGreeting || r.Type == IntentInfoRequest
}

// Classifier is a pure, versioned classification strategy. Implementations
// must return identical results for identical input.
type Classifier interface {
	Classify(normalizedText string) IntentResult
	Version() string
}

// Options tune the rule strategies.
type Options struct {
	// SpecificThreshold is the confidence the specific pass must reach before
	// the generic pass is skipped.
	SpecificThreshold float64
}

func DefaultOptions() Options {
	return Options{SpecificThreshold: 0.3}
}

// Factory builds a Classifier from options.
type Factory func(opts Options) Classifier

var (
	strategiesMu sync.RWMutex
	strategies   = map[string]Factory{}
)

// RegisterStrategy makes a classifier selectable by name.
func RegisterStrategy(name string, factory Factory) {
	strategiesMu.Lock()
	defer strategiesMu.Unlock()
	strategies[name] = factory
}

// NewClassifier builds the strategy registered under name.
func NewClassifier(name string, opts Options) (Classifier, error) {
	strategiesMu.RLock()
	factory, ok := strategies[name]
	strategiesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown classifier strategy %q (available: %v)", name, Strategies())
	}
	return factory(opts), nil
}

func Strategies() []string {
	strategiesMu.RLock()
	defer strategiesMu.RUnlock()
	out := make([]string, 0, len(strategies))
	for name := range strategies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterStrategy(RulesV1Version, func(opts Options) Classifier { return NewRulesV1(opts) })
}
