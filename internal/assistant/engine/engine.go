// Package engine wires the decision core together behind ProcessMessage.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/assistant/composer"
	"workshop-assistant/internal/assistant/executor"
	"workshop-assistant/internal/assistant/nlu"
	"workshop-assistant/internal/assistant/planner"
	"workshop-assistant/internal/common/config"
	"workshop-assistant/internal/common/errors"
	"workshop-assistant/internal/common/logger"
	"workshop-assistant/internal/common/metrics"
	"workshop-assistant/internal/common/observability"
)

// FallbackResponse is the only text a user sees when processing breaks.
const FallbackResponse = "Desculpe, tive um problema ao processar sua mensagem. Pode tentar novamente em instantes?"

type Options struct {
	// MinConfidence below which a non-conversational intent is treated as
	// ambiguous and nothing is executed.
	MinConfidence    float64
	AmbiguityPenalty float64
	ExecuteTimeout   time.Duration
}

func OptionsFromConfig(nluCfg config.NLUConfig, engineCfg config.EngineConfig) Options {
	return Options{
		MinConfidence:    nluCfg.MinConfidence,
		AmbiguityPenalty: nluCfg.AmbiguityPenalty,
		ExecuteTimeout:   engineCfg.ExecuteTimeoutDuration(),
	}
}

type Dependencies struct {
	Classifier    nlu.Classifier
	Registry      executor.Lookup
	Enricher      Enricher
	Recorder      Recorder
	Observability *observability.Observability
}

type Engine struct {
	extractor  *nlu.Extractor
	classifier nlu.Classifier
	planner    *planner.Planner
	executor   *executor.Executor
	composer   *composer.Composer
	enricher   Enricher
	recorder   Recorder
	obs        *observability.Observability
	opts       Options
	logger     logger.Logger
}

func New(deps Dependencies, opts Options, log logger.Logger) *Engine {
	classifier := deps.Classifier
	if classifier == nil {
		classifier = nlu.NewRulesV1(nlu.DefaultOptions())
	}
	return &Engine{
		extractor:  nlu.NewExtractor(),
		classifier: classifier,
		planner:    planner.New(log),
		executor:   executor.New(deps.Registry, log),
		composer:   composer.New(),
		enricher:   deps.Enricher,
		recorder:   deps.Recorder,
		obs:        deps.Observability,
		opts:       opts,
		logger:     logger.ForComponent(log, "engine"),
	}
}

// Result is the outcome of ProcessMessage. On failure only Success, Error and
// FallbackResponse are set.
type Result struct {
	Success              bool                  `json:"success"`
	Response             *composer.Reply       `json:"response,omitempty"`
	ActionsExecuted      []action.Outcome      `json:"actionsExecuted"`
	DecisionConfidence   float64               `json:"decisionConfidence"`
	ContextSourcesUsed   []string              `json:"contextSourcesUsed"`
	Intent               nlu.IntentResult      `json:"intent"`
	Entities             nlu.EntitySet         `json:"entities,omitempty"`
	RequiresConfirmation bool                  `json:"requiresConfirmation"`
	Error                *errors.StandardError `json:"error,omitempty"`
	FallbackResponse     string                `json:"fallbackResponse,omitempty"`
}

// Public returns a copy safe to send to callers: error details such as
// driver errors or panic values are dropped, codes stay.
func (r *Result) Public() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Error = r.Error.Public()
	if r.ActionsExecuted != nil {
		out.ActionsExecuted = make([]action.Outcome, len(r.ActionsExecuted))
		for i, o := range r.ActionsExecuted {
			o.Error = o.Error.Public()
			out.ActionsExecuted[i] = o
		}
	}
	return &out
}

// ProcessMessage runs one utterance through the pipeline. base is never
// modified; a fresh context is derived from it.
func (e *Engine) ProcessMessage(ctx context.Context, text string, base *action.RequestContext) (res *Result) {
	start := time.Now()
	if base == nil {
		base = action.NewRequestContext("", "", nil)
	}

	ctx, span := e.obs.StartSpan(ctx, "assistant.process_message",
		attribute.String("request.id", base.RequestID),
		attribute.String("workshop.id", base.WorkshopID),
	)

	defer func() {
		if r := recover(); r != nil {
			err := errors.NewInternalError(fmt.Sprintf("panic: %v", r))
			e.logger.Error("message processing panicked", map[string]interface{}{
				"requestId": base.RequestID,
				"panic":     fmt.Sprint(r),
			})
			res = &Result{Success: false, Error: err, FallbackResponse: FallbackResponse}
			metrics.MessagesProcessed.WithLabelValues("unknown", "error").Inc()
			e.obs.RecordMessageProcessed(ctx, "unknown", "error")
			observability.EndSpan(span, err)
		}
	}()

	rc := e.enrich(ctx, base)
	u := nlu.Normalize(text)

	var (
		intent   nlu.IntentResult
		entities nlu.EntitySet
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		intent = e.classifier.Classify(u.Normalized)
	}()
	go func() {
		defer wg.Done()
		entities = e.extractor.Extract(u)
	}()
	wg.Wait()
	entities = e.extractor.Refine(u, intent.Type, entities)

	decision := e.planner.Decide(intent, entities, rc)
	confidence := intent.Confidence

	var outcomes []action.Outcome
	if e.ambiguous(intent) {
		decision.Ambiguous = true
		confidence = intent.Confidence * (1 - e.opts.AmbiguityPenalty)
		e.logger.Info("classification ambiguous", map[string]interface{}{
			"requestId": rc.RequestID,
			"error":     errors.NewClassificationAmbiguousError(string(intent.Type), intent.Confidence).Details,
		})
	} else if len(decision.Plan) > 0 {
		outcomes = e.execute(ctx, decision, rc)
	}

	reply := e.composer.Compose(decision, outcomes, rc)
	decision.ResponseText = reply.Text
	decision.Suggestions = reply.Suggestions

	if outcomes == nil {
		outcomes = []action.Outcome{}
	}
	res = &Result{
		Success:              true,
		Response:             &reply,
		ActionsExecuted:      outcomes,
		DecisionConfidence:   confidence,
		ContextSourcesUsed:   append([]string{}, rc.Sources...),
		Intent:               intent,
		Entities:             entities,
		RequiresConfirmation: decision.RequiresConfirmation,
	}

	e.finish(ctx, text, decision, outcomes, rc, start)
	span.SetAttributes(
		attribute.String("intent", string(intent.Type)),
		attribute.Float64("confidence", confidence),
		attribute.Int("plan.size", len(decision.Plan)),
	)
	observability.EndSpan(span, nil)
	return res
}

func (e *Engine) ambiguous(intent nlu.IntentResult) bool {
	if intent.Type == nlu.IntentUnknown || intent.Conversational() {
		return false
	}
	return intent.Confidence < e.opts.MinConfidence
}

// enrich degrades to the base context with an error marker when the
// enricher fails.
func (e *Engine) enrich(ctx context.Context, base *action.RequestContext) *action.RequestContext {
	if e.enricher == nil {
		rc := base.Clone()
		stamp(rc, time.Now())
		return rc
	}

	rc, err := e.enricher.Enrich(ctx, base)
	if err == nil && rc != nil {
		return rc
	}
	if err == nil {
		err = fmt.Errorf("enricher returned no context")
	}

	e.logger.Warn("context enrichment failed", map[string]interface{}{
		"requestId": base.RequestID,
		"error":     err.Error(),
	})
	rc = base.Clone()
	stamp(rc, time.Now())
	rc.Error = errors.NewContextEnrichmentFailedError(err)
	return rc
}

func (e *Engine) execute(ctx context.Context, decision *planner.Decision, rc *action.RequestContext) []action.Outcome {
	ctx, span := e.obs.StartSpan(ctx, "assistant.execute_plan",
		attribute.Int("plan.size", len(decision.Plan)),
	)
	if e.opts.ExecuteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ExecuteTimeout)
		defer cancel()
	}

	outcomes, err := e.executor.Execute(ctx, decision.Plan, rc)
	if err != nil {
		decision.Interrupted = true
		rc.Error = errors.NewExecutionCancelledError(err)
		e.logger.Warn("plan execution interrupted", map[string]interface{}{
			"requestId": rc.RequestID,
			"completed": len(outcomes),
			"planned":   len(decision.Plan),
			"error":     err.Error(),
		})
	}
	observability.EndSpan(span, err)
	return outcomes
}

func (e *Engine) finish(ctx context.Context, text string, decision *planner.Decision, outcomes []action.Outcome, rc *action.RequestContext, start time.Time) {
	succeeded, failed := 0, 0
	for _, o := range outcomes {
		if o.Succeeded {
			succeeded++
		} else {
			failed++
		}
	}

	status := "success"
	switch {
	case decision.Ambiguous:
		status = "ambiguous"
	case decision.Interrupted:
		status = "interrupted"
	case failed > 0:
		status = "partial"
	}

	duration := time.Since(start)
	metrics.MessagesProcessed.WithLabelValues(string(decision.Intent.Type), status).Inc()
	metrics.IntentConfidence.WithLabelValues(string(decision.Intent.Type)).Observe(decision.Intent.Confidence)
	e.obs.RecordMessageProcessed(ctx, string(decision.Intent.Type), status)
	e.obs.RecordMessageDuration(ctx, duration, status)

	e.logger.Info("message processed", map[string]interface{}{
		"requestId":  rc.RequestID,
		"sessionId":  rc.SessionID,
		"intent":     string(decision.Intent.Type),
		"confidence": decision.Intent.Confidence,
		"planSize":   len(decision.Plan),
		"succeeded":  succeeded,
		"failed":     failed,
		"status":     status,
		"durationMs": duration.Milliseconds(),
	})

	if e.recorder != nil {
		e.recorder.Record(ctx, Record{
			Utterance: text,
			Decision:  decision,
			Outcomes:  outcomes,
			Context:   rc,
			Success:   true,
		})
	}
}
