// Package executor runs a plan against the capability registry, one
// invocation at a time, propagating resolved identifiers between them.
package executor

import (
	"context"
	"fmt"
	"time"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/common/errors"
	"workshop-assistant/internal/common/logger"
	"workshop-assistant/internal/common/metrics"
)

// Lookup is the read side of the capability registry.
type Lookup interface {
	Get(name action.Name) (*action.Definition, bool)
}

type Executor struct {
	registry Lookup
	rules    []PropagationRule
	logger   logger.Logger
	now      func() time.Time
}

type Option func(*Executor)

// WithRules replaces the default propagation rules.
func WithRules(rules []PropagationRule) Option {
	return func(e *Executor) { e.rules = rules }
}

func New(registry Lookup, log logger.Logger, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		rules:    DefaultRules(),
		logger:   logger.ForComponent(log, "executor"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// step is the executor's private copy of one plan item.
type step struct {
	inv        action.Invocation
	done       bool
	superseded bool
}

// Execute runs primaries in plan order, then the fallbacks that were not
// superseded. A primary still waiting on an identifier that a pending fallback
// can produce is deferred until after the fallbacks. Failures are recorded per
// invocation and never stop the plan. When ctx ends, the outcomes recorded so
// far are returned with ctx.Err().
func (e *Executor) Execute(ctx context.Context, plan []action.Invocation, rc *action.RequestContext) ([]action.Outcome, error) {
	if rc == nil {
		rc = action.NewRequestContext("", "", nil)
	}

	steps := make([]*step, len(plan))
	var primary, fallback, deferred []*step
	for i, inv := range plan {
		steps[i] = &step{inv: inv.Clone()}
		if inv.Fallback {
			fallback = append(fallback, steps[i])
		} else {
			primary = append(primary, steps[i])
		}
	}

	outcomes := make([]action.Outcome, 0, len(plan))
	run := func(s *step) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome := e.invoke(ctx, &s.inv, rc)
		s.done = true
		outcomes = append(outcomes, outcome)
		if outcome.Succeeded {
			e.propagate(steps, s.inv.Action, outcome.Payload, rc)
		}
		return nil
	}

	for _, s := range primary {
		if e.awaitsFallback(steps, s) {
			deferred = append(deferred, s)
			continue
		}
		if err := run(s); err != nil {
			return outcomes, err
		}
	}
	for _, s := range fallback {
		if s.superseded {
			e.logger.Debug("fallback superseded", map[string]interface{}{
				"requestId": rc.RequestID,
				"action":    string(s.inv.Action),
			})
			continue
		}
		if err := run(s); err != nil {
			return outcomes, err
		}
	}
	for _, s := range deferred {
		if err := run(s); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// awaitsFallback reports whether s has a pending slot that a not-yet-run
// fallback could resolve.
func (e *Executor) awaitsFallback(steps []*step, s *step) bool {
	pending := s.inv.PendingFields()
	if len(pending) == 0 {
		return false
	}
	for _, other := range steps {
		if other.done || other.superseded || !other.inv.Fallback {
			continue
		}
		for _, rule := range e.rules {
			if rule.Source != other.inv.Action || !rule.targets(s.inv.Action) {
				continue
			}
			for _, field := range pending {
				if containsString(rule.Fields, field) {
					return true
				}
			}
		}
	}
	return false
}

func (e *Executor) propagate(steps []*step, source action.Name, result *action.Result, rc *action.RequestContext) {
	for _, rule := range e.rules {
		if rule.Source != source {
			continue
		}

		var resolved []string
		for _, field := range rule.Fields {
			value := result.Value(field)
			if value == "" {
				continue
			}
			resolved = append(resolved, field)
			rc.Resolve(field, value)
			for _, s := range steps {
				if s.done || s.superseded || !rule.targets(s.inv.Action) {
					continue
				}
				if s.inv.Fill(field, value) {
					e.logger.Debug("identifier propagated", map[string]interface{}{
						"requestId": rc.RequestID,
						"from":      string(source),
						"to":        string(s.inv.Action),
						"field":     field,
					})
				}
			}
		}

		if len(resolved) == 0 {
			continue
		}
		if rule.SupersedeOn != "" && !containsString(resolved, rule.SupersedeOn) {
			continue
		}
		for _, s := range steps {
			if !s.done && s.inv.Fallback && rule.supersedes(s.inv.Action) {
				s.superseded = true
			}
		}
	}
}

func (e *Executor) invoke(ctx context.Context, inv *action.Invocation, rc *action.RequestContext) action.Outcome {
	start := e.now()
	outcome := action.Outcome{Action: inv.Action, Fallback: inv.Fallback, Timestamp: start.UTC()}

	result, stdErr := e.call(ctx, inv, rc)
	outcome.ElapsedMs = e.now().Sub(start).Milliseconds()
	outcome.Payload = result
	outcome.Error = stdErr
	outcome.Succeeded = stdErr == nil
	if outcome.ErrorCode() == errors.ErrCodeMissingParameter {
		if def, ok := e.registry.Get(inv.Action); ok {
			outcome.Missing = def.AllMissing(inv.EffectiveParams(), inv.NeedsInfo)
		}
	}

	status := "success"
	if stdErr != nil {
		status = "failed"
		e.logger.Warn("action failed", map[string]interface{}{
			"requestId": rc.RequestID,
			"action":    string(inv.Action),
			"errorCode": string(stdErr.Code),
			"details":   stdErr.Details,
		})
	}
	metrics.ActionsExecuted.WithLabelValues(string(inv.Action), status, string(outcome.ErrorCode())).Inc()
	metrics.ActionDuration.WithLabelValues(string(inv.Action)).Observe(float64(outcome.ElapsedMs) / 1000)
	return outcome
}

// call checks the contract before invoking: lookup, required parameters,
// then authorization.
func (e *Executor) call(ctx context.Context, inv *action.Invocation, rc *action.RequestContext) (*action.Result, *errors.StandardError) {
	def, ok := e.registry.Get(inv.Action)
	if !ok {
		return nil, errors.NewActionNotFoundError(string(inv.Action))
	}

	params := inv.EffectiveParams()
	if field, missing := def.FirstMissing(params); missing {
		return nil, errors.NewMissingParameterError(string(inv.Action), field)
	}

	if def.RequiresAuth && rc.User == nil {
		return nil, errors.NewUnauthorizedError(string(inv.Action), "authenticated user required")
	}
	for _, perm := range def.Permissions {
		if !rc.User.HasPermission(perm) {
			return nil, errors.NewUnauthorizedError(string(inv.Action), "missing permission "+perm)
		}
	}

	result, err := safeInvoke(ctx, def.Invoker, params, rc)
	if err != nil {
		if stdErr, ok := errors.As(err); ok && stdErr.Code == errors.ErrCodeUnauthorized {
			return nil, stdErr
		}
		return nil, errors.NewCollaboratorFailureError(string(inv.Action), err.Error())
	}
	if result == nil {
		return nil, errors.NewCollaboratorFailureError(string(inv.Action), "capability returned no result")
	}
	if !result.Success {
		detail := result.Error
		if detail == "" {
			detail = result.Message
		}
		return result, errors.NewCollaboratorFailureError(string(inv.Action), detail)
	}
	return result, nil
}

func safeInvoke(ctx context.Context, invoker action.Invoker, params action.Params, rc *action.RequestContext) (result *action.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("capability panicked: %v", r)
		}
	}()
	return invoker.Invoke(ctx, params, rc)
}
