// Package planner maps a classified intent and its entities to an ordered
// plan of capability invocations.
package planner

import (
	"fmt"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/assistant/nlu"
	"workshop-assistant/internal/common/logger"
)

const (
	DefaultScheduleDate  = "amanhã"
	DefaultScheduleTime  = "14:00"
	DefaultScheduleLabel = "Revisão geral"
	DefaultChannel       = "whatsapp"
)

// Decision is the full output of classification, extraction and planning for
// one utterance. The composer fills ResponseText and Suggestions.
type Decision struct {
	Intent               nlu.IntentResult    `json:"intent"`
	Entities             nlu.EntitySet       `json:"entities"`
	Plan                 []action.Invocation `json:"plan"`
	ResponseText         string              `json:"responseText"`
	Suggestions          []string            `json:"suggestions"`
	RequiresConfirmation bool                `json:"requiresConfirmation"`
	Ambiguous            bool                `json:"ambiguous"`
	Interrupted          bool                `json:"interrupted,omitempty"`
}

// Handler plans a single intent. Handlers are pure.
type Handler func(intent nlu.IntentResult, e nlu.EntitySet, rc *action.RequestContext) []action.Invocation

type Planner struct {
	handlers map[nlu.Intent]Handler
	logger   logger.Logger
}

func New(log logger.Logger) *Planner {
	p := &Planner{logger: logger.ForComponent(log, "planner")}
	p.handlers = map[nlu.Intent]Handler{
		nlu.IntentCreate:      planCreate,
		nlu.IntentSearch:      planSearch,
		nlu.IntentSchedule:    planSchedule,
		nlu.IntentDiagnose:    planDiagnose,
		nlu.IntentNotify:      planNotify,
		nlu.IntentUpdate:      planUpdate,
		nlu.IntentGreeting:    planNothing,
		nlu.IntentInfoRequest: planNothing,
	}
	return p
}

// Plan returns the invocations for intent; unknown intents plan nothing.
func (p *Planner) Plan(intent nlu.IntentResult, entities nlu.EntitySet, rc *action.RequestContext) []action.Invocation {
	handler, ok := p.handlers[intent.Type]
	if !ok {
		return nil
	}
	plan := handler(intent, entities, rc)
	p.logger.Debug("plan built", map[string]interface{}{
		"intent":   string(intent.Type),
		"planSize": len(plan),
	})
	return plan
}

// Decide wraps Plan into a Decision.
func (p *Planner) Decide(intent nlu.IntentResult, entities nlu.EntitySet, rc *action.RequestContext) *Decision {
	plan := p.Plan(intent, entities, rc)
	return &Decision{
		Intent:               intent,
		Entities:             entities,
		Plan:                 plan,
		RequiresConfirmation: len(plan) > 0 && needsConfirmation(intent.Type),
	}
}

func needsConfirmation(intent nlu.Intent) bool {
	switch intent {
	case nlu.IntentSchedule, nlu.IntentUpdate, nlu.IntentNotify:
		return true
	}
	return false
}

func planNothing(nlu.IntentResult, nlu.EntitySet, *action.RequestContext) []action.Invocation {
	return nil
}

func planCreate(intent nlu.IntentResult, e nlu.EntitySet, rc *action.RequestContext) []action.Invocation {
	var plan []action.Invocation
	name, phone := e.String(nlu.EntityName), e.String(nlu.EntityPhone)

	if name != "" || phone != "" {
		plan = append(plan, clientSearch(name, phone, intent.Confidence))
	}
	if wantsServiceOrder(e) {
		if plate := e.String(nlu.EntityPlate); plate != "" {
			plan = append(plan, vehicleSearch(plate, intent.Confidence))
		}
		plan = append(plan, serviceCreate(serviceKindFor(e), e, rc, intent.Confidence))
	}
	if name != "" && phone != "" {
		params := action.Params{action.ParamName: name, action.ParamPhone: phone}
		if email := e.String(nlu.EntityEmail); email != "" {
			params[action.ParamEmail] = email
		}
		plan = append(plan, action.Invocation{
			Action:     action.ClientCreate,
			Params:     params,
			Confidence: intent.Confidence * 0.8,
			Fallback:   true,
		})
	}
	return plan
}

func planSearch(intent nlu.IntentResult, e nlu.EntitySet, _ *action.RequestContext) []action.Invocation {
	var plan []action.Invocation

	if plate := e.String(nlu.EntityPlate); plate != "" {
		plan = append(plan, vehicleSearch(plate, intent.Confidence))
	}
	if name, phone := e.String(nlu.EntityName), e.String(nlu.EntityPhone); name != "" || phone != "" {
		plan = append(plan, clientSearch(name, phone, intent.Confidence))
	}
	if order := e.String(nlu.EntityOrderNumber); order != "" {
		plan = append(plan, action.Invocation{
			Action:     action.ServiceSearch,
			Params:     action.Params{action.ParamOrderID: order},
			Confidence: intent.Confidence,
		})
	} else if len(plan) == 0 {
		term := e.String(nlu.EntityServiceType)
		if term == "" {
			term = e.String(nlu.EntityProblem)
		}
		if term != "" {
			plan = append(plan, action.Invocation{
				Action:     action.ServiceSearch,
				Params:     action.Params{action.ParamTerm: term},
				Confidence: intent.Confidence * 0.9,
			})
		}
	}
	return plan
}

func planSchedule(intent nlu.IntentResult, e nlu.EntitySet, rc *action.RequestContext) []action.Invocation {
	date, hour := e.String(nlu.EntityDate), e.String(nlu.EntityTime)
	if date == "" && hour == "" {
		return nil
	}
	if date == "" {
		date = DefaultScheduleDate
	}
	if hour == "" {
		hour = DefaultScheduleTime
	}

	label := DefaultScheduleLabel
	if kind, ok := nlu.ServiceByPhrase(e.String(nlu.EntityServiceType)); ok && e.Has(nlu.EntityServiceType) {
		label = kind.Label
	}

	var plan []action.Invocation
	name, phone := e.String(nlu.EntityName), e.String(nlu.EntityPhone)
	searching := name != "" || phone != ""
	if searching {
		plan = append(plan, clientSearch(name, phone, intent.Confidence))
	}

	slot := action.Params{action.ParamDate: date, action.ParamTime: hour, action.ParamServiceKind: label}
	plan = append(plan, action.Invocation{
		Action:     action.ScheduleCheckAvailability,
		Params:     slot.Clone(),
		Confidence: intent.Confidence,
	})

	book := action.Invocation{
		Action:     action.ScheduleBook,
		Params:     slot.Clone(),
		Confidence: intent.Confidence,
	}
	if _, resolved := resolvedFrom(rc, action.ParamClientID); searching || resolved {
		book.Refs = map[string]action.Ref{action.ParamClientID: refSlot(rc, action.ParamClientID)}
	}
	plan = append(plan, book)
	return plan
}

func planDiagnose(intent nlu.IntentResult, e nlu.EntitySet, rc *action.RequestContext) []action.Invocation {
	var plan []action.Invocation
	if name, phone := e.String(nlu.EntityName), e.String(nlu.EntityPhone); name != "" || phone != "" {
		plan = append(plan, clientSearch(name, phone, intent.Confidence))
	}
	if plate := e.String(nlu.EntityPlate); plate != "" {
		plan = append(plan, vehicleSearch(plate, intent.Confidence))
	}
	return append(plan, serviceCreate(nlu.DiagnosticService, e, rc, intent.Confidence))
}

func planNotify(intent nlu.IntentResult, e nlu.EntitySet, rc *action.RequestContext) []action.Invocation {
	var plan []action.Invocation
	if name, phone := e.String(nlu.EntityName), e.String(nlu.EntityPhone); name != "" || phone != "" {
		plan = append(plan, clientSearch(name, phone, intent.Confidence))
	}

	channel := e.String(nlu.EntityChannel)
	if channel == "" {
		channel = DefaultChannel
	}
	message := "Olá! Temos novidades sobre o seu veículo. Entre em contato com a oficina."
	if order := e.String(nlu.EntityOrderNumber); order != "" {
		message = fmt.Sprintf("Olá! A ordem de serviço nº %s foi atualizada. Entre em contato com a oficina.", order)
	}

	inv := action.Invocation{
		Action:     action.NotifySend,
		Params:     action.Params{action.ParamMessage: message, action.ParamChannel: channel},
		Refs:       map[string]action.Ref{action.ParamClientID: refSlot(rc, action.ParamClientID)},
		Confidence: intent.Confidence,
	}
	inv.NeedsInfo = inv.PendingFields()
	return append(plan, inv)
}

func planUpdate(intent nlu.IntentResult, e nlu.EntitySet, _ *action.RequestContext) []action.Invocation {
	params := action.Params{}
	if order := e.String(nlu.EntityOrderNumber); order != "" {
		params[action.ParamOrderID] = order
	}
	if status := e.String(nlu.EntityOrderStatus); status != "" {
		params[action.ParamStatus] = status
	}
	return []action.Invocation{{
		Action:     action.ServiceUpdate,
		Params:     params,
		Confidence: intent.Confidence,
	}}
}

func clientSearch(name, phone string, confidence float64) action.Invocation {
	params := action.Params{}
	if name != "" {
		params[action.ParamName] = name
	}
	if phone != "" {
		params[action.ParamPhone] = phone
	}
	return action.Invocation{Action: action.ClientSearch, Params: params, Confidence: confidence}
}

func vehicleSearch(plate string, confidence float64) action.Invocation {
	return action.Invocation{
		Action:     action.VehicleSearch,
		Params:     action.Params{action.ParamPlate: plate},
		Confidence: confidence * 0.9,
	}
}

func serviceCreate(kind nlu.ServiceKind, e nlu.EntitySet, rc *action.RequestContext, confidence float64) action.Invocation {
	params := action.Params{
		action.ParamServiceType: kind.Code,
		action.ParamDescription: describe(kind, e),
	}
	if plate := e.String(nlu.EntityPlate); plate != "" {
		params[action.ParamPlate] = plate
	}

	inv := action.Invocation{
		Action: action.ServiceCreate,
		Params: params,
		Refs: map[string]action.Ref{
			action.ParamClientID:  refSlot(rc, action.ParamClientID),
			action.ParamVehicleID: refSlot(rc, action.ParamVehicleID),
		},
		Confidence: confidence,
	}
	inv.NeedsInfo = inv.PendingFields()
	return inv
}

func wantsServiceOrder(e nlu.EntitySet) bool {
	return e.Bool(nlu.EntityIsServiceOrder) || e.Has(nlu.EntityServiceType) ||
		(e.Has(nlu.EntityProblem) && e.Has(nlu.EntityPart))
}

func serviceKindFor(e nlu.EntitySet) nlu.ServiceKind {
	if e.Has(nlu.EntityServiceType) {
		if kind, ok := nlu.ServiceByPhrase(e.String(nlu.EntityServiceType)); ok {
			return kind
		}
	}
	if part := e.String(nlu.EntityPart); part != "" {
		if kind, ok := nlu.MatchService(part); ok {
			return kind
		}
	}
	if e.Has(nlu.EntityProblem) {
		return nlu.DiagnosticService
	}
	return nlu.GeneralService
}

// describe builds the human-readable descricaoProblema.
func describe(kind nlu.ServiceKind, e nlu.EntitySet) string {
	desc := kind.Label
	if problem := e.String(nlu.EntityProblem); problem != "" {
		desc += ": " + problem
		if part := e.String(nlu.EntityPart); part != "" {
			desc += " (" + part + ")"
		}
	}
	return desc
}

func refSlot(rc *action.RequestContext, field string) action.Ref {
	if v, ok := resolvedFrom(rc, field); ok {
		return action.ResolvedRef(v)
	}
	return action.PendingRef()
}

func resolvedFrom(rc *action.RequestContext, field string) (string, bool) {
	if rc == nil {
		return "", false
	}
	return rc.Resolved(field)
}
