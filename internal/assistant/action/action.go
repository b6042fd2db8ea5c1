// Package action defines the capability contract shared by the planner, the
// executor and the capability handlers.
package action

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"workshop-assistant/internal/common/errors"
)

// Name identifies a registered capability.
type Name string

const (
	ClientSearch              Name = "client.search"
	ClientCreate              Name = "client.create"
	VehicleSearch             Name = "vehicle.search"
	ServiceCreate             Name = "service.create"
	ServiceSearch             Name = "service.search"
	ServiceUpdate             Name = "service.update"
	ScheduleCheckAvailability Name = "schedule.checkAvailability"
	ScheduleBook              Name = "schedule.book"
	NotifySend                Name = "notify.send"
)

// Parameter names used across plans and capabilities.
const (
	ParamClientID    = "clienteId"
	ParamVehicleID   = "veiculoId"
	ParamName        = "nome"
	ParamPhone       = "telefone"
	ParamEmail       = "email"
	ParamPlate       = "placa"
	ParamServiceType = "tipoServico"
	ParamDescription = "descricaoProblema"
	ParamPriority    = "prioridade"
	ParamOrderID     = "ordemId"
	ParamStatus      = "status"
	ParamTerm        = "termo"
	ParamDate        = "data"
	ParamTime        = "hora"
	ParamServiceKind = "servicoTipo"
	ParamMessage     = "mensagem"
	ParamChannel     = "canal"
)

// Params are the concrete arguments of one invocation.
type Params map[string]interface{}

// Has reports whether key is present with a usable value. Empty strings count
// as absent.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Result is what a capability returns. Business rule violations are reported
// with Success false, never as a Go error.
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Value returns Data[key] as a string, or "".
func (r *Result) Value(key string) string {
	if r == nil || r.Data == nil {
		return ""
	}
	return Params(r.Data).String(key)
}

// Invoker performs the capability. A returned error means an unexpected failure.
type Invoker interface {
	Invoke(ctx context.Context, params Params, rc *RequestContext) (*Result, error)
}

type InvokerFunc func(ctx context.Context, params Params, rc *RequestContext) (*Result, error)

func (f InvokerFunc) Invoke(ctx context.Context, params Params, rc *RequestContext) (*Result, error) {
	return f(ctx, params, rc)
}

// Definition is the declarative contract of a capability.
type Definition struct {
	Name           Name     `json:"name"`
	Description    string   `json:"description"`
	RequiredParams []string `json:"requiredParams"`
	OptionalParams []string `json:"optionalParams,omitempty"`
	RequiresAuth   bool     `json:"requiresAuth"`
	Permissions    []string `json:"permissions,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	Examples       []string `json:"examples,omitempty"`
	Invoker        Invoker  `json:"-"`
}

// FirstMissing returns the first required parameter absent from params, in
// declaration order.
// AllMissing lists the required parameters absent from params, then the
// fields in needsInfo that are still absent, without duplicates.
func (d *Definition) AllMissing(params Params, needsInfo []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, fields := range [][]string{d.RequiredParams, needsInfo} {
		for _, field := range fields {
			if seen[field] || params.Has(field) {
				continue
			}
			seen[field] = true
			out = append(out, field)
		}
	}
	return out
}

func (d *Definition) FirstMissing(params Params) (string, bool) {
	for _, field := range d.RequiredParams {
		if !params.Has(field) {
			return field, true
		}
	}
	return "", false
}

// RefState tracks a parameter whose value is only known after an earlier
// action runs.
type RefState int

const (
	Pending RefState = iota
	Resolved
)

func (s RefState) String() string {
	if s == Resolved {
		return "resolved"
	}
	return "pending"
}

// Ref is a pending-resolution slot on an invocation.
type Ref struct {
	State RefState `json:"state"`
	Value string   `json:"value,omitempty"`
}

func PendingRef() Ref { return Ref{State: Pending} }

func ResolvedRef(v string) Ref { return Ref{State: Resolved, Value: v} }

// Invocation is one plan item.
type Invocation struct {
	Action     Name           `json:"action"`
	Params     Params         `json:"params"`
	Refs       map[string]Ref `json:"refs,omitempty"`
	Confidence float64        `json:"confidence"`
	Fallback   bool           `json:"fallback"`
	NeedsInfo  []string       `json:"needsInfo,omitempty"`
}

// EffectiveParams merges resolved slots into the literal parameters.
func (inv *Invocation) EffectiveParams() Params {
	out := inv.Params.Clone()
	for field, ref := range inv.Refs {
		if ref.State == Resolved && !out.Has(field) {
			out[field] = ref.Value
		}
	}
	return out
}

// Lacks reports whether field has neither a literal value nor a resolved slot.
func (inv *Invocation) Lacks(field string) bool {
	if inv.Params.Has(field) {
		return false
	}
	ref, ok := inv.Refs[field]
	return !ok || ref.State == Pending
}

// Fill resolves field when the invocation lacks it. It returns false when a
// value was already present.
func (inv *Invocation) Fill(field, value string) bool {
	if value == "" || !inv.Lacks(field) {
		return false
	}
	if inv.Refs == nil {
		inv.Refs = make(map[string]Ref)
	}
	inv.Refs[field] = ResolvedRef(value)
	return true
}

// PendingFields lists unresolved slots in a stable order.
func (inv *Invocation) PendingFields() []string {
	var out []string
	for field, ref := range inv.Refs {
		if ref.State == Pending && !inv.Params.Has(field) {
			out = append(out, field)
		}
	}
	sort.Strings(out)
	return out
}

// Clone copies the invocation so slot resolution never leaks into the caller's plan.
func (inv Invocation) Clone() Invocation {
	out := inv
	out.Params = inv.Params.Clone()
	if inv.Refs != nil {
		out.Refs = make(map[string]Ref, len(inv.Refs))
		for k, v := range inv.Refs {
			out.Refs[k] = v
		}
	}
	out.NeedsInfo = append([]string(nil), inv.NeedsInfo...)
	return out
}

// Outcome records one executed invocation.
type Outcome struct {
	Action    Name                  `json:"action"`
	Succeeded bool                  `json:"succeeded"`
	Fallback  bool                  `json:"fallback"`
	Payload   *Result               `json:"payload,omitempty"`
	Error     *errors.StandardError `json:"error,omitempty"`
	Missing   []string              `json:"missing,omitempty"`
	ElapsedMs int64                 `json:"elapsedMs"`
	Timestamp time.Time             `json:"timestamp"`
}

// ErrorCode returns the outcome's error code or "".
func (o Outcome) ErrorCode() errors.ErrorCode {
	if o.Error == nil {
		return ""
	}
	return o.Error.Code
}

// MissingFields lists every field the outcome still needs, falling back to
// the field named by a MISSING_PARAMETER error.
func (o Outcome) MissingFields() []string {
	if len(o.Missing) > 0 {
		return o.Missing
	}
	if o.Error != nil && o.Error.Code == errors.ErrCodeMissingParameter {
		if field := o.Error.Field(); field != "" {
			return []string{field}
		}
	}
	return nil
}
