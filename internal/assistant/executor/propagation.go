package executor

import "workshop-assistant/internal/assistant/action"

// PropagationRule copies identifiers produced by a successful Source outcome
// into the pending slots of not-yet-run Targets, and drops not-yet-run
// fallbacks listed in Supersedes. When SupersedeOn is set, the fallbacks are
// dropped only if that field was resolved.
type PropagationRule struct {
	Source      action.Name
	Fields      []string
	Targets     []action.Name
	Supersedes  []action.Name
	SupersedeOn string
}

func (r PropagationRule) targets(name action.Name) bool {
	return containsName(r.Targets, name)
}

func (r PropagationRule) supersedes(name action.Name) bool {
	return containsName(r.Supersedes, name)
}

// DefaultRules chain a find-or-create client lookup into the order, booking
// and notification that depend on it. A plate lookup that finds the owner
// also settles the client, so it supersedes client.create too.
func DefaultRules() []PropagationRule {
	dependents := []action.Name{action.ServiceCreate, action.ScheduleBook, action.NotifySend}
	return []PropagationRule{
		{
			Source:     action.ClientSearch,
			Fields:     []string{action.ParamClientID, action.ParamVehicleID},
			Targets:    dependents,
			Supersedes: []action.Name{action.ClientCreate},
		},
		{
			Source:  action.ClientCreate,
			Fields:  []string{action.ParamClientID},
			Targets: dependents,
		},
		{
			Source:      action.VehicleSearch,
			Fields:      []string{action.ParamVehicleID, action.ParamClientID},
			Targets:     []action.Name{action.ServiceCreate, action.ScheduleBook},
			Supersedes:  []action.Name{action.ClientCreate},
			SupersedeOn: action.ParamClientID,
		},
	}
}

func containsName(names []action.Name, name action.Name) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
