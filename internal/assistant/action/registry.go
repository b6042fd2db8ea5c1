package action

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvokerRequired = errors.New("INVOKER_REQUIRED")
	ErrEmptyName       = errors.New("EMPTY_ACTION_NAME")
	ErrDuplicateAction = errors.New("DUPLICATE_ACTION")
	ErrRegistrySealed  = errors.New("REGISTRY_SEALED")
)

// Registry is the capability catalog. It is written during startup and then
// sealed; reads need no locking afterwards.
type Registry struct {
	defs   map[Name]*Definition
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[Name]*Definition)}
}

// Register adds a capability under name.
func (r *Registry) Register(name Name, def Definition) error {
	if r.sealed {
		return fmt.Errorf("%w: %s", ErrRegistrySealed, name)
	}
	if strings.TrimSpace(string(name)) == "" {
		return ErrEmptyName
	}
	if def.Invoker == nil {
		return fmt.Errorf("%w: %s", ErrInvokerRequired, name)
	}
	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, name)
	}

	def.Name = name
	def.RequiredParams = append([]string(nil), def.RequiredParams...)
	def.OptionalParams = append([]string(nil), def.OptionalParams...)
	def.Permissions = append([]string(nil), def.Permissions...)
	def.Keywords = append([]string(nil), def.Keywords...)
	r.defs[name] = &def
	return nil
}

// MustRegister panics on a registration error.
func (r *Registry) MustRegister(name Name, def Definition) {
	if err := r.Register(name, def); err != nil {
		panic(err)
	}
}

// Seal forbids further registrations.
func (r *Registry) Seal() {
	r.sealed = true
}

func (r *Registry) Get(name Name) (*Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// List returns every definition sorted by name.
func (r *Registry) List() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, *def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Len() int {
	return len(r.defs)
}

type Match struct {
	Definition Definition `json:"definition"`
	Score      float64    `json:"score"`
}

// FindByKeywords ranks capabilities by token-substring overlap between the
// query and each declared keyword set, normalized by the larger set.
func (r *Registry) FindByKeywords(keywords []string) []Match {
	query := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			query = append(query, k)
		}
	}
	if len(query) == 0 {
		return nil
	}

	var matches []Match
	for _, def := range r.defs {
		if len(def.Keywords) == 0 {
			continue
		}
		hits := 0
		for _, q := range query {
			for _, k := range def.Keywords {
				k = strings.ToLower(k)
				if strings.Contains(k, q) || strings.Contains(q, k) {
					hits++
					break
				}
			}
		}
		if hits == 0 {
			continue
		}
		denom := len(query)
		if len(def.Keywords) > denom {
			denom = len(def.Keywords)
		}
		matches = append(matches, Match{Definition: *def, Score: float64(hits) / float64(denom)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Definition.Name < matches[j].Definition.Name
	})
	return matches
}
