// pkg/registry/schema.go
package registry

// CapabilityRegistry is the published catalog of assistant capabilities,
// kept in configs/capability-registry.json.
type CapabilityRegistry struct {
	Version      string       `json:"version"`
	LastUpdated  string       `json:"lastUpdated"`
	Capabilities []Capability `json:"capabilities"`
}

type Capability struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	RequiredParams []string `json:"requiredParams"`
	OptionalParams []string `json:"optionalParams"`
	RequiresAuth   bool     `json:"requiresAuth"`
	Permissions    []string `json:"permissions"`
	Keywords       []string `json:"keywords"`
	Examples       []string `json:"examples"`
	Status         string   `json:"status"`
	Timeout        string   `json:"timeout,omitempty"`
}

const (
	StatusPlanned     = "planned"
	StatusImplemented = "implemented"
	StatusVerified    = "verified"
)

// documentSchema is the JSON schema every registry file must satisfy.
const documentSchema = `{
	"type": "object",
	"required": ["version", "capabilities"],
	"properties": {
		"version":     {"type": "string", "minLength": 1},
		"lastUpdated": {"type": "string"},
		"capabilities": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "description", "keywords", "status"],
				"properties": {
					"name":           {"type": "string", "pattern": "^[a-z]+\\.[a-zA-Z_]+$"},
					"description":    {"type": "string", "minLength": 1},
					"requiredParams": {"type": ["array", "null"], "items": {"type": "string"}},
					"optionalParams": {"type": ["array", "null"], "items": {"type": "string"}},
					"requiresAuth":   {"type": "boolean"},
					"permissions":    {"type": ["array", "null"], "items": {"type": "string"}},
					"keywords":       {"type": "array", "minItems": 1, "items": {"type": "string"}},
					"examples":       {"type": ["array", "null"], "items": {"type": "string"}},
					"status":         {"enum": ["planned", "implemented", "verified"]},
					"timeout":        {"type": "string"}
				}
			}
		}
	}
}`
