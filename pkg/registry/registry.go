// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"workshop-assistant/internal/common/validation"
)

var schema = validation.MustCompile(documentSchema)

func LoadRegistry(path string) (*CapabilityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateDocument(data); err != nil {
		return nil, err
	}
	var reg CapabilityRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// Save stamps LastUpdated and writes reg as indented JSON.
func Save(reg *CapabilityRegistry, path string) error {
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := validateDocument(data); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func validateDocument(data []byte) error {
	result, err := schema.ValidateBytes(data)
	if err != nil {
		return fmt.Errorf("registry is not valid JSON: %w", err)
	}
	if !result.Valid {
		return fmt.Errorf("registry does not match schema: %s", result.Error())
	}
	return nil
}

// Find returns the capability called name.
func (r *CapabilityRegistry) Find(name string) (*Capability, bool) {
	for i := range r.Capabilities {
		if r.Capabilities[i].Name == name {
			return &r.Capabilities[i], true
		}
	}
	return nil, false
}

// Check reports duplicate names and auth inconsistencies the schema cannot express.
func (r *CapabilityRegistry) Check() error {
	seen := make(map[string]bool, len(r.Capabilities))
	for _, c := range r.Capabilities {
		if seen[c.Name] {
			return fmt.Errorf("duplicate capability: %s", c.Name)
		}
		seen[c.Name] = true
		if len(c.Permissions) > 0 && !c.RequiresAuth {
			return fmt.Errorf("capability %s declares permissions but does not require auth", c.Name)
		}
		if c.Timeout != "" {
			if _, err := time.ParseDuration(c.Timeout); err != nil {
				return fmt.Errorf("capability %s has invalid timeout %q", c.Name, c.Timeout)
			}
		}
	}
	return nil
}

// Drift compares the registry with the capabilities the binary registers.
// missing are built in but not published; stale are published but gone.
func (r *CapabilityRegistry) Drift(builtIn []string) (missing, stale []string) {
	published := make(map[string]bool, len(r.Capabilities))
	for _, c := range r.Capabilities {
		published[c.Name] = true
	}
	known := make(map[string]bool, len(builtIn))
	for _, name := range builtIn {
		known[name] = true
		if !published[name] {
			missing = append(missing, name)
		}
	}
	for _, c := range r.Capabilities {
		if !known[c.Name] {
			stale = append(stale, c.Name)
		}
	}
	sort.Strings(missing)
	sort.Strings(stale)
	return missing, stale
}

// Update sets one field of the named capability.
func (r *CapabilityRegistry) Update(name, field, value string) error {
	c, ok := r.Find(name)
	if !ok {
		return fmt.Errorf("capability %s not found", name)
	}
	switch field {
	case "status":
		switch value {
		case StatusPlanned, StatusImplemented, StatusVerified:
			c.Status = value
		default:
			return fmt.Errorf("invalid status: %s", value)
		}
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		c.Timeout = value
	case "description":
		c.Description = value
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return nil
}
