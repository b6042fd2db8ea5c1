// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/capabilities"
	"workshop-assistant/pkg/registry"
)

const defaultPath = "configs/capability-registry.json"

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportPath := exportCmd.String("path", defaultPath, "Path to registry file")

	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validatePath := validateCmd.String("path", defaultPath, "Path to registry file")

	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	updatePath := updateCmd.String("path", defaultPath, "Path to registry file")
	name := updateCmd.String("name", "", "Capability name (e.g., schedule.book)")
	field := updateCmd.String("field", "", "Field to update (status, timeout, description)")
	value := updateCmd.String("value", "", "New value for the field")

	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	listPath := listCmd.String("path", defaultPath, "Path to registry file")

	if len(os.Args) < 2 {
		help(os.Stdout)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		reg, err := export(*exportPath)
		if err != nil {
			fmt.Printf("Error exporting registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported %d capabilities to %s\n", len(reg.Capabilities), *exportPath)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validate(*validatePath); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Registry validation passed.")

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *name == "" || *field == "" || *value == "" {
			fmt.Println("Error: name, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := update(*updatePath, *name, *field, *value); err != nil {
			fmt.Printf("Error updating capability: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated capability %s, field %s to %s\n", *name, *field, *value)

	case "list":
		listCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(*listPath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		for _, c := range reg.Capabilities {
			auth := ""
			if c.RequiresAuth {
				auth = " [auth]"
			}
			fmt.Printf("%-28s %-12s%s requires: %s\n", c.Name, c.Status, auth, strings.Join(c.RequiredParams, ", "))
		}

	case "help":
		fallthrough
	default:
		help(os.Stdout)
	}
}

func fromDefinition(def action.Definition) registry.Capability {
	return registry.Capability{
		Name:           string(def.Name),
		Description:    def.Description,
		RequiredParams: def.RequiredParams,
		OptionalParams: def.OptionalParams,
		RequiresAuth:   def.RequiresAuth,
		Permissions:    def.Permissions,
		Keywords:       def.Keywords,
		Examples:       def.Examples,
		Status:         registry.StatusImplemented,
	}
}

// export regenerates the registry from the built-in contracts, keeping the
// status and timeout already recorded for each capability.
func export(path string) (*registry.CapabilityRegistry, error) {
	previous, err := registry.LoadRegistry(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	reg := &registry.CapabilityRegistry{Version: "1.0.0"}
	if previous != nil {
		reg.Version = previous.Version
	}
	for _, def := range capabilities.Contracts() {
		c := fromDefinition(def)
		if previous != nil {
			if old, ok := previous.Find(c.Name); ok {
				c.Status = old.Status
				c.Timeout = old.Timeout
			}
		}
		reg.Capabilities = append(reg.Capabilities, c)
	}
	return reg, registry.Save(reg, path)
}

func validate(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Check(); err != nil {
		return err
	}

	var builtIn []string
	for _, def := range capabilities.Contracts() {
		builtIn = append(builtIn, string(def.Name))
	}
	missing, stale := reg.Drift(builtIn)
	if len(missing) > 0 || len(stale) > 0 {
		return fmt.Errorf("registry out of date (missing: %v, stale: %v); run registry-updater export", missing, stale)
	}

	fmt.Printf("Found %d capabilities.\n", len(reg.Capabilities))
	return nil
}

func update(path, name, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Update(name, field, value); err != nil {
		return err
	}
	return registry.Save(reg, path)
}

const usage = `
Usage: registry-updater <command> [flags]

Commands:
  export   Regenerate the registry file from the built-in capabilities
  validate Validate the registry file and check it matches the binary
  update   Update one field of a capability
  list     List the published capabilities
  help     Show this help message

Examples:
  registry-updater export -path configs/capability-registry.json
  registry-updater update -name schedule.book -field status -value verified
  registry-updater validate

Use 'registry-updater <command> -h' for more information about a command.
`

func help(w io.Writer) {
	fmt.Fprint(w, usage)
}
