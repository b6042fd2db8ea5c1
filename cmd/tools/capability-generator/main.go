// cmd/tools/capability-generator/main.go
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"workshop-assistant/pkg/registry"
)

// CapabilityData feeds the templates.
type CapabilityData struct {
	Name           string
	PackageName    string
	Method         string
	Description    string
	RequiredParams []string
	NotImplemented string
}

const handlerTemplate = `// Package {{ .PackageName }} implements the {{ .Name }} capability.
package {{ .PackageName }}

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/common/logger"
)

var ErrQueryFailed = errors.New("QUERY_FAILED")

const CodeNotImplemented = "{{ .NotImplemented }}"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{Timeout: 10 * time.Second}
}

type Handler struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		logger: log.WithFields(map[string]interface{}{"capability": "{{ .PackageName }}"}),
	}
}

// {{ .Method }} {{ .Description }}.
func (h *Handler) {{ .Method }}(ctx context.Context, params action.Params, rc *action.RequestContext) (*action.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()
	_ = ctx
{{ range .RequiredParams }}
	_ = params.String("{{ . }}")
{{- end }}

	h.logger.Warn("capability not implemented", map[string]interface{}{"requestId": rc.RequestID})
	return &action.Result{
		Success: false,
		Message: "{{ .Name }} ainda não está disponível",
		Error:   CodeNotImplemented,
	}, nil
}
`

const testTemplate = `package {{ .PackageName }}

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/common/logger"
)

func Test{{ .Method }}_NotImplemented(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	h := NewHandler(LoadConfig(), db, logger.NewTestLogger(t))
	res, err := h.{{ .Method }}(context.Background(), action.Params{}, action.NewRequestContext("s1", "w1", nil))

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeNotImplemented, res.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}
`

func main() {
	name := flag.String("name", "", "Capability name from the registry (e.g., parts.search)")
	registryPath := flag.String("registry", "configs/capability-registry.json", "Path to registry file")
	outDir := flag.String("out", "internal/capabilities", "Directory that receives the new package")
	force := flag.Bool("force", false, "Overwrite existing files")
	flag.Parse()

	if *name == "" {
		fmt.Println("Error: -name is required.")
		flag.Usage()
		os.Exit(1)
	}

	reg, err := registry.LoadRegistry(*registryPath)
	if err != nil {
		fmt.Printf("Error loading registry: %v\n", err)
		os.Exit(1)
	}
	capability, ok := reg.Find(*name)
	if !ok {
		fmt.Printf("Error: capability %s not found in %s\n", *name, *registryPath)
		os.Exit(1)
	}

	files, err := generate(newCapabilityData(*capability), *outDir, *force)
	if err != nil {
		fmt.Printf("Error generating capability: %v\n", err)
		os.Exit(1)
	}
	for _, f := range files {
		fmt.Printf("Generated %s\n", f)
	}
}

func newCapabilityData(c registry.Capability) CapabilityData {
	domain, verb, _ := strings.Cut(c.Name, ".")
	return CapabilityData{
		Name:           c.Name,
		PackageName:    packageName(domain),
		Method:         upperFirst(verb),
		Description:    lowerFirst(c.Description),
		RequiredParams: c.RequiredParams,
		NotImplemented: "NAO_IMPLEMENTADO",
	}
}

func packageName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// generate renders the package under outDir and returns the written paths.
func generate(data CapabilityData, outDir string, force bool) ([]string, error) {
	dir := filepath.Join(outDir, data.PackageName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	targets := []struct {
		file string
		tmpl string
	}{
		{"handler.go", handlerTemplate},
		{"handler_test.go", testTemplate},
	}

	var written []string
	for _, target := range targets {
		path := filepath.Join(dir, target.file)
		if _, err := os.Stat(path); err == nil && !force {
			return written, fmt.Errorf("%s already exists (use -force to overwrite)", path)
		}

		src, err := render(target.tmpl, data)
		if err != nil {
			return written, fmt.Errorf("render %s: %w", target.file, err)
		}
		if err := os.WriteFile(path, src, 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func render(text string, data CapabilityData) ([]byte, error) {
	tmpl, err := template.New("capability").Parse(text)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return format.Source(buf.Bytes())
}
