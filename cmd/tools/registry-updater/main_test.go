package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-assistant/internal/capabilities"
	"workshop-assistant/pkg/registry"
)

func TestExport_WritesEveryContract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capability-registry.json")

	reg, err := export(path)
	require.NoError(t, err)
	assert.Len(t, reg.Capabilities, len(capabilities.Contracts()))

	require.NoError(t, validate(path))
}

func TestExport_KeepsRecordedStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capability-registry.json")
	_, err := export(path)
	require.NoError(t, err)
	require.NoError(t, update(path, "notify.send", "status", registry.StatusVerified))
	require.NoError(t, update(path, "notify.send", "timeout", "15s"))

	reg, err := export(path)
	require.NoError(t, err)

	c, ok := reg.Find("notify.send")
	require.True(t, ok)
	assert.Equal(t, registry.StatusVerified, c.Status)
	assert.Equal(t, "15s", c.Timeout)

	other, _ := reg.Find("client.search")
	assert.Equal(t, registry.StatusImplemented, other.Status)
}

func TestValidate_DetectsDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capability-registry.json")
	reg, err := export(path)
	require.NoError(t, err)

	reg.Capabilities = reg.Capabilities[1:]
	require.NoError(t, registry.Save(reg, path))

	assert.ErrorContains(t, validate(path), "out of date")
}

func TestHelp_ListsCommands(t *testing.T) {
	var buf bytes.Buffer
	help(&buf)

	out := buf.String()
	for _, cmd := range []string{"export", "validate", "update", "list", "help"} {
		assert.Contains(t, out, "\n  "+cmd+" ")
	}
	assert.Equal(t, 1, strings.Count(out, "Usage: registry-updater"))
	assert.True(t, strings.HasSuffix(out, "command.\n"))
}
