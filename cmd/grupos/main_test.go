package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grupoeconomico/exporter"
	"grupoeconomico/importer"
)

// clearProviderEnv не дает тестам обращаться к настоящим AI провайдерам
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GEMINI_API_KEY", "PERPLEXITY_API_KEY", "LOG_FORMAT", "LOG_LEVEL", "SERVER_PORT"} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, registryURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`log_format: console
log_level: error
batch_pause: 0s
registry:
  receitaws:
    base_url: %s
    timeout: 5s
    enabled: true
    priority: 1
  brasilapi:
    enabled: false
`, registryURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func registryStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/33000167000101") {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "OK", "nome": "VALE S.A.", "situacao": "ATIVA"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ERROR", "message": "not found"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTemplateCommand(t *testing.T) {
	clearProviderEnv(t)
	path := filepath.Join(t.TempDir(), "modelo.xlsx")

	out, err := execute(t, "template", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	table, err := importer.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cnpj", "nome_empresa"}, table.Headers)
}

func TestProcessCommand(t *testing.T) {
	clearProviderEnv(t)
	registry := registryStub(t)
	configPath := writeConfig(t, registry.URL)

	dir := t.TempDir()
	input := filepath.Join(dir, "entrada.csv")
	require.NoError(t, os.WriteFile(input, []byte("nome;CNPJ\nVale;33.000.167/0001-01\nOutra;11.222.333/0001-81\n"), 0o600))
	output := filepath.Join(dir, "saida.csv")

	out, err := execute(t, "--config", configPath, "process", "-i", input, "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Rows:      2")
	assert.Contains(t, out, "Succeeded: 1")
	assert.Contains(t, out, "VALE")

	result, err := importer.ParseFile(output)
	require.NoError(t, err)
	require.Equal(t, 2, result.Len())
	assert.Equal(t, "VALE", result.Rows[0][4])
	assert.Equal(t, "data not found", result.Rows[1][11])
}

func TestProcessCommand_Errors(t *testing.T) {
	clearProviderEnv(t)

	_, err := execute(t, "process")
	assert.Error(t, err, "input flag is required")

	_, err = execute(t, "process", "-i", filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "template")
	assert.Error(t, err)
}

func TestConfigCheckCommand(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	out, err := execute(t, "config-check")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration OK")
	assert.Contains(t, out, "receitaws")
	assert.Contains(t, out, "Perplexity")
	assert.Contains(t, out, "Arbitration: judge gemini-2.0-flash-exp, fallback gemini")
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		flag, output string
		want         exporter.Format
	}{
		{"", "", exporter.FormatExcel},
		{"csv", "out.xlsx", exporter.FormatCSV},
		{"", "out.json", exporter.FormatJSON},
		{"", "out.CSV", exporter.FormatCSV},
		{"", "out.dat", exporter.FormatExcel},
	}
	for _, tt := range tests {
		got, err := resolveFormat(tt.flag, tt.output)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s", tt.flag, tt.output)
	}

	_, err := resolveFormat("pdf", "")
	assert.Error(t, err)
}
