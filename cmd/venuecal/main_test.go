package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "venuecal/internal/log"
	"venuecal/internal/preview"
)

func TestMain(m *testing.M) {
	appLog.Init(io.Discard)
	os.Exit(m.Run())
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args,
		"--config", filepath.Join(dir, "config.yaml"),
		"--env-file", filepath.Join(dir, "missing.env"),
	))
	err := cmd.Execute()
	return out.String(), err
}

func TestPreviewCommand_Stdin(t *testing.T) {
	out, err := runCLI(t,
		`{"rule":{"pattern":"monthly","startDate":"2025-01-31","endType":"count","endCount":3}}`,
		"preview")
	require.NoError(t, err)

	var sum preview.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	require.Len(t, sum.Instances, 3)
	assert.Equal(t, "2025-02-28", sum.Instances[1].Date.String())
}

func TestPreviewCommand_HorizonFlags(t *testing.T) {
	out, err := runCLI(t,
		`{"rule":{"pattern":"daily","startDate":"2025-01-01","endType":"none"}}`,
		"preview", "--mode", "count", "--value", "4")
	require.NoError(t, err)

	var sum preview.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Len(t, sum.Instances, 4)
}

func TestPreviewCommand_InvalidRule(t *testing.T) {
	_, err := runCLI(t, `{"rule":{"pattern":"weekly","weekdays":[9],"startDate":"2025-01-01"}}`, "preview")
	assert.Error(t, err)

	_, err = runCLI(t, `not json`, "preview")
	assert.ErrorContains(t, err, "decode preview request")
}

func TestPreviewCommand_FileInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rule.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rule":{"pattern":"custom","startDate":"2025-02-01","customDates":["2025-03-01","2025-02-01"]}}`), 0o600))

	out, err := runCLI(t, "", "preview", "-f", path)
	require.NoError(t, err)

	var sum preview.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	require.Len(t, sum.Instances, 2)
	assert.Equal(t, "2025-02-01", sum.Instances[0].Date.String())
}
