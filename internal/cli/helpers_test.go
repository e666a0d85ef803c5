package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/zugdienste/internal/config"
	"github.com/roach88/zugdienste/internal/ingest"
	"github.com/roach88/zugdienste/internal/testutil"
)

// executeCommand runs the CLI with a frozen clock and run ID "run-1".
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	cmd := newRootCommand(ingest.Deps{
		Clock:  testutil.NewFixedClock(time.Time{}),
		RunIDs: testutil.NewFixedRunIDGenerator("run-1"),
	})
	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// clearEnv keeps the developer's ZUGDIENSTE_* variables out of the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvInstallationPath,
		config.EnvUserPath,
		config.EnvDatabase,
		config.EnvWorkers,
	} {
		t.Setenv(key, "")
	}
}

// writeConfigFile writes a minimal configuration for install and db.
func writeConfigFile(t *testing.T, install, db string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zugdienste.yaml")
	content := fmt.Sprintf("paths:\n  installation_path: %q\ndatabase: %q\n", install, db)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// scannedDatabase scans a root holding HamburgKassel and returns the database.
func scannedDatabase(t *testing.T) string {
	t.Helper()
	clearEnv(t)

	install := t.TempDir()
	testutil.WriteService(t, install, testutil.HamburgKasselRel, testutil.HamburgKassel())
	db := filepath.Join(t.TempDir(), "services.db")

	_, stderr, err := executeCommand(t, "scan", "--config", writeConfigFile(t, install, db), "--env-file=")
	require.NoError(t, err, stderr)
	return db
}

// decodeResponse unmarshals a JSON CLIResponse whose data is decoded into data.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.CLIResponse
}
