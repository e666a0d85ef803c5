package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
paths:
  installation_path: /opt/zusi/Timetables
  user_path: /home/me/Zusi3/Timetables
database: out/services.db
service_suffix: .timetable.xml
train_suffix: .trn
exclusion_keywords: [" Test ", ALT]
workers: 4
prune: true
metrics_file: metrics.prom
`)

	cfg, err := NewLoader(path).WithLookup(noEnv).Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean("/opt/zusi/Timetables"), cfg.Paths.InstallationPath)
	assert.Equal(t, filepath.Clean("/home/me/Zusi3/Timetables"), cfg.Paths.UserPath)
	assert.Equal(t, "out/services.db", cfg.Database)
	assert.Equal(t, []string{"test", "alt"}, cfg.ExclusionKeywords)
	assert.Equal(t, 4, cfg.Workers)
	assert.True(t, cfg.Prune)
	assert.Equal(t, "metrics.prom", cfg.MetricsFile)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
paths:
  installation_path: /opt/zusi/Timetables
`)

	cfg, err := NewLoader(path).WithLookup(noEnv).Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, DefaultServiceSuffix, cfg.ServiceSuffix)
	assert.Equal(t, DefaultTrainSuffix, cfg.TrainSuffix)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Empty(t, cfg.Paths.UserPath)
	assert.False(t, cfg.Prune)
}

func TestLoadMissingInstallationPath(t *testing.T) {
	path := writeConfig(t, `
paths:
  user_path: /home/me/Zusi3/Timetables
`)

	_, err := NewLoader(path).WithLookup(noEnv).Load()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "paths.installation_path", cfgErr.Field)
	assert.Equal(t, path, cfgErr.File)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
paths:
  installation_path: /opt/zusi
  installationPath: /typo
`)

	_, err := NewLoader(path).WithLookup(noEnv).Load()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, `
paths:
  installation_path: /opt/zusi
---
paths:
  installation_path: /other
`)

	_, err := NewLoader(path).WithLookup(noEnv).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	path := writeConfig(t, "")

	_, err := NewLoader(path).WithLookup(noEnv).Load()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

func TestLoadRejectsNonYAMLExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"paths":{}}`), 0644))

	_, err := NewLoader(path).WithLookup(noEnv).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only YAML supported")
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	_, err := NewLoader(path).WithLookup(noEnv).Load()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadSchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name: "workers too high",
			content: `
paths:
  installation_path: /opt/zusi
workers: 500
`,
			field: "workers",
		},
		{
			name: "workers zero",
			content: `
paths:
  installation_path: /opt/zusi
workers: 0
`,
			field: "workers",
		},
		{
			name: "suffix without dot",
			content: `
paths:
  installation_path: /opt/zusi
service_suffix: timetable.xml
`,
			field: "service_suffix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)

			_, err := NewLoader(path).WithLookup(noEnv).Load()
			require.Error(t, err)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %T: %v", err, err)
			assert.Contains(t, cfgErr.Error(), tt.field)
		})
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
paths:
  installation_path: /opt/zusi
database: file.db
workers: 2
`)

	cfg, err := NewLoader(path).WithLookup(envMap(map[string]string{
		EnvInstallationPath: "/mnt/zusi",
		EnvUserPath:         "/mnt/user",
		EnvDatabase:         "env.db",
		EnvWorkers:          "8",
	})).Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean("/mnt/zusi"), cfg.Paths.InstallationPath)
	assert.Equal(t, filepath.Clean("/mnt/user"), cfg.Paths.UserPath)
	assert.Equal(t, "env.db", cfg.Database)
	assert.Equal(t, 8, cfg.Workers)
}

func TestLoadEnvOnly(t *testing.T) {
	cfg, err := NewLoader("").WithLookup(envMap(map[string]string{
		EnvInstallationPath: "/mnt/zusi",
	})).Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean("/mnt/zusi"), cfg.Paths.InstallationPath)
	assert.Equal(t, DefaultDatabase, cfg.Database)
}

func TestLoadInvalidWorkersEnv(t *testing.T) {
	_, err := NewLoader("").WithLookup(envMap(map[string]string{
		EnvInstallationPath: "/mnt/zusi",
		EnvWorkers:          "many",
	})).Load()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, EnvWorkers, cfgErr.Field)
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ZUGDIENSTE_INSTALLATION_PATH=/from/dotenv\nZUGDIENSTE_DATABASE=dotenv.db\n"), 0644))

	cfg, err := NewLoader("").
		WithEnvFile(envFile).
		WithLookup(envMap(map[string]string{EnvDatabase: "process.db"})).
		Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean("/from/dotenv"), cfg.Paths.InstallationPath)
	assert.Equal(t, "process.db", cfg.Database, "process env wins over .env")
}

func TestLoadMissingDotEnvIgnored(t *testing.T) {
	cfg, err := NewLoader("").
		WithEnvFile(filepath.Join(t.TempDir(), ".env")).
		WithLookup(envMap(map[string]string{EnvInstallationPath: "/mnt/zusi"})).
		Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/mnt/zusi"), cfg.Paths.InstallationPath)
}
