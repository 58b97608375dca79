package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/rostermap/pkg/roster"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rostermap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// TestExpandEnvVars tests the expandEnvVars function.
func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_ONE", "value_one")
	t.Setenv("TEST_VAR_TWO", "value_two")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single variable", input: "${TEST_VAR_ONE}", expected: "value_one"},
		{name: "multiple variables", input: "${TEST_VAR_ONE}/${TEST_VAR_TWO}", expected: "value_one/value_two"},
		{name: "variable in path", input: "/data/${TEST_VAR_ONE}/state.db", expected: "/data/value_one/state.db"},
		{name: "unset variable stays as-is", input: "${UNSET_VARIABLE}", expected: "${UNSET_VARIABLE}"},
		{name: "no variables", input: "plain string", expected: "plain string"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Dir(cfgPath), cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(filepath.Dir(cfgPath), DefaultStateFile), cfg.StatePath)
	assert.Equal(t, filepath.Join(filepath.Dir(cfgPath), DefaultOutputDir), cfg.OutputDir)
	assert.Equal(t, DefaultStation, cfg.Station)
	assert.Equal(t, DefaultStation, cfg.FallbackStation)
	assert.Equal(t, roster.DefaultSeparators, cfg.Separators)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DownloadStyled, cfg.DownloadMode)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, cfgPath, GetConfigFileUsed())
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, `state_path: /var/lib/rostermap/state.db
station: sgn
separators: ["+", "/"]
workers: 8
download_mode: PLAIN
log_level: DEBUG
stations:
  han:
    separators: ["|"]
    fallback_station: sgn
`)

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/rostermap/state.db", cfg.StatePath)
	assert.Equal(t, "sgn", cfg.Station)
	assert.Equal(t, []string{"+", "/"}, cfg.Separators)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, DownloadPlain, cfg.DownloadMode)
	assert.Equal(t, "debug", cfg.LogLevel)

	assert.Equal(t, []string{"|"}, cfg.SeparatorsFor("HAN"))
	assert.Equal(t, []string{"+", "/"}, cfg.SeparatorsFor("SGN"))
	assert.Equal(t, "sgn", cfg.FallbackFor(" han "))
	assert.Equal(t, DefaultStation, cfg.FallbackFor("DAD"))
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	ResetConfig()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadConfig_Invalid(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "workers: 0\n")
	_, err := LoadConfig(cfgPath, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers must be at least 1")
}

// TestLoadConfig_FlagPrecedence tests that flags override env vars and config file.
func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "station: from_file\n")
	t.Setenv("ROSTERMAP_STATION", "from_env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("station", "", "station code")
	flags.StringArray("separator", nil, "separator")
	flags.String("state", "", "state path")
	require.NoError(t, flags.Set("station", "from_flag"))
	require.NoError(t, flags.Set("separator", ","))
	require.NoError(t, flags.Set("separator", "-"))
	require.NoError(t, flags.Set("state", ":memory:"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "from_flag", cfg.Station, "flag value should override config file and env var")
	assert.Equal(t, []string{",", "-"}, cfg.Separators)
	assert.Equal(t, ":memory:", cfg.StatePath)
}

// TestLoadConfig_EnvPrecedenceOverFile tests that env vars override config file.
func TestLoadConfig_EnvPrecedenceOverFile(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "station: from_file\nworkers: 2\n")
	t.Setenv("ROSTERMAP_STATION", "from_env")
	t.Setenv("ROSTERMAP_WORKERS", "6")
	t.Setenv("ROSTERMAP_SEPARATORS", "/,")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "from_env", cfg.Station)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, []string{"/", ","}, cfg.Separators)
}

// TestLoadConfig_FlagNotSetUsesEnv tests that unset flags fall back to env vars.
func TestLoadConfig_FlagNotSetUsesEnv(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "station: from_file\n")
	t.Setenv("ROSTERMAP_STATION", "from_env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("station", "", "station code")

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Station, "env var should be used when flag is not set")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		errLike string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "empty state path", mutate: func(c *Config) { c.StatePath = "" }, errLike: "state_path is required"},
		{name: "blank station", mutate: func(c *Config) { c.Station = " " }, errLike: "station is required"},
		{name: "bad output", mutate: func(c *Config) { c.OutputFormat = "xml" }, errLike: "invalid output format"},
		{name: "bad download mode", mutate: func(c *Config) { c.DownloadMode = "raw" }, errLike: "invalid download_mode"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, errLike: "invalid log_level"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, errLike: "invalid log_format"},
		{name: "empty separator", mutate: func(c *Config) { c.Separators = []string{"/", ""} }, errLike: "separators[1] is empty"},
		{
			name: "empty station separator",
			mutate: func(c *Config) {
				c.Stations = map[string]StationConfig{"SGN": {Separators: []string{""}}}
			},
			errLike: "stations.SGN.separators[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errLike == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errLike)
		})
	}
}

func TestFindProjectRootUpward(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "rostermap.yml"), []byte("station: sgn\n"), 0600))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0750))

	assert.Equal(t, root, findProjectRootUpward(nested))
	assert.Empty(t, findProjectRootUpward(t.TempDir()))
}

func TestGetLogger(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, GetLogger(ctx), "missing logger falls back to a discard logger")

	logger := GetLogger(ctx).With("k", "v")
	assert.Same(t, logger, GetLogger(WithLogger(ctx, logger)))
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, Default(), GetConfig(ctx))

	cfg := Default()
	cfg.Station = "SGN"
	assert.Same(t, cfg, GetConfig(WithConfig(ctx, cfg)))
}
