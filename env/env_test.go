package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentuity/querycache/logger"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvFile(t *testing.T) {
	tmp := t.TempDir()

	envs, err := ParseEnvFile(filepath.Join(tmp, "missing.env"))
	assert.NoError(t, err)
	assert.Empty(t, envs)

	fn := filepath.Join(tmp, ".env")
	require.NoError(t, os.WriteFile(fn, []byte(`
# cache backends
REDIS_URL=redis://localhost:6379/0
DATABASE_DRIVER="sqlite"
export QUERY_TIMEOUT=5s
`), 0o644))
	envs, err = ParseEnvFile(fn)
	require.NoError(t, err)
	assert.Equal(t, []EnvLine{
		{Key: "REDIS_URL", Val: "redis://localhost:6379/0"},
		{Key: "DATABASE_DRIVER", Val: "sqlite"},
		{Key: "QUERY_TIMEOUT", Val: "5s"},
	}, envs)
}

func TestParseEnvBuffer(t *testing.T) {
	t.Setenv("QC_TEST_HOST", "db.internal")
	os.Unsetenv("QC_TEST_UNSET")

	testCases := []struct {
		name  string
		input string
		want  []EnvLine
	}{
		{"empty", "", []EnvLine{}},
		{"comments only", "# nothing\n\n", []EnvLine{}},
		{"single quoted", `A='x y'`, []EnvLine{{"A", "x y"}}},
		{"trailing comment", `A=value # note`, []EnvLine{{"A", "value"}}},
		{"value with equals", `DSN=host=db user=me`, []EnvLine{{"DSN", "host=db user=me"}}},
		{"reference earlier key", "PORT=5432\nADDR=localhost:${PORT}", []EnvLine{{"PORT", "5432"}, {"ADDR", "localhost:5432"}}},
		{"reference process env", `URL=postgres://${QC_TEST_HOST}/q`, []EnvLine{{"URL", "postgres://db.internal/q"}}},
		{"default", `URL=${QC_TEST_UNSET:-sqlite}`, []EnvLine{{"URL", "sqlite"}}},
		{"unset kept", `URL=${QC_TEST_UNSET}`, []EnvLine{{"URL", "${QC_TEST_UNSET}"}}},
		{"single quotes are literal", `A='${QC_TEST_HOST}'`, []EnvLine{{"A", "${QC_TEST_HOST}"}}},
		{"unterminated", `A=${QC_TEST_HOST`, []EnvLine{{"A", "${QC_TEST_HOST"}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseEnvBuffer([]byte(tc.input))
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ParseEnvBuffer([]byte("NOT A PAIR"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	tmp := t.TempDir()
	template := filepath.Join(tmp, ".env.template")
	local := filepath.Join(tmp, ".env")
	require.NoError(t, os.WriteFile(template, []byte("QC_TEST_A=template\nQC_TEST_B=template\n"), 0o644))
	require.NoError(t, os.WriteFile(local, []byte("QC_TEST_B=local\n"), 0o644))
	t.Setenv("QC_TEST_A", "process")
	t.Setenv("QC_TEST_B", "")

	require.NoError(t, Load(template, local, filepath.Join(tmp, "missing")))
	assert.Equal(t, "template", os.Getenv("QC_TEST_A"))
	assert.Equal(t, "local", os.Getenv("QC_TEST_B"))
}

func TestFlagOrEnv(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("test-flag", "", "Test flag")

	cmd.Flags().Set("test-flag", "flag-value")
	assert.Equal(t, "flag-value", FlagOrEnv(cmd, "test-flag", "QC_TEST_ENV", "default"))

	cmd.Flags().Set("test-flag", "")
	t.Setenv("QC_TEST_ENV", "env-value")
	assert.Equal(t, "env-value", FlagOrEnv(cmd, "test-flag", "QC_TEST_ENV", "default"))

	os.Unsetenv("QC_TEST_ENV")
	assert.Equal(t, "default", FlagOrEnv(cmd, "test-flag", "QC_TEST_ENV", "default"))
}

func TestLogLevel(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "Log level")

	testCases := []struct {
		name      string
		flagValue string
		envValue  string
		expected  logger.LogLevel
	}{
		{"debug level via flag", "debug", "", logger.LevelDebug},
		{"debug level via env", "", "DEBUG", logger.LevelDebug},
		{"warn level via flag", "warn", "", logger.LevelWarn},
		{"error level via env", "", "ERROR", logger.LevelError},
		{"trace level via flag", "trace", "", logger.LevelTrace},
		{"flag wins over env", "error", "debug", logger.LevelError},
		{"default level", "", "", logger.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd.Flags().Set("log-level", tc.flagValue)
			t.Setenv(logger.EnvLogLevel, tc.envValue)
			assert.Equal(t, tc.expected, LogLevel(cmd))
		})
	}
}
