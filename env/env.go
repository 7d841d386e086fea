// Package env loads dotenv files into the process environment and resolves
// command settings from flags and environment variables.
package env

import (
	"os"
	"strings"

	"github.com/agentuity/querycache/logger"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// DefaultFiles are loaded in order by Load when no files are given; later
// files override earlier ones.
var DefaultFiles = []string{".env.template", ".env"}

type EnvLine struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// ParseEnvFile parses a dotenv file. A missing file yields no lines.
func ParseEnvFile(filename string) ([]EnvLine, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []EnvLine{}, nil
		}
		return nil, errors.Wrapf(err, "read %s", filename)
	}
	return ParseEnvBuffer(buf)
}

// ParseEnvBuffer parses dotenv content. Blank lines and # comments are
// skipped, an optional export prefix is dropped, and ${VAR} and
// ${VAR:-default} references are expanded against earlier keys of the buffer
// and then the process environment.
func ParseEnvBuffer(buf []byte) ([]EnvLine, error) {
	envs := make([]EnvLine, 0)
	seen := make(map[string]string)
	for n, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Newf("line %d: expected KEY=value", n+1)
		}
		raw := strings.TrimSpace(val)
		val = dequote(raw)
		if !strings.HasPrefix(raw, "'") {
			val = interpolate(val, func(name string) (string, bool) {
				if v, ok := seen[name]; ok {
					return v, true
				}
				return os.LookupEnv(name)
			})
		}
		seen[key] = val
		envs = append(envs, EnvLine{Key: key, Val: val})
	}
	return envs, nil
}

func dequote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	if i := strings.Index(s, " #"); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// interpolate expands ${NAME} and ${NAME:-default}. An unset or empty NAME
// takes the default; without a default an unset reference is kept verbatim.
func interpolate(input string, lookup func(string) (string, bool)) string {
	var sb strings.Builder
	for {
		start := strings.Index(input, "${")
		if start < 0 {
			sb.WriteString(input)
			return sb.String()
		}
		end := strings.IndexByte(input[start:], '}')
		if end < 0 {
			sb.WriteString(input)
			return sb.String()
		}
		end += start
		sb.WriteString(input[:start])
		ref := input[start : end+1]
		name, def, hasDefault := strings.Cut(input[start+2:end], ":-")
		val, ok := lookup(name)
		switch {
		case ok && val != "":
			sb.WriteString(val)
		case hasDefault:
			sb.WriteString(def)
		case ok:
		default:
			sb.WriteString(ref)
		}
		input = input[end+1:]
	}
}

// Load applies the given dotenv files, or DefaultFiles, to the process
// environment. Values from files override variables already set. Missing
// files are skipped.
func Load(files ...string) error {
	if len(files) == 0 {
		files = DefaultFiles
	}
	for _, f := range files {
		lines, err := ParseEnvFile(f)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if err := os.Setenv(l.Key, l.Val); err != nil {
				return errors.Wrapf(err, "set %s from %s", l.Key, f)
			}
		}
	}
	return nil
}

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok && val != "" {
		return val
	}
	return defaultValue
}

// LogLevel resolves the log level from the log-level flag, then
// QUERYCACHE_LOG_LEVEL, then info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	return logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.EnvLogLevel, "info"))
}

// NewLogger returns a console logger at the level chosen by LogLevel.
func NewLogger(cmd *cobra.Command) logger.Logger {
	return logger.NewConsoleLogger(LogLevel(cmd))
}
