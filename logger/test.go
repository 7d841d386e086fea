package logger

import (
	"fmt"
	"strings"
	"sync"
)

type TestLogEntry struct {
	Severity  string
	Message   string
	Arguments []interface{}
	Metadata  map[string]interface{}
}

type testLogStore struct {
	mu   sync.Mutex
	logs []TestLogEntry
}

// TestLogger records every log call so tests can assert on them. Loggers
// derived with With or WithPrefix share the parent's record store.
type TestLogger struct {
	store    *testLogStore
	metadata map[string]interface{}
	prefix   string
}

var _ Logger = (*TestLogger)(nil)

func NewTestLogger() *TestLogger {
	return &TestLogger{store: &testLogStore{}}
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	kv := make(map[string]interface{}, len(c.metadata)+len(metadata))
	for k, v := range c.metadata {
		kv[k] = v
	}
	for k, v := range metadata {
		kv[k] = v
	}
	return &TestLogger{store: c.store, metadata: kv, prefix: c.prefix}
}

func (c *TestLogger) WithPrefix(prefix string) Logger {
	return &TestLogger{store: c.store, metadata: c.metadata, prefix: c.prefix + prefix + " "}
}

func (c *TestLogger) IsLevelEnabled(level LogLevel) bool {
	return true
}

func (c *TestLogger) log(severity string, msg string, args ...interface{}) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.logs = append(c.store.logs, TestLogEntry{severity, c.prefix + msg, args, c.metadata})
}

func (c *TestLogger) Trace(msg string, args ...interface{}) { c.log("TRACE", msg, args...) }
func (c *TestLogger) Debug(msg string, args ...interface{}) { c.log("DEBUG", msg, args...) }
func (c *TestLogger) Info(msg string, args ...interface{})  { c.log("INFO", msg, args...) }
func (c *TestLogger) Warn(msg string, args ...interface{})  { c.log("WARNING", msg, args...) }
func (c *TestLogger) Error(msg string, args ...interface{}) { c.log("ERROR", msg, args...) }

// Logs returns a snapshot of the recorded entries.
func (c *TestLogger) Logs() []TestLogEntry {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	out := make([]TestLogEntry, len(c.store.logs))
	copy(out, c.store.logs)
	return out
}

// Contains reports whether any entry of the given severity has a formatted
// message containing substr.
func (c *TestLogger) Contains(severity, substr string) bool {
	for _, e := range c.Logs() {
		if e.Severity != severity {
			continue
		}
		if strings.Contains(fmt.Sprintf(e.Message, e.Arguments...), substr) {
			return true
		}
	}
	return false
}
