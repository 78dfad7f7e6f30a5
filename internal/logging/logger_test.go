package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerWritesLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, true)

	logger.Info("loaded %s", "table")
	logger.Warn("slow")
	logger.Error("failed %d", 3)
	logger.Debug("details")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"✓ loaded table",
		"⚠ slow",
		"✗ failed 3",
		"[DEBUG] details",
	}, lines)
}

func TestLoggerDebugDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestLoggerNamed(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false).Named("sftp")

	logger.Info("Connected to SFTP: %s", "files.example.com")
	assert.Equal(t, "✓ sftp: Connected to SFTP: files.example.com\n", buf.String())
}

func TestNamedLoggersShareLock(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter(&buf, false)
	loggers := []*Logger{root.Named("warehouse"), root.Named("sftpclient"), root}

	var wg sync.WaitGroup
	for _, l := range loggers {
		wg.Add(1)
		go func(l *Logger) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.Info("line %d", i)
			}
		}(l)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 300)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "✓ "), "interleaved line %q", line)
	}
	assert.Same(t, root.mu, loggers[0].mu)
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Info("nothing")
	logger.Error("nothing")
}

func TestRedactFunction(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		secrets  []string
		expected string
	}{
		{
			name:     "single secret redacted",
			input:    "The password is secret123",
			secrets:  []string{"secret123"},
			expected: "The password is [REDACTED]",
		},
		{
			name:     "multiple secrets redacted",
			input:    "User admin with password secret123 and API key abc123",
			secrets:  []string{"admin", "secret123", "abc123"},
			expected: "User [REDACTED] with password [REDACTED] and API key [REDACTED]",
		},
		{
			name:     "empty secret ignored",
			input:    "This has no secrets",
			secrets:  []string{""},
			expected: "This has no secrets",
		},
		{
			name:     "short secret ignored",
			input:    "Short secret: ab",
			secrets:  []string{"ab"},
			expected: "Short secret: ab", // Too short to redact
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Redact(tt.input, tt.secrets))
		})
	}
}
