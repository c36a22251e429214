package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/cadence/internal/observability"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestInteractiveArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"hello there", []string{"deliver", "hello there"}},
		{":timing hi", []string{"timing", "hi"}},
		{":deliver --mode instant hi", []string{"deliver", "--mode", "instant", "hi"}},
		{":", nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := interactiveArgs(tt.line)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunInteractive(t *testing.T) {
	t.Setenv("CADENCE_LOGGER_LEVEL", "fatal")
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	in := strings.NewReader("\n:deliver --mode instant hello\n:quit\n:deliver --mode instant never\n")
	var out bytes.Buffer

	err := runInteractive(context.Background(), in, &out, true)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "hello\n")
	assert.Contains(t, out.String(), "Exiting cadence.")
	assert.NotContains(t, out.String(), "never", "input after :quit is not read")
}

func TestRunInteractive_EOF(t *testing.T) {
	var out bytes.Buffer
	err := runInteractive(context.Background(), strings.NewReader(""), &out, true)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "cadence > ")
}

func TestRunInteractive_Piped(t *testing.T) {
	t.Setenv("CADENCE_LOGGER_LEVEL", "fatal")
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	var out bytes.Buffer
	err := runInteractive(context.Background(), strings.NewReader(":deliver --mode instant piped\n"), &out, false)
	require.NoError(t, err)
	assert.Equal(t, "piped\n", out.String(), "no banner or prompt without a terminal")
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("WritesPanicLog", func(t *testing.T) {
		var path string
		var content []byte
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			path, content = name, data
			return nil
		}
		exitCode := -1
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()

		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, string(content), "panic: boom")
		assert.Equal(t, 2, exitCode)
	})

	t.Run("WriteFailure", func(t *testing.T) {
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		exitCode := -1
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 2, exitCode)
	})

	t.Run("NoPanic", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		assert.False(t, called)
	})
}
