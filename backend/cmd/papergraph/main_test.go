package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papergraph/backend/internal/batch"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitError, exitCode(errors.New("plain")))
	assert.Equal(t, ExitConfigError, exitCode(withCode(ExitConfigError, errors.New("missing NEO4J_URI"))))
	assert.Nil(t, withCode(ExitStoreError, nil))

	wrapped := withCode(ExitStoreError, fmt.Errorf("verify: %w", errors.New("refused")))
	assert.Equal(t, "verify: refused", wrapped.Error())
}

func TestProgressCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	p := batch.NewProgress(path)
	require.NoError(t, p.Enqueue(map[string]string{"a": "/c/a.pdf", "b": "/c/b.pdf", "c": "/c/c.pdf"}))
	require.NoError(t, p.Set("a", batch.StatusSucceeded, ""))
	require.NoError(t, p.Set("b", batch.StatusFailed, "text extraction: no text"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"progress", "--progress", path})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "papers: 3")
	assert.Contains(t, out.String(), "not finished:            1")
	assert.Contains(t, out.String(), "text extraction: no text")
}

func TestProgressCommand_MissingFile(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"progress", "--progress", filepath.Join(t.TempDir(), "none.json")})
	assert.Error(t, rootCmd.Execute())
}
