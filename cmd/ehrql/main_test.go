package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensafely-core/ehrql-go/config"
	"github.com/opensafely-core/ehrql-go/dialect/mssql"
	"github.com/opensafely-core/ehrql-go/dialect/sqlite"
)

func TestResolveDialectDefaultsToSQLite(t *testing.T) {
	d, err := resolveDialect(config.Config{})
	require.NoError(t, err)
	assert.IsType(t, sqlite.New(), d)
}

func TestResolveDialectSelectsMSSQL(t *testing.T) {
	d, err := resolveDialect(config.Config{QueryEngine: "mssql"})
	require.NoError(t, err)
	assert.IsType(t, mssql.New(), d)
}

func TestResolveDialectRejectsUnknownEngine(t *testing.T) {
	_, err := resolveDialect(config.Config{QueryEngine: "postgres"})
	assert.Error(t, err)
}

func TestOpenOutputDefaultsToStdout(t *testing.T) {
	w, closeFn, err := openOutput("")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, w)
	assert.NoError(t, closeFn())
}

func TestOpenOutputCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, closeFn, err := openOutput(path)
	require.NoError(t, err)
	_, writeErr := w.Write([]byte("hello"))
	require.NoError(t, writeErr)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
