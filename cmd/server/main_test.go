package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// run executes the root command against a throwaway SQLite file.
func run(t *testing.T, dbPath, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("VALUES_STORE", "sqlite")
	t.Setenv("VALUES_DB_PATH", dbPath)
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCodesAddAndList(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "values.db")

	out, err := run(t, dbPath, "", "codes", "add", "--bootstrap")
	require.NoError(t, err)
	assert.Equal(t, "DEMO456\t5\nTEST123\t10\nTESTALT\t15\n", out)

	_, err = run(t, dbPath, "", "codes", "add", "SPRING", "3")
	require.NoError(t, err)
	_, err = run(t, dbPath, "", "codes", "add", "TEST123", "1")
	require.NoError(t, err)

	out, err = run(t, dbPath, "", "codes", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "CODE"))
	assert.Contains(t, out, "SPRING")
	for _, l := range lines {
		if strings.HasPrefix(l, "TEST123 ") {
			assert.Equal(t, "1", strings.Fields(l)[1])
		}
	}
}

func TestCodesAddRejectsBadArgs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "values.db")
	_, err := run(t, dbPath, "", "codes", "add", "ONLYCODE")
	assert.Error(t, err)
	_, err = run(t, dbPath, "", "codes", "add", "CODE", "many")
	assert.Error(t, err)
	_, err = run(t, dbPath, "", "codes", "add", "CODE", "-1")
	assert.Error(t, err)
	_, err = run(t, dbPath, "", "codes", "add", "--bootstrap", "CODE", "1")
	assert.Error(t, err)
}

func TestExportEmptyStore(t *testing.T) {
	out, err := run(t, filepath.Join(t.TempDir(), "values.db"), "", "export")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "submission_id,user_id,username,access_code"))
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1)
}

func TestHashPassword(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "values.db")
	out, err := run(t, dbPath, "hunter2\n", "hash-password")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("hunter2")))

	_, err = run(t, dbPath, "", "hash-password")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, filepath.Join(t.TempDir(), "values.db"), "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "valuesreport "))
}

func TestServeRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	_, err := run(t, filepath.Join(t.TempDir(), "values.db"), "", "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_TOKEN")
}
