package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCompileCommandText(t *testing.T) {
	out, err := runCommand(t, "compile", "testdata/adults.yaml")
	require.NoError(t, err)
	assert.Equal(t, "SELECT p.given_name FROM \"Person\" AS p WHERE p.age >= 21\n", out)
}

func TestCompileCommandJSON(t *testing.T) {
	out, err := runCommand(t, "compile", "--format", "json", "testdata/adults.yaml")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, `SELECT p.given_name FROM "Person" AS p WHERE p.age >= 21`, data["sql"])
	assert.Equal(t, "person_name", data["shape"])
}

func TestCompileCommandInsertFixture(t *testing.T) {
	out, err := runCommand(t, "compile", "testdata/insert_address.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, `WITH select_query AS (SELECT * FROM "Address" AS a WHERE a.city = 'Budapest')`)
	assert.Contains(t, out, `INSERT INTO "Address" AS a (id, city) SELECT $1, $2`)
	assert.Contains(t, out, "UNION ALL SELECT * FROM insert_query")
}

func TestCompileCommandCompilationFailure(t *testing.T) {
	out, err := runCommand(t, "compile", "testdata/arity_mismatch.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [WRONG_ENTITY_ARITY]")
}

func TestCompileCommandFailureJSON(t *testing.T) {
	out, err := runCommand(t, "compile", "--format", "json", "testdata/arity_mismatch.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "WRONG_ENTITY_ARITY", resp.Error.Code)
}

func TestCompileCommandUnreadableFixture(t *testing.T) {
	_, err := runCommand(t, "compile", "testdata/no_such_file.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileCommandMalformedFixture(t *testing.T) {
	_, err := runCommand(t, "compile", "testdata/bad_opcode.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown opcode")
}

func TestInvalidFormatFlag(t *testing.T) {
	_, err := runCommand(t, "compile", "--format", "xml", "testdata/adults.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestDisasmCommand(t *testing.T) {
	out, err := runCommand(t, "disasm", "testdata/adults.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "for_iter")
	assert.Contains(t, out, "jump_if_false")
	assert.Contains(t, out, "(given_name)")
}

func TestExplainCommand(t *testing.T) {
	out, err := runCommand(t, "explain", "testdata/adults.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "aliases:    p")
	assert.Contains(t, out, "predicate:  p.age >= 21")
	assert.Contains(t, out, "projection: p.given_name")
}

func TestExplainCommandJSON(t *testing.T) {
	out, err := runCommand(t, "explain", "--format", "json", "testdata/adults.yaml")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "p.age >= 21", data["predicate"])
	assert.Equal(t, "p.given_name", data["projection"])
}

func TestLoadFixture(t *testing.T) {
	f, err := LoadFixture("testdata/insert_address.yaml")
	require.NoError(t, err)
	require.Len(t, f.Entities, 1)
	assert.Equal(t, "Address", f.Entities[0].Name)
	assert.Equal(t, []string{"id", "city"}, f.Entities[0].Columns)
	require.NotNil(t, f.Record)
	assert.Same(t, f.Entities[0], f.Record.Entity)
	assert.Equal(t, "Budapest", f.Record.Values["city"])
	require.NotNil(t, f.Program)
}

func TestLoadFixtureRejectsUndeclaredInsertEntity(t *testing.T) {
	_, err := LoadFixture("testdata/bad_insert.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared entity")
}
