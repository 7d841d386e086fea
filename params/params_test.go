package params

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func testSchema() Schema {
	return Schema{Params: []Param{
		{Name: "repoId", Replaces: "41986369"},
		{Name: "period", Replaces: "__PERIOD__", Template: map[string]string{
			"last_28_days": "INTERVAL 28 DAY",
			"last_90_days": "INTERVAL 90 DAY",
		}, Default: strptr("last_28_days")},
		{Name: "limit", Replaces: "__LIMIT__", Default: strptr("10")},
	}}
}

const testTemplate = `SELECT * FROM events WHERE repo_id = 41986369 AND created_at > NOW() - __PERIOD__ LIMIT __LIMIT__`

func TestRender(t *testing.T) {
	sql, err := Render(testTemplate, testSchema(), map[string]string{"repoId": "1", "period": "last_90_days"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM events WHERE repo_id = 1 AND created_at > NOW() - INTERVAL 90 DAY LIMIT 10`, sql)
}

func TestRenderReplacesAllOccurrences(t *testing.T) {
	schema := Schema{Params: []Param{{Name: "id", Replaces: "__ID__"}}}
	out, err := Render("a=__ID__ OR b=__ID__", schema, map[string]string{"id": "7"})
	require.NoError(t, err)
	assert.Equal(t, "a=7 OR b=7", out)
}

func TestRenderDeterministic(t *testing.T) {
	values := map[string]string{"repoId": "42", "limit": "5"}
	first, err := Render(testTemplate, testSchema(), values)
	require.NoError(t, err)
	second, err := Render(testTemplate, testSchema(), values)
	require.NoError(t, err)
	assert.Equal(t, []byte(first), []byte(second))
}

func TestRenderMissingParameter(t *testing.T) {
	_, err := Render(testTemplate, testSchema(), map[string]string{"period": "last_90_days"})
	require.Error(t, err)
	var missing *MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "repoId", missing.Name)
	assert.ErrorIs(t, err, ErrBadParams)
}

func TestRenderInvalidParameterValue(t *testing.T) {
	_, err := Render(testTemplate, testSchema(), map[string]string{"repoId": "1", "period": "forever"})
	var invalid *InvalidParameterValueError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "period", invalid.Name)
	assert.Equal(t, "forever", invalid.Value)
	assert.ErrorIs(t, err, ErrBadParams)
}

func TestRenderDoesNotRematchSubstitutedText(t *testing.T) {
	schema := Schema{Params: []Param{
		{Name: "a", Replaces: "{{A}}"},
		{Name: "b", Replaces: "{{B}}"},
	}}
	out, err := Render("{{A}}-{{B}}", schema, map[string]string{"a": "x", "b": "y"})
	require.NoError(t, err)
	assert.Equal(t, "x-y", out)
}

func TestResolve(t *testing.T) {
	vals, err := testSchema().Resolve(map[string]string{"repoId": "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "last_28_days", "10"}, vals)

	_, err = testSchema().Resolve(map[string]string{"repoId": "1", "period": "nope"})
	assert.ErrorIs(t, err, ErrBadParams)

	_, err = testSchema().Resolve(nil)
	var missing *MissingParameterError
	assert.True(t, errors.As(err, &missing))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, testSchema().Validate())

	tests := []struct {
		name   string
		schema Schema
	}{
		{"empty name", Schema{Params: []Param{{Replaces: "x"}}}},
		{"empty token", Schema{Params: []Param{{Name: "x"}}}},
		{"duplicate name", Schema{Params: []Param{{Name: "x", Replaces: "__A__"}, {Name: "x", Replaces: "__B__"}}}},
		{"overlapping tokens", Schema{Params: []Param{{Name: "a", Replaces: "__ID__"}, {Name: "b", Replaces: "__ID__X"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.schema.Validate(), ErrInvalidSchema)
		})
	}
}
