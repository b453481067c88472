package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantiate(t *testing.T, env testEnv) {
	t.Helper()
	out, err := execute(NewInitCommand(env.rootOpts("text")), "--count", "5", "--set", "mode=direct")
	require.NoError(t, err)
	assert.Contains(t, out, "instantiate_reply: success")
	assert.Contains(t, out, "count: 5")
	assert.Contains(t, out, "mode=direct")
}

func TestInitThenCount(t *testing.T) {
	env := newTestEnv(t)
	instantiate(t, env)

	out, err := execute(NewCountCommand(env.rootOpts("text")), "get")
	require.NoError(t, err)
	assert.Equal(t, "count: 5\n", out)

	out, err = execute(NewCountCommand(env.rootOpts("json")), "inc", "--caller", "bitsong1admin")
	require.NoError(t, err)
	var resp struct {
		Data StateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Data.Count)
	assert.Equal(t, int32(6), *resp.Data.Count)

	out, err = execute(NewCountCommand(env.rootOpts("text")), "reset", "0", "--caller", "bitsong1admin")
	require.NoError(t, err)
	assert.Equal(t, "count: 0\n", out)
}

func TestCountRejectsNonAdmin(t *testing.T) {
	env := newTestEnv(t)
	instantiate(t, env)

	out, err := execute(NewCountCommand(env.rootOpts("json")), "inc", "--caller", "bitsong1alice")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)

	out, err = execute(NewCountCommand(env.rootOpts("text")), "get")
	require.NoError(t, err)
	assert.Equal(t, "count: 5\n", out, "rejected increment leaves the count")
}

func TestCountBeforeInit(t *testing.T) {
	env := newTestEnv(t)

	_, err := execute(NewCountCommand(env.rootOpts("text")), "get")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "not instantiated")
}

func TestCountResetInvalid(t *testing.T) {
	env := newTestEnv(t)

	_, err := execute(NewCountCommand(env.rootOpts("text")), "reset", "many", "--caller", "bitsong1admin")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStatusSetAndGet(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(NewStatusCommand(env.rootOpts("text")), "set", "active", "--caller", "bitsong1alice")
	require.NoError(t, err)
	assert.Equal(t, "local-7: active\n", out)

	out, err = execute(NewStatusCommand(env.rootOpts("text")), "get", "local-7")
	require.NoError(t, err)
	assert.Equal(t, "local-7: active\n", out)

	// Unmapped addresses are their own account ID.
	_, err = execute(NewStatusCommand(env.rootOpts("text")), "set", "idle", "--caller", "bitsong1bob")
	require.NoError(t, err)
	out, err = execute(NewStatusCommand(env.rootOpts("text")), "get", "bitsong1bob")
	require.NoError(t, err)
	assert.Equal(t, "bitsong1bob: idle\n", out)
}

func TestStatusGetUnknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := execute(NewStatusCommand(env.rootOpts("text")), "get", "local-9")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "no status for account local-9")
}

func TestStatusSetRequiresCaller(t *testing.T) {
	env := newTestEnv(t)

	_, err := execute(NewStatusCommand(env.rootOpts("text")), "set", "active")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caller")
}

func TestConfigUpdateAndShow(t *testing.T) {
	env := newTestEnv(t)
	instantiate(t, env)

	_, err := execute(NewConfigCommand(env.rootOpts("text")), "update", "mode=hosted", "region=eu", "--caller", "bitsong1owner")
	require.NoError(t, err)

	out, err := execute(NewConfigCommand(env.rootOpts("json")), "show")
	require.NoError(t, err)
	var resp struct {
		Data StateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, map[string]string{"mode": "hosted", "region": "eu"}, resp.Data.Config)
}

func TestConfigUpdateRejectsNonOwner(t *testing.T) {
	env := newTestEnv(t)
	instantiate(t, env)

	out, err := execute(NewConfigCommand(env.rootOpts("json")), "update", "mode=hosted", "--caller", "bitsong1alice")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)

	out, err = execute(NewConfigCommand(env.rootOpts("text")), "show")
	require.NoError(t, err)
	assert.Equal(t, "mode=direct\n", out)
}

func TestConfigShowEmpty(t *testing.T) {
	env := newTestEnv(t)

	_, err := execute(NewConfigCommand(env.rootOpts("text")), "show")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestParseEntries(t *testing.T) {
	entries, err := parseEntries([]string{"mode=direct", "empty=", "url=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mode": "direct", "empty": "", "url": "a=b"}, entries)

	_, err = parseEntries([]string{"novalue"})
	require.Error(t, err)
	_, err = parseEntries([]string{"=v"})
	require.Error(t, err)
}

func TestStateResultString(t *testing.T) {
	assert.Equal(t, "ok", StateResult{}.String())

	n := int32(3)
	r := StateResult{Count: &n, Config: map[string]string{"b": "2", "a": "1"}}
	assert.Equal(t, "count: 3\na=1\nb=2", r.String())
}
