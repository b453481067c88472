package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// testEnv is a config file and database in a temp dir.
type testEnv struct {
	dir    string
	config string
	db     string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:    dir,
		config: filepath.Join(dir, "usb.yaml"),
		db:     filepath.Join(dir, "usb.db"),
	}
	content := "db_path: " + env.db + `
log_level: error
account_proxy: bitsong1proxy
ibc_client: bitsong1ibcclient
admin: bitsong1admin
namespace_owner: bitsong1owner
accounts:
  bitsong1alice: local-7
`
	require.NoError(t, os.WriteFile(env.config, []byte(content), 0644))
	return env
}

func (e testEnv) rootOpts(format string) *RootOptions {
	return &RootOptions{Format: format, ConfigPath: e.config}
}

// writeFile writes content to name under the env dir and returns its path.
func (e testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}
