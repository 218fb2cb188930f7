package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "substrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileAppliesDocumentOverDefaults(t *testing.T) {
	path := writeYAML(t, `
workspace:
  root: /srv/workspace
logging:
  level: debug
  format: verbose
orchestrator:
  max_retries: 5
`)

	cfg, err := Load(LoaderOptions{Type: SourceFile, Path: path})
	require.NoError(t, err)
	assert.Equal(t, "/srv/workspace", cfg.Workspace.Root)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "verbose", cfg.Logging.Format)
	assert.Equal(t, 5, cfg.Orchestrator.MaxRetries)
	// unset fields keep their baked-in default
	assert.True(t, cfg.Orchestrator.EnableRecovery)
	assert.Equal(t, ":8080", cfg.RPC.Addr)
}

func TestLoadEnvPrefixOverridesFileValue(t *testing.T) {
	path := writeYAML(t, `
logging:
  level: info
`)
	t.Setenv("SUBSTRATE_LOGGING_LEVEL", "warn")

	cfg, err := Load(LoaderOptions{Type: SourceFile, Path: path, EnvPrefix: "SUBSTRATE_"})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestNewLoaderRequiresPath(t *testing.T) {
	_, err := NewLoader(LoaderOptions{Type: SourceFile})
	require.Error(t, err)
}

func TestParseSourceType(t *testing.T) {
	st, err := ParseSourceType("")
	require.NoError(t, err)
	assert.Equal(t, SourceFile, st)

	st, err = ParseSourceType("Consul")
	require.NoError(t, err)
	assert.Equal(t, SourceConsul, st)

	st, err = ParseSourceType("etcd")
	require.NoError(t, err)
	assert.Equal(t, SourceEtcd, st)

	st, err = ParseSourceType("Zookeeper")
	require.NoError(t, err)
	assert.Equal(t, SourceZookeeper, st)

	_, err = ParseSourceType("bogus")
	require.Error(t, err)
}

func TestEtcdProviderReadIsUnsupported(t *testing.T) {
	p := &etcdProvider{endpoints: []string{"127.0.0.1:2379"}, key: "substrate/config"}
	_, err := p.Read()
	require.Error(t, err)
}

func TestEtcdProviderReadBytesFailsWithoutACluster(t *testing.T) {
	p := &etcdProvider{endpoints: []string{"127.0.0.1:0"}, key: "substrate/config"}
	_, err := p.ReadBytes()
	require.Error(t, err)
}

func TestZookeeperProviderReadIsUnsupported(t *testing.T) {
	p := &zookeeperProvider{path: "/substrate/config"}
	_, err := p.Read()
	require.Error(t, err)
}

func TestNewZookeeperProviderRequiresPath(t *testing.T) {
	_, err := newZookeeperProvider([]string{"127.0.0.1:2181"}, "")
	require.Error(t, err)
}

func TestDefaultConfigIsSelfConsistent(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, 2, cfg.Recovery.MaxReassignAttempts)
	assert.NotEmpty(t, cfg.Logging.Level)
}
