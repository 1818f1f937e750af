package kubeconfig

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kubestellar/aks-console/pkg/errors"
)

const tokenKubeconfig = `apiVersion: v1
kind: Config
clusters:
- name: aks-dev
  cluster:
    certificate-authority-data: Zm9v
    server: https://aks-dev-dns.hcp.eastus.azmk8s.io:443
users:
- name: clusterUser_rg_aks-dev
  user:
    token: abc123
`

func TestResolve_RawYAML(t *testing.T) {
	access, err := Resolve([]byte(tokenKubeconfig))
	require.NoError(t, err)
	assert.Equal(t, "https://aks-dev-dns.hcp.eastus.azmk8s.io:443", access.Server)
	assert.Equal(t, "abc123", access.Token)
}

func TestResolve_Base64(t *testing.T) {
	blob := base64.StdEncoding.EncodeToString([]byte(tokenKubeconfig))

	access, err := Resolve([]byte(blob))
	require.NoError(t, err)
	assert.Equal(t, "abc123", access.Token)
}

func TestResolve_AccessToken(t *testing.T) {
	cfg := `clusters:
- cluster:
    server: https://s
users:
- user:
    access-token: xyz
`
	access, err := Resolve([]byte(cfg))
	require.NoError(t, err)
	assert.Equal(t, Access{Server: "https://s", Token: "xyz"}, access)
}

func TestResolve_AuthProviderToken(t *testing.T) {
	cfg := `clusters:
- cluster:
    server: https://s
users:
- user:
    auth-provider:
      name: azure
      config:
        access-token: from-provider
        apiserver-id: 6dae42f8
`
	access, err := Resolve([]byte(cfg))
	require.NoError(t, err)
	assert.Equal(t, "from-provider", access.Token)
}

func TestResolve_ExtractorOrder(t *testing.T) {
	cfg := `clusters:
- cluster:
    server: https://s
users:
- user:
    token: first
    access-token: second
`
	access, err := Resolve([]byte(cfg))
	require.NoError(t, err)
	assert.Equal(t, "first", access.Token)
}

func TestResolve_PatternFallback(t *testing.T) {
	// Tabs make this invalid YAML, so only the line scan can find the values.
	cfg := "clusters:\n\t- server: https://x\nusers:\n\t- token: t1\n"

	access, err := Resolve([]byte(cfg))
	require.NoError(t, err)
	assert.Equal(t, Access{Server: "https://x", Token: "t1"}, access)
}

func TestResolve_PatternFillsOnlyMissingHalf(t *testing.T) {
	// Structured decode finds the server but no token; the comments are
	// only visible to the line scan.
	cfg := `# server: https://scanned
# token: scanned
clusters:
- cluster:
    server: https://structured
users:
- user:
    client-certificate-data: Zm9v
`
	access, err := Resolve([]byte(cfg))
	require.NoError(t, err)
	assert.Equal(t, "https://structured", access.Server)
	assert.Equal(t, "scanned", access.Token)
}

func TestResolve_Unresolvable(t *testing.T) {
	tests := map[string]string{
		"empty":        "",
		"no token":     "clusters:\n- cluster:\n    server: https://s\n",
		"no server":    "users:\n- user:\n    token: abc\n",
		"not a config": "hello world",
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve([]byte(cfg))
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeUnresolvableAccess))
		})
	}
}
