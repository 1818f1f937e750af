package k8s

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/ptr"

	"github.com/kubestellar/aks-console/pkg/kubeconfig"
)

func TestFetch_SendsBearerAndSkipsVerification(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"kind":"NodeList","apiVersion":"v1","items":[]}`))
	}))
	defer srv.Close()

	f := NewFetcher()
	res := f.Fetch(context.Background(), kubeconfig.Access{Server: srv.URL + "/", Token: "tok"}, "/api/v1/nodes")

	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/api/v1/nodes", gotPath)
	assert.Equal(t, http.StatusOK, res.Status)

	nodes, err := DecodeNodes(res.Body)
	require.NoError(t, err)
	assert.Empty(t, nodes.Items)
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"kind":"Status","reason":"Forbidden"}`))
	}))
	defer srv.Close()

	res := NewFetcher().Fetch(context.Background(), kubeconfig.Access{Server: srv.URL, Token: "tok"}, "/api/v1/pods")

	require.False(t, res.OK())
	assert.Nil(t, res.Body)
	assert.Equal(t, http.StatusForbidden, res.Err.Status)
	assert.Equal(t, "auth", res.Err.Kind)
	assert.Equal(t, "/api/v1/pods", res.Err.Path)

	data, err := json.Marshal(res.Err)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":true,"path":"/api/v1/pods","status":403,"message":"403 Forbidden","kind":"auth","body":{"kind":"Status","reason":"Forbidden"}}`, string(data))
}

func TestFetch_TextBodyOnError(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := NewFetcher().Fetch(context.Background(), kubeconfig.Access{Server: srv.URL, Token: "tok"}, "/x")
	require.False(t, res.OK())

	data, err := json.Marshal(res.Err)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"body":"boom\n"`)
	assert.Equal(t, http.StatusInternalServerError, res.Err.Status)
	assert.Equal(t, "500 Internal Server Error", res.Err.Message)
}

func TestFetch_QueryParameters(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"kind":"EventList","items":[]}`))
	}))
	defer srv.Close()

	res := NewFetcher().Fetch(context.Background(), kubeconfig.Access{Server: srv.URL, Token: "tok"}, "/api/v1/events?limit=50")
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Equal(t, "50", gotQuery.Get("limit"))
	assert.Equal(t, "/api/v1/events?limit=50", res.Path)
}

func TestFetch_LargeListIsNotTruncated(t *testing.T) {
	blob := strings.Repeat("a", 33<<20)
	payload := `{"kind":"PodList","apiVersion":"v1","items":[{"metadata":{"name":"big","annotations":{"blob":"` + blob + `"}}}]}`
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	res := NewFetcher(WithTimeout(time.Minute)).Fetch(context.Background(), kubeconfig.Access{Server: srv.URL, Token: "tok"}, "/api/v1/pods")
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Len(t, res.Body, len(payload))

	pods, err := DecodePods(res.Body)
	require.NoError(t, err)
	require.Len(t, pods.Items, 1)
	assert.Len(t, pods.Items[0].Annotations["blob"], len(blob))
}

func TestPodLogs(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("2024-01-01T00:00:01Z one\n2024-01-01T00:00:02Z two\n"))
	}))
	defer srv.Close()

	res := NewFetcher().PodLogs(context.Background(), kubeconfig.Access{Server: srv.URL, Token: "tok"}, "prod", "web-1",
		&corev1.PodLogOptions{Container: "app", TailLines: ptr.To(int64(2)), Timestamps: true})

	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Equal(t, "/api/v1/namespaces/prod/pods/web-1/log", gotPath)
	assert.Equal(t, "app", gotQuery.Get("container"))
	assert.Equal(t, "2", gotQuery.Get("tailLines"))
	assert.Equal(t, "true", gotQuery.Get("timestamps"))
	assert.Equal(t, "2024-01-01T00:00:01Z one\n2024-01-01T00:00:02Z two\n", string(res.Body))
}

func TestPodLogs_NotFound(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"kind":"Status","apiVersion":"v1","status":"Failure","reason":"NotFound","code":404}`))
	}))
	defer srv.Close()

	res := NewFetcher().PodLogs(context.Background(), kubeconfig.Access{Server: srv.URL, Token: "tok"}, "prod", "gone", &corev1.PodLogOptions{})
	require.False(t, res.OK())
	assert.Equal(t, http.StatusNotFound, res.Err.Status)
	assert.Equal(t, "/api/v1/namespaces/prod/pods/gone/log", res.Err.Path)
	assert.JSONEq(t, `{"kind":"Status","apiVersion":"v1","status":"Failure","reason":"NotFound","code":404}`, string(res.Err.Body))
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	res := NewFetcher(WithTimeout(50*time.Millisecond)).Fetch(context.Background(), kubeconfig.Access{Server: srv.URL, Token: "tok"}, "/slow")
	require.False(t, res.OK())
	assert.Equal(t, 0, res.Err.Status)
	assert.Equal(t, "timeout", res.Err.Kind)
}

func TestFetch_TransportFailure(t *testing.T) {
	res := NewFetcher().Fetch(context.Background(), kubeconfig.Access{Server: "https://127.0.0.1:1", Token: "tok"}, "/api/v1/nodes")
	require.False(t, res.OK())
	assert.Equal(t, 0, res.Err.Status)
	assert.NotEmpty(t, res.Err.Message)
}

func TestClassifyError(t *testing.T) {
	tests := map[string]string{
		"context deadline exceeded":                     "timeout",
		"401 Unauthorized":                              "auth",
		"dial tcp 10.0.0.1:443: connection refused":     "network",
		"x509: certificate signed by unknown authority": "certificate",
		"500 Internal Server Error":                     "unknown",
	}
	for msg, want := range tests {
		assert.Equal(t, want, classifyError(msg), msg)
	}
}

func TestDecodeWithoutTypeMeta(t *testing.T) {
	pods, err := DecodePods([]byte(`{"items":[{"metadata":{"name":"a"},"status":{"phase":"Running"}}]}`))
	require.NoError(t, err)
	require.Len(t, pods.Items, 1)
	assert.Equal(t, "a", pods.Items[0].Name)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := DecodeDeployments([]byte(`not json`))
	assert.Error(t, err)
}
