package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubestellar/aks-console/pkg/aggregator"
	"github.com/kubestellar/aks-console/pkg/api/middleware"
	"github.com/kubestellar/aks-console/pkg/config"
	apperrors "github.com/kubestellar/aks-console/pkg/errors"
	"github.com/kubestellar/aks-console/pkg/k8s"
	"github.com/kubestellar/aks-console/pkg/models"
	"github.com/kubestellar/aks-console/pkg/session"
)

const testSecret = "handler-secret"

type fakeService struct {
	clusters    []models.ClusterIdentity
	listErr     error
	listedAs    []string
	detail      *models.ClusterDetail
	detailAdmin bool
	logs        *models.PodLogs
	logsErr     error
	logReq      aggregator.LogRequest
	events      json.RawMessage
	eventsErr   error
}

func (f *fakeService) ListClusters(_ context.Context, s *session.Session) ([]models.ClusterIdentity, error) {
	f.listedAs = append(f.listedAs, s.ClientID())
	return f.clusters, f.listErr
}

func (f *fakeService) ClusterDetail(_ context.Context, _ *session.Session, _, _ string, useAdmin bool) (*models.ClusterDetail, error) {
	f.detailAdmin = useAdmin
	return f.detail, nil
}

func (f *fakeService) PodLogs(_ context.Context, _ *session.Session, req aggregator.LogRequest) (*models.PodLogs, error) {
	f.logReq = req
	return f.logs, f.logsErr
}

func (f *fakeService) Events(context.Context, *session.Session, string, string, bool) (json.RawMessage, error) {
	return f.events, f.eventsErr
}

type staticDefaults config.Defaults

func (d staticDefaults) Current() config.Defaults { return config.Defaults(d) }

type fakeReporter struct{ days int }

func (f *fakeReporter) Report(_ context.Context, _ *session.Session, days int) (*models.CostReport, error) {
	f.days = days
	return &models.CostReport{Range: "a/b", Days: days, Total: 1.5, Items: []models.CostItem{{Name: "vm", MeterCategory: "VM", Cost: 1.5}}}, nil
}

type harness struct {
	app     *fiber.App
	store   *session.Store
	service *fakeService
	costs   *fakeReporter
}

func newHarness(t *testing.T, defaults config.Defaults) *harness {
	t.Helper()
	store, err := session.NewStore()
	require.NoError(t, err)

	h := &harness{
		app:     fiber.New(),
		store:   store,
		service: &fakeService{clusters: []models.ClusterIdentity{{Name: "aks-dev", ResourceGroup: "rg"}}},
		costs:   &fakeReporter{},
	}

	auth := NewAuthHandler(AuthConfig{
		JWTSecret: testSecret,
		Store:     store,
		Defaults:  staticDefaults(defaults),
		Clusters:  h.service,
	})
	h.app.Post("/api/auth", auth.Authenticate)
	h.app.Post("/api/logout", auth.Logout)

	api := h.app.Group("/api", middleware.SessionAuth(testSecret, store))
	clusters := NewClusterHandler(h.service, nil)
	api.Get("/aks-health", clusters.ListClusters)
	api.Get("/cluster/:resourceGroup/:name", clusters.GetClusterDetail)
	api.Get("/cluster/:resourceGroup/:name/events", clusters.GetEvents)
	api.Get("/cluster/:resourceGroup/:name/pod/:namespace/:pod/logs", clusters.GetPodLogs)
	api.Get("/costs", NewCostHandler(h.costs).GetCosts)
	return h
}

func (h *harness) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Test(req, 5000)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	resp, body := h.do(t, "POST", "/api/auth", "", `{"clientId":"app","clientSecret":"s3cret","tenantId":"tenant"}`)
	require.Equal(t, 200, resp.StatusCode)
	return body["token"].(string)
}

func TestAuthenticate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		h := newHarness(t, config.Defaults{})
		resp, body := h.do(t, "POST", "/api/auth", "", `{"clientId":"app","clientSecret":"s3cret","tenantId":"tenant"}`)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.NotEmpty(t, body["token"])
		assert.Len(t, body["clusters"], 1)
		assert.Equal(t, 1, h.store.Len())
		assert.Equal(t, 1.0, testutil.ToFloat64(activeSessions))
	})

	t.Run("Missing Secret", func(t *testing.T) {
		h := newHarness(t, config.Defaults{})
		resp, body := h.do(t, "POST", "/api/auth", "", `{"clientId":"app","tenantId":"tenant"}`)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, []any{"clientSecret"}, body["missing"])
		assert.Empty(t, h.service.listedAs)
	})

	t.Run("Empty Body Lists All Missing", func(t *testing.T) {
		h := newHarness(t, config.Defaults{})
		resp, body := h.do(t, "POST", "/api/auth", "", "")
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, []any{"clientId", "clientSecret", "tenantId"}, body["missing"])
	})

	t.Run("Defaults Fill Gaps", func(t *testing.T) {
		h := newHarness(t, config.Defaults{ClientSecret: "from-env", TenantID: "env-tenant"})
		resp, _ := h.do(t, "POST", "/api/auth", "", `{"clientId":"app"}`)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("Listing Failure", func(t *testing.T) {
		h := newHarness(t, config.Defaults{})
		h.service.listErr = apperrors.New(apperrors.ErrCodeAuthentication, "invalid client secret")
		resp, body := h.do(t, "POST", "/api/auth", "", `{"clientId":"app","clientSecret":"bad","tenantId":"tenant"}`)
		assert.Equal(t, 401, resp.StatusCode)
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["error"], "invalid client secret")
		assert.Zero(t, h.store.Len())
	})

	t.Run("Reauth Keeps Session", func(t *testing.T) {
		h := newHarness(t, config.Defaults{})
		token := h.login(t)
		first, err := middleware.ValidateJWT(token, testSecret)
		require.NoError(t, err)

		resp, body := h.do(t, "POST", "/api/auth", token, `{"clientId":"other","clientSecret":"s","tenantId":"t"}`)
		require.Equal(t, 200, resp.StatusCode)
		second, err := middleware.ValidateJWT(body["token"].(string), testSecret)
		require.NoError(t, err)

		assert.Equal(t, first.SessionID, second.SessionID)
		assert.Equal(t, 1, h.store.Len())
		s, err := h.store.Get(first.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "other", s.ClientID())
	})
}

func TestLogout(t *testing.T) {
	h := newHarness(t, config.Defaults{})
	token := h.login(t)

	resp, body := h.do(t, "POST", "/api/logout", token, "")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Zero(t, h.store.Len())
	assert.Zero(t, testutil.ToFloat64(activeSessions))

	resp, _ = h.do(t, "GET", "/api/aks-health", token, "")
	assert.Equal(t, 401, resp.StatusCode)

	resp, _ = h.do(t, "POST", "/api/logout", "", "")
	assert.Equal(t, 200, resp.StatusCode)
}

func TestClusterRoutes(t *testing.T) {
	h := newHarness(t, config.Defaults{})

	t.Run("Unauthenticated", func(t *testing.T) {
		resp, body := h.do(t, "GET", "/api/cluster/rg/aks-dev", "", "")
		assert.Equal(t, 401, resp.StatusCode)
		assert.Equal(t, "Not authenticated", body["error"])
	})

	token := h.login(t)

	t.Run("List", func(t *testing.T) {
		resp, body := h.do(t, "GET", "/api/aks-health", token, "")
		assert.Equal(t, 200, resp.StatusCode)
		assert.Len(t, body["clusters"], 1)
	})

	t.Run("Detail Admin Flag", func(t *testing.T) {
		h.service.detail = &models.ClusterDetail{Server: "https://aks", UsedCredentialType: models.CredentialTierAdmin}
		for flag, want := range map[string]bool{"1": true, "true": true, "0": false, "yes": false, "": false} {
			resp, body := h.do(t, "GET", "/api/cluster/rg/aks-dev?admin="+flag, token, "")
			assert.Equal(t, 200, resp.StatusCode)
			assert.Equal(t, "https://aks", body["server"])
			assert.Equal(t, want, h.service.detailAdmin, "admin=%q", flag)
		}
	})

	t.Run("Logs", func(t *testing.T) {
		h.service.logs = &models.PodLogs{Namespace: "default", Pod: "web", Lines: []string{"a", "b"}}
		h.service.logsErr = nil
		resp, body := h.do(t, "GET", "/api/cluster/rg/aks-dev/pod/default/web/logs?container=app&tailLines=50", token, "")
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, []any{"a", "b"}, body["lines"])
		assert.Equal(t, aggregator.LogRequest{
			ResourceGroup: "rg", Cluster: "aks-dev", Namespace: "default", Pod: "web",
			Container: "app", TailLines: 50,
		}, h.service.logReq)
	})

	t.Run("Logs Default Tail", func(t *testing.T) {
		h.do(t, "GET", "/api/cluster/rg/aks-dev/pod/default/web/logs", token, "")
		assert.Equal(t, aggregator.DefaultTailLines, h.service.logReq.TailLines)
	})

	t.Run("Logs Upstream Failure", func(t *testing.T) {
		h.service.logsErr = apperrors.Wrap(apperrors.ErrCodeFetch, "log fetch failed", &k8s.FetchError{
			Path: "/api/v1/namespaces/default/pods/web/log", Status: 404, Body: []byte(`{"kind":"Status","reason":"NotFound"}`),
		})
		resp, body := h.do(t, "GET", "/api/cluster/rg/aks-dev/pod/default/web/logs", token, "")
		assert.Equal(t, 404, resp.StatusCode)
		assert.Equal(t, "Log fetch failed", body["error"])
		assert.Equal(t, float64(404), body["status"])
		assert.Equal(t, map[string]any{"kind": "Status", "reason": "NotFound"}, body["body"])
	})

	t.Run("Events Raw", func(t *testing.T) {
		h.service.events = json.RawMessage(`{"kind":"EventList","items":[]}`)
		resp, body := h.do(t, "GET", "/api/cluster/rg/aks-dev/events", token, "")
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "EventList", body["kind"])
	})

	t.Run("Events Upstream Failure", func(t *testing.T) {
		h.service.eventsErr = apperrors.Wrap(apperrors.ErrCodeFetch, "event fetch failed", &k8s.FetchError{Status: 403, Body: []byte("forbidden")})
		resp, body := h.do(t, "GET", "/api/cluster/rg/aks-dev/events", token, "")
		assert.Equal(t, 403, resp.StatusCode)
		assert.Equal(t, "Event fetch failed", body["error"])
		assert.Equal(t, "forbidden", body["body"])
	})

	t.Run("Costs", func(t *testing.T) {
		resp, body := h.do(t, "GET", "/api/costs?days=7", token, "")
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 7, h.costs.days)
		assert.Equal(t, 1.5, body["total"])

		h.do(t, "GET", "/api/costs", token, "")
		assert.Equal(t, 30, h.costs.days)

		h.do(t, "GET", "/api/costs?days=0", token, "")
		assert.Equal(t, 0, h.costs.days, "an explicit window is passed through for clamping")
	})
}
