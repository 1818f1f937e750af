// Package aggregator builds the per-cluster views: it resolves cluster
// access with tier escalation, fans out to the cluster API, tolerates
// partial failure and derives the summary.
package aggregator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/ptr"

	apperrors "github.com/kubestellar/aks-console/pkg/errors"
	"github.com/kubestellar/aks-console/pkg/k8s"
	"github.com/kubestellar/aks-console/pkg/kubeconfig"
	"github.com/kubestellar/aks-console/pkg/models"
	"github.com/kubestellar/aks-console/pkg/session"
)

const (
	nodesPath       = "/api/v1/nodes"
	podsPath        = "/api/v1/pods"
	deploymentsPath = "/apis/apps/v1/deployments"
	eventsPath      = "/api/v1/events"

	// DefaultTailLines is the number of log lines returned when none is requested.
	DefaultTailLines = 200
)

// ControlPlane is the management-plane surface the engine needs.
type ControlPlane interface {
	ListClusters(ctx context.Context) ([]models.ClusterIdentity, error)
	ListAgentPools(ctx context.Context, resourceGroup, name string) ([]models.AgentPool, error)
	MintClusterAccess(ctx context.Context, resourceGroup, name string, admin bool) ([]byte, error)
}

// ControlPlaneFactory builds a control-plane client for a session.
type ControlPlaneFactory func(s *session.Session) (ControlPlane, error)

// Fetcher reads from a cluster API server.
type Fetcher interface {
	Fetch(ctx context.Context, access kubeconfig.Access, path string) k8s.Result
	PodLogs(ctx context.Context, access kubeconfig.Access, namespace, pod string, opts *corev1.PodLogOptions) k8s.Result
}

// Access is resolved cluster access together with the tier it was minted at.
type Access struct {
	kubeconfig.Access
	Tier models.CredentialTier
}

// Engine aggregates cluster data on behalf of sessions.
type Engine struct {
	controlPlane ControlPlaneFactory
	fetcher      Fetcher
	logger       *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(controlPlane ControlPlaneFactory, fetcher Fetcher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		controlPlane: controlPlane,
		fetcher:      fetcher,
		logger:       logger,
	}
}

// ListClusters lists the clusters visible to the session.
func (e *Engine) ListClusters(ctx context.Context, s *session.Session) ([]models.ClusterIdentity, error) {
	cp, err := e.controlPlane(s)
	if err != nil {
		return nil, err
	}
	return cp.ListClusters(ctx)
}

func (e *Engine) mint(ctx context.Context, cp ControlPlane, resourceGroup, name string, admin bool) (kubeconfig.Access, error) {
	blob, err := cp.MintClusterAccess(ctx, resourceGroup, name, admin)
	if err != nil {
		return kubeconfig.Access{}, err
	}
	return kubeconfig.Resolve(blob)
}

// resolveAccess mints and resolves cluster access. A failed user tier is
// retried once at admin; an explicit admin request never falls back.
func (e *Engine) resolveAccess(ctx context.Context, cp ControlPlane, resourceGroup, name string, useAdmin bool) (Access, error) {
	if useAdmin {
		access, err := e.mint(ctx, cp, resourceGroup, name, true)
		if err != nil {
			return Access{}, err
		}
		credentialTierTotal.WithLabelValues(string(models.CredentialTierAdmin)).Inc()
		return Access{Access: access, Tier: models.CredentialTierAdmin}, nil
	}

	access, err := e.mint(ctx, cp, resourceGroup, name, false)
	if err == nil {
		credentialTierTotal.WithLabelValues(string(models.CredentialTierUser)).Inc()
		return Access{Access: access, Tier: models.CredentialTierUser}, nil
	}

	e.logger.Info("user credentials failed, retrying with admin",
		zap.String("resourceGroup", resourceGroup),
		zap.String("cluster", name),
		zap.Error(err))

	access, adminErr := e.mint(ctx, cp, resourceGroup, name, true)
	if adminErr != nil {
		return Access{}, adminErr
	}
	credentialTierTotal.WithLabelValues(string(models.CredentialTierAdminFallback)).Inc()
	return Access{Access: access, Tier: models.CredentialTierAdminFallback}, nil
}

// slot is one fan-out branch: a raw payload or an error marker, never both.
type slot struct {
	resource string
	path     string
	raw      json.RawMessage
	err      *k8s.FetchError
}

func (e *Engine) fill(ctx context.Context, access kubeconfig.Access, s *slot, decode func([]byte) error) {
	start := time.Now()
	res := e.fetcher.Fetch(ctx, access, s.path)
	status := "ok"
	defer func() {
		clusterFetchDuration.WithLabelValues(s.resource, status).Observe(time.Since(start).Seconds())
	}()

	if !res.OK() {
		status = "error"
		s.err = res.Err
		return
	}
	if err := decode(res.Body); err != nil {
		status = "error"
		s.err = &k8s.FetchError{
			Path:    s.path,
			Status:  res.Status,
			Message: err.Error(),
			Kind:    "decode",
		}
		return
	}
	s.raw = json.RawMessage(res.Body)
}

// ClusterDetail builds the aggregated view of one cluster. Failures of
// individual resources are reported in Errors; only access resolution is
// fatal.
func (e *Engine) ClusterDetail(ctx context.Context, s *session.Session, resourceGroup, name string, useAdmin bool) (*models.ClusterDetail, error) {
	start := time.Now()
	defer func() {
		clusterDetailDuration.Observe(time.Since(start).Seconds())
	}()

	cp, err := e.controlPlane(s)
	if err != nil {
		return nil, err
	}
	access, err := e.resolveAccess(ctx, cp, resourceGroup, name, useAdmin)
	if err != nil {
		return nil, err
	}

	var snap k8s.Snapshot
	nodes := &slot{resource: "nodes", path: nodesPath}
	pods := &slot{resource: "pods", path: podsPath}
	deployments := &slot{resource: "deployments", path: deploymentsPath}

	// Branches never return an error, so the group waits for all three.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.fill(gctx, access.Access, nodes, func(b []byte) (err error) {
			snap.Nodes, err = k8s.DecodeNodes(b)
			return err
		})
		return nil
	})
	g.Go(func() error {
		e.fill(gctx, access.Access, pods, func(b []byte) (err error) {
			snap.Pods, err = k8s.DecodePods(b)
			return err
		})
		return nil
	})
	g.Go(func() error {
		e.fill(gctx, access.Access, deployments, func(b []byte) (err error) {
			snap.Deployments, err = k8s.DecodeDeployments(b)
			return err
		})
		return nil
	})
	_ = g.Wait()

	detail := &models.ClusterDetail{
		Server:              access.Server,
		DeploymentSummaries: []models.DeploymentSummary{},
		PodStatuses:         []models.PodStatus{},
		Errors:              []models.PartialError{},
		UsedCredentialType:  access.Tier,
	}

	for _, sl := range []*slot{nodes, pods, deployments} {
		if sl.err != nil {
			detail.Errors = append(detail.Errors, models.PartialError{Resource: sl.resource, Detail: sl.err})
			partialErrorsTotal.WithLabelValues(sl.resource).Inc()
			e.logger.Warn("cluster fetch failed",
				zap.String("cluster", name),
				zap.String("resource", sl.resource),
				zap.Error(sl.err))
		}
	}
	detail.Nodes, detail.Pods, detail.Deployments = nodes.raw, pods.raw, deployments.raw

	if nodes.err != nil {
		agentPoolFallbackTotal.Inc()
		pools, err := cp.ListAgentPools(ctx, resourceGroup, name)
		if err != nil {
			detail.Errors = append(detail.Errors, models.PartialError{
				Resource: "agentPools",
				Detail:   map[string]string{"message": err.Error()},
			})
			partialErrorsTotal.WithLabelValues("agentPools").Inc()
		} else {
			snap.AgentPools = pools
		}
	}

	detail.Summary = k8s.Summarize(snap)
	if snap.Pods != nil {
		detail.PodStatuses = k8s.PodStatuses(snap.Pods.Items)
	}
	if snap.Deployments != nil {
		detail.DeploymentSummaries = k8s.DeploymentSummaries(snap.Deployments.Items)
	}
	return detail, nil
}

// LogRequest selects a container log snapshot.
type LogRequest struct {
	ResourceGroup string
	Cluster       string
	Namespace     string
	Pod           string
	Container     string
	TailLines     int
	UseAdmin      bool
}

// PodLogs fetches the last TailLines lines of a container's log.
func (e *Engine) PodLogs(ctx context.Context, s *session.Session, req LogRequest) (*models.PodLogs, error) {
	cp, err := e.controlPlane(s)
	if err != nil {
		return nil, err
	}
	access, err := e.resolveAccess(ctx, cp, req.ResourceGroup, req.Cluster, req.UseAdmin)
	if err != nil {
		return nil, err
	}

	tail := req.TailLines
	if tail <= 0 {
		tail = DefaultTailLines
	}
	opts := &corev1.PodLogOptions{
		Container:  req.Container,
		TailLines:  ptr.To(int64(tail)),
		Timestamps: true,
	}
	res := e.fetcher.PodLogs(ctx, access.Access, req.Namespace, req.Pod, opts)
	if !res.OK() {
		return nil, apperrors.Wrap(apperrors.ErrCodeFetch, "log fetch failed", res.Err)
	}

	logs := &models.PodLogs{
		Namespace: req.Namespace,
		Pod:       req.Pod,
		Lines:     lastLines(string(res.Body), tail),
	}
	if req.Container != "" {
		c := req.Container
		logs.Container = &c
	}
	return logs, nil
}

// lastLines splits text into lines and keeps at most n, the last ones.
func lastLines(text string, n int) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{}
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// Events returns the cluster event list as received. A body that is not JSON
// is wrapped as {"raw": text}.
func (e *Engine) Events(ctx context.Context, s *session.Session, resourceGroup, name string, useAdmin bool) (json.RawMessage, error) {
	cp, err := e.controlPlane(s)
	if err != nil {
		return nil, err
	}
	access, err := e.resolveAccess(ctx, cp, resourceGroup, name, useAdmin)
	if err != nil {
		return nil, err
	}

	res := e.fetcher.Fetch(ctx, access.Access, eventsPath)
	if !res.OK() {
		return nil, apperrors.Wrap(apperrors.ErrCodeFetch, "event fetch failed", res.Err)
	}
	return asJSON(res.Body)
}

func asJSON(body []byte) (json.RawMessage, error) {
	if json.Valid(body) {
		return json.RawMessage(body), nil
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(body)})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "encode raw events", err)
	}
	return wrapped, nil
}
