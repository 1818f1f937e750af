package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kubestellar/aks-console/pkg/aggregator"
	"github.com/kubestellar/aks-console/pkg/api/middleware"
	"github.com/kubestellar/aks-console/pkg/k8s"
	"github.com/kubestellar/aks-console/pkg/models"
	"github.com/kubestellar/aks-console/pkg/session"
)

// ClusterService is the aggregation surface used by the cluster routes.
type ClusterService interface {
	ClusterLister
	ClusterDetail(ctx context.Context, s *session.Session, resourceGroup, name string, useAdmin bool) (*models.ClusterDetail, error)
	PodLogs(ctx context.Context, s *session.Session, req aggregator.LogRequest) (*models.PodLogs, error)
	Events(ctx context.Context, s *session.Session, resourceGroup, name string, useAdmin bool) (json.RawMessage, error)
}

// ClusterHandler serves cluster listings and per-cluster views.
type ClusterHandler struct {
	service ClusterService
	logger  *zap.Logger
}

// NewClusterHandler creates a ClusterHandler.
func NewClusterHandler(service ClusterService, logger *zap.Logger) *ClusterHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClusterHandler{service: service, logger: logger}
}

func useAdmin(c *fiber.Ctx) bool {
	switch c.Query("admin") {
	case "1", "true":
		return true
	}
	return false
}

// ListClusters returns the clusters visible to the session
func (h *ClusterHandler) ListClusters(c *fiber.Ctx) error {
	clusters, err := h.service.ListClusters(c.UserContext(), middleware.GetSession(c))
	if err != nil {
		return err
	}
	if clusters == nil {
		clusters = []models.ClusterIdentity{}
	}
	return c.JSON(fiber.Map{"clusters": clusters})
}

// GetClusterDetail returns the aggregated view of one cluster
func (h *ClusterHandler) GetClusterDetail(c *fiber.Ctx) error {
	rg, name := c.Params("resourceGroup"), c.Params("name")
	detail, err := h.service.ClusterDetail(c.UserContext(), middleware.GetSession(c), rg, name, useAdmin(c))
	if err != nil {
		h.logger.Warn("cluster detail failed", zap.String("resourceGroup", rg), zap.String("cluster", name), zap.Error(err))
		return err
	}
	return c.JSON(detail)
}

// GetPodLogs returns a snapshot of a container's log
func (h *ClusterHandler) GetPodLogs(c *fiber.Ctx) error {
	req := aggregator.LogRequest{
		ResourceGroup: c.Params("resourceGroup"),
		Cluster:       c.Params("name"),
		Namespace:     c.Params("namespace"),
		Pod:           c.Params("pod"),
		Container:     c.Query("container"),
		TailLines:     c.QueryInt("tailLines", aggregator.DefaultTailLines),
		UseAdmin:      useAdmin(c),
	}
	logs, err := h.service.PodLogs(c.UserContext(), middleware.GetSession(c), req)
	if err != nil {
		return upstreamFailure(c, "Log fetch failed", err)
	}
	return c.JSON(logs)
}

// GetEvents returns the cluster event list as the API server sent it
func (h *ClusterHandler) GetEvents(c *fiber.Ctx) error {
	rg, name := c.Params("resourceGroup"), c.Params("name")
	events, err := h.service.Events(c.UserContext(), middleware.GetSession(c), rg, name, useAdmin(c))
	if err != nil {
		return upstreamFailure(c, "Event fetch failed", err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(events)
}

// upstreamFailure answers a non-2xx cluster API reply with its status and
// body. Anything else goes to the error handler.
func upstreamFailure(c *fiber.Ctx, label string, err error) error {
	var fe *k8s.FetchError
	if !errors.As(err, &fe) || fe.Status == 0 {
		return err
	}
	var body any = string(fe.Body)
	if json.Valid(fe.Body) {
		body = json.RawMessage(fe.Body)
	}
	return c.Status(fe.Status).JSON(fiber.Map{
		"error":  label,
		"status": fe.Status,
		"body":   body,
	})
}
