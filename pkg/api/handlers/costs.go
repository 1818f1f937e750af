package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/kubestellar/aks-console/pkg/api/middleware"
	"github.com/kubestellar/aks-console/pkg/cost"
	"github.com/kubestellar/aks-console/pkg/models"
	"github.com/kubestellar/aks-console/pkg/session"
)

// CostReporter builds cost reports.
type CostReporter interface {
	Report(ctx context.Context, s *session.Session, days int) (*models.CostReport, error)
}

// CostHandler serves subscription cost reports
type CostHandler struct {
	reports CostReporter
}

// NewCostHandler creates a CostHandler.
func NewCostHandler(reports CostReporter) *CostHandler {
	return &CostHandler{reports: reports}
}

// GetCosts returns grouped cost over the last ?days= days.
func (h *CostHandler) GetCosts(c *fiber.Ctx) error {
	report, err := h.reports.Report(c.UserContext(), middleware.GetSession(c), c.QueryInt("days", cost.DefaultDays))
	if err != nil {
		return err
	}
	return c.JSON(report)
}
