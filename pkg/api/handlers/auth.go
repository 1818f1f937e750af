package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kubestellar/aks-console/pkg/api/middleware"
	"github.com/kubestellar/aks-console/pkg/config"
	apperrors "github.com/kubestellar/aks-console/pkg/errors"
	"github.com/kubestellar/aks-console/pkg/models"
	"github.com/kubestellar/aks-console/pkg/session"
)

// ClusterLister lists the clusters a session can see.
type ClusterLister interface {
	ListClusters(ctx context.Context, s *session.Session) ([]models.ClusterIdentity, error)
}

// DefaultsSource supplies credential fields the request leaves out.
type DefaultsSource interface {
	Current() config.Defaults
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string
	Store     *session.Store
	Defaults  DefaultsSource
	Clusters  ClusterLister
	Hub       *Hub
	Logger    *zap.Logger
}

// AuthHandler handles authentication
type AuthHandler struct {
	jwtSecret string
	store     *session.Store
	defaults  DefaultsSource
	clusters  ClusterLister
	hub       *Hub
	logger    *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg AuthConfig) *AuthHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		jwtSecret: cfg.JWTSecret,
		store:     cfg.Store,
		defaults:  cfg.Defaults,
		clusters:  cfg.Clusters,
		hub:       cfg.Hub,
		logger:    logger,
	}
}

type authRequest struct {
	ClientID       string `json:"clientId"`
	ClientSecret   string `json:"clientSecret"`
	TenantID       string `json:"tenantId"`
	SubscriptionID string `json:"subscriptionId"`
}

// Authenticate verifies a service principal by listing its clusters and
// starts a session for it. A request carrying a valid session token
// re-authenticates that session in place.
func (h *AuthHandler) Authenticate(c *fiber.Ctx) error {
	var req authRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeConfiguration, "invalid request body", err)
		}
	}

	p := session.Principal{
		ClientID:       req.ClientID,
		ClientSecret:   req.ClientSecret,
		TenantID:       req.TenantID,
		SubscriptionID: req.SubscriptionID,
	}
	if h.defaults != nil {
		p = h.defaults.Current().Apply(p)
	}
	if missing := p.Missing(); len(missing) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Missing required fields",
			"missing": missing,
		})
	}

	candidate, err := h.store.Create(p)
	if err != nil {
		return err
	}
	clusters, err := h.clusters.ListClusters(c.UserContext(), candidate)
	if err != nil {
		h.store.Clear(candidate.ID)
		activeSessions.Set(float64(h.store.Len()))
		h.logger.Info("authentication failed",
			zap.String("clientId", p.ClientID),
			zap.String("code", string(apperrors.CodeOf(err))),
			zap.Error(err))
		if apperrors.Is(err, apperrors.ErrCodeAuthorization) {
			return err
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	s := candidate
	if prior := middleware.OptionalSession(c, h.jwtSecret, h.store); prior != nil && prior.ID != candidate.ID {
		replaced, err := h.store.Replace(prior.ID, p)
		h.store.Clear(candidate.ID)
		activeSessions.Set(float64(h.store.Len()))
		if err != nil {
			return err
		}
		s = replaced
		if h.hub != nil {
			h.hub.Notify(s.ID, Message{Type: EventSessionReplaced, Data: map[string]string{"clientId": p.ClientID}})
		}
		h.logger.Info("session re-authenticated", zap.Stringer("session", s.ID), zap.String("clientId", p.ClientID))
	} else {
		activeSessions.Set(float64(h.store.Len()))
		h.logger.Info("session created", zap.Stringer("session", s.ID), zap.String("clientId", p.ClientID))
	}

	token, err := middleware.IssueJWT(s, h.jwtSecret)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to issue token", err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"token":    token,
		"clusters": clusters,
	})
}

// Logout clears the session named by the bearer token, if any.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if s := middleware.OptionalSession(c, h.jwtSecret, h.store); s != nil {
		h.store.Clear(s.ID)
		activeSessions.Set(float64(h.store.Len()))
		if h.hub != nil {
			h.hub.Notify(s.ID, Message{Type: EventLoggedOut})
		}
		h.logger.Info("session cleared", zap.Stringer("session", s.ID))
	}
	return c.JSON(fiber.Map{"success": true})
}
