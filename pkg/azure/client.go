// Package azure is the control-plane client: it lists managed clusters and
// their agent pools, mints cluster credentials and reads usage details, all
// on behalf of one operator's service principal.
package azure

import (
	"context"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerservice/armcontainerservice/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"go.uber.org/zap"
	"k8s.io/utils/ptr"

	apperrors "github.com/kubestellar/aks-console/pkg/errors"
	"github.com/kubestellar/aks-console/pkg/models"
	"github.com/kubestellar/aks-console/pkg/session"
)

// Client talks to Azure Resource Manager as one service principal.
type Client struct {
	subscriptionID string
	cred           azcore.TokenCredential
	options        *arm.ClientOptions
	logger         *zap.Logger

	mu        sync.Mutex
	located   map[string]string // "rg/name" -> subscription id
	factories map[string]*armcontainerservice.ClientFactory
}

// NewClient builds a client-secret credential for p. No network call is made
// until the first operation.
func NewClient(p session.Principal, logger *zap.Logger, options *arm.ClientOptions) (*Client, error) {
	var credOpts *azidentity.ClientSecretCredentialOptions
	if options != nil {
		credOpts = &azidentity.ClientSecretCredentialOptions{ClientOptions: options.ClientOptions}
	}
	cred, err := azidentity.NewClientSecretCredential(p.TenantID, p.ClientID, p.ClientSecret, credOpts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeAuthentication, "invalid service principal", err)
	}
	return newClient(p.SubscriptionID, cred, logger, options), nil
}

func newClient(subscriptionID string, cred azcore.TokenCredential, logger *zap.Logger, options *arm.ClientOptions) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		subscriptionID: subscriptionID,
		cred:           cred,
		options:        options,
		logger:         logger,
		located:        make(map[string]string),
		factories:      make(map[string]*armcontainerservice.ClientFactory),
	}
}

// ForSession opens the session's sealed credentials and builds a client.
func ForSession(s *session.Session, logger *zap.Logger, options *arm.ClientOptions) (*Client, error) {
	p, err := s.Principal()
	if err != nil {
		return nil, err
	}
	return NewClient(p, logger.With(zap.String("clientId", s.ClientID())), options)
}

// SubscriptionID returns the subscription the client is scoped to, if any.
func (c *Client) SubscriptionID() string { return c.subscriptionID }

func (c *Client) factory(subscriptionID string) (*armcontainerservice.ClientFactory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.factories[subscriptionID]; ok {
		return f, nil
	}
	f, err := armcontainerservice.NewClientFactory(subscriptionID, c.cred, c.options)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "create container service client", err)
	}
	c.factories[subscriptionID] = f
	return f, nil
}

// Subscriptions returns the subscriptions visible to the principal.
func (c *Client) Subscriptions() (Sequence[string], error) {
	client, err := armsubscriptions.NewClient(c.cred, c.options)
	if err != nil {
		return Sequence[string]{}, apperrors.Wrap(apperrors.ErrCodeInternal, "create subscriptions client", err)
	}
	return FromPager(
		func() *runtime.Pager[armsubscriptions.ClientListResponse] { return client.NewListPager(nil) },
		func(page armsubscriptions.ClientListResponse) []string {
			ids := make([]string, 0, len(page.Value))
			for _, sub := range page.Value {
				if sub != nil && sub.SubscriptionID != nil {
					ids = append(ids, *sub.SubscriptionID)
				}
			}
			return ids
		},
	), nil
}

// ListSubscriptions drains Subscriptions.
func (c *Client) ListSubscriptions(ctx context.Context) ([]string, error) {
	seq, err := c.Subscriptions()
	if err != nil {
		return nil, err
	}
	ids, err := seq.Drain(ctx)
	if err != nil {
		return nil, classify("list subscriptions", ReaderRemedy(""), err)
	}
	return ids, nil
}

func (c *Client) targetSubscriptions(ctx context.Context) ([]string, error) {
	if c.subscriptionID != "" {
		return []string{c.subscriptionID}, nil
	}
	ids, err := c.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("enumerated subscriptions", zap.Int("count", len(ids)))
	return ids, nil
}

// Clusters returns the managed clusters of one subscription.
func (c *Client) Clusters(subscriptionID string) (Sequence[models.ClusterIdentity], error) {
	f, err := c.factory(subscriptionID)
	if err != nil {
		return Sequence[models.ClusterIdentity]{}, err
	}
	mc := f.NewManagedClustersClient()
	return FromPager(
		func() *runtime.Pager[armcontainerservice.ManagedClustersClientListResponse] { return mc.NewListPager(nil) },
		func(page armcontainerservice.ManagedClustersClientListResponse) []models.ClusterIdentity {
			out := make([]models.ClusterIdentity, 0, len(page.Value))
			for _, cluster := range page.Value {
				if cluster != nil {
					out = append(out, clusterIdentity(subscriptionID, cluster))
				}
			}
			return out
		},
	), nil
}

// ListClusters lists the managed clusters of the session's subscription, or
// of every visible subscription when the session has none.
func (c *Client) ListClusters(ctx context.Context) ([]models.ClusterIdentity, error) {
	subs, err := c.targetSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	clusters := []models.ClusterIdentity{}
	for _, sub := range subs {
		seq, err := c.Clusters(sub)
		if err != nil {
			return nil, err
		}
		page, err := seq.Drain(ctx)
		if err != nil {
			return nil, classify("list managed clusters", ReaderRemedy(sub), err)
		}
		c.remember(page)
		clusters = append(clusters, page...)
	}
	return clusters, nil
}

func locationKey(resourceGroup, name string) string {
	return strings.ToLower(resourceGroup) + "/" + strings.ToLower(name)
}

func (c *Client) remember(clusters []models.ClusterIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cl := range clusters {
		c.located[locationKey(cl.ResourceGroup, cl.Name)] = cl.SubscriptionID
	}
}

// subscriptionFor finds the subscription holding the cluster. With a scoped
// session that is always the session's subscription.
func (c *Client) subscriptionFor(ctx context.Context, resourceGroup, name string) (string, error) {
	if c.subscriptionID != "" {
		return c.subscriptionID, nil
	}
	key := locationKey(resourceGroup, name)
	c.mu.Lock()
	sub, ok := c.located[key]
	c.mu.Unlock()
	if ok {
		return sub, nil
	}
	if _, err := c.ListClusters(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	sub, ok = c.located[key]
	c.mu.Unlock()
	if !ok {
		return "", apperrors.NewWithContext(apperrors.ErrCodeNotFound, "cluster not found", map[string]any{
			"resourceGroup": resourceGroup,
			"cluster":       name,
		})
	}
	return sub, nil
}

// AgentPools returns the agent pools of one cluster.
func (c *Client) AgentPools(subscriptionID, resourceGroup, name string) (Sequence[models.AgentPool], error) {
	f, err := c.factory(subscriptionID)
	if err != nil {
		return Sequence[models.AgentPool]{}, err
	}
	ap := f.NewAgentPoolsClient()
	return FromPager(
		func() *runtime.Pager[armcontainerservice.AgentPoolsClientListResponse] {
			return ap.NewListPager(resourceGroup, name, nil)
		},
		func(page armcontainerservice.AgentPoolsClientListResponse) []models.AgentPool {
			out := make([]models.AgentPool, 0, len(page.Value))
			for _, pool := range page.Value {
				if pool != nil {
					out = append(out, agentPool(pool))
				}
			}
			return out
		},
	), nil
}

// ListAgentPools drains AgentPools for the cluster.
func (c *Client) ListAgentPools(ctx context.Context, resourceGroup, name string) ([]models.AgentPool, error) {
	sub, err := c.subscriptionFor(ctx, resourceGroup, name)
	if err != nil {
		return nil, err
	}
	seq, err := c.AgentPools(sub, resourceGroup, name)
	if err != nil {
		return nil, err
	}
	pools, err := seq.Drain(ctx)
	if err != nil {
		return nil, classify("list agent pools", ReaderRemedy(sub), err)
	}
	if pools == nil {
		pools = []models.AgentPool{}
	}
	return pools, nil
}

// MintClusterAccess returns the first kubeconfig of the cluster's user or
// admin credentials.
func (c *Client) MintClusterAccess(ctx context.Context, resourceGroup, name string, admin bool) ([]byte, error) {
	sub, err := c.subscriptionFor(ctx, resourceGroup, name)
	if err != nil {
		return nil, err
	}
	f, err := c.factory(sub)
	if err != nil {
		return nil, err
	}
	mc := f.NewManagedClustersClient()

	var results []*armcontainerservice.CredentialResult
	if admin {
		resp, err := mc.ListClusterAdminCredentials(ctx, resourceGroup, name, nil)
		if err != nil {
			return nil, classify("list cluster admin credentials", CredentialRemedy(sub, resourceGroup, name, true), err)
		}
		results = resp.Kubeconfigs
	} else {
		resp, err := mc.ListClusterUserCredentials(ctx, resourceGroup, name, nil)
		if err != nil {
			return nil, classify("list cluster user credentials", CredentialRemedy(sub, resourceGroup, name, false), err)
		}
		results = resp.Kubeconfigs
	}

	if len(results) == 0 || results[0] == nil || len(results[0].Value) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeUnresolvableAccess, "no kubeconfig returned")
	}
	return results[0].Value, nil
}

func clusterIdentity(subscriptionID string, mc *armcontainerservice.ManagedCluster) models.ClusterIdentity {
	id := models.ClusterIdentity{
		Name:           ptr.Deref(mc.Name, ""),
		Location:       ptr.Deref(mc.Location, ""),
		ResourceGroup:  resourceGroupOf(ptr.Deref(mc.ID, "")),
		SubscriptionID: subscriptionID,
	}
	if p := mc.Properties; p != nil {
		id.ProvisioningState = ptr.Deref(p.ProvisioningState, "")
		id.KubernetesVersion = ptr.Deref(p.KubernetesVersion, "")
		id.NodeResourceGroup = ptr.Deref(p.NodeResourceGroup, "")
		id.Fqdn = ptr.Deref(p.Fqdn, "")
	}
	return id
}

func agentPool(ap *armcontainerservice.AgentPool) models.AgentPool {
	pool := models.AgentPool{Name: ptr.Deref(ap.Name, "")}
	if p := ap.Properties; p != nil {
		pool.Count = ptr.Deref(p.Count, 0)
		if p.OSType != nil {
			pool.OSType = string(*p.OSType)
		}
		pool.ProvisioningState = ptr.Deref(p.ProvisioningState, "")
	}
	return pool
}

// resourceGroupOf extracts the resource group from an ARM resource id.
func resourceGroupOf(id string) string {
	if id == "" {
		return ""
	}
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		parts := strings.Split(id, "/")
		if len(parts) > 4 {
			return parts[4]
		}
		return ""
	}
	return rid.ResourceGroupName
}
