package models

import "encoding/json"

// CredentialTier names the role scope a cluster credential was minted at
type CredentialTier string

const (
	CredentialTierUser          CredentialTier = "user"
	CredentialTierAdmin         CredentialTier = "admin"
	CredentialTierAdminFallback CredentialTier = "admin-fallback"
)

// ClusterIdentity describes a managed cluster as reported by the control plane
type ClusterIdentity struct {
	Name              string `json:"name"`
	ResourceGroup     string `json:"resourceGroup"`
	Location          string `json:"location"`
	ProvisioningState string `json:"provisioningState,omitempty"`
	KubernetesVersion string `json:"kubernetesVersion,omitempty"`
	NodeResourceGroup string `json:"nodeResourceGroup,omitempty"`
	Fqdn              string `json:"fqdn,omitempty"`
	SubscriptionID    string `json:"subscriptionId,omitempty"`
}

// AgentPool is the management-plane view of a node pool, used when the
// cluster API cannot list nodes
type AgentPool struct {
	Name              string `json:"name"`
	Count             int32  `json:"count"`
	OSType            string `json:"osType,omitempty"`
	ProvisioningState string `json:"provisioningState,omitempty"`
}

// DeploymentSummary is the rollout state of one deployment
type DeploymentSummary struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Desired   int32  `json:"desired"`
	Available int32  `json:"available"`
}

// PodStatus is the derived health of one pod
type PodStatus struct {
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	Phase       string `json:"phase"`
	Crashed     bool   `json:"crashed"`
	CrashReason string `json:"crashReason,omitempty"`
	Restarts    int32  `json:"restarts"`
}

// Summary is the derived overview of a cluster
type Summary struct {
	NodeCount   int            `json:"nodeCount"`
	ReadyNodes  int            `json:"readyNodes"`
	PodPhases   map[string]int `json:"podPhases"`
	Deployments int            `json:"deployments"`
	CrashedPods int            `json:"crashedPods"`
	AgentPools  []AgentPool    `json:"agentPools"`
}

// PartialError records one resource that could not be fetched
type PartialError struct {
	Resource string `json:"resource"`
	Detail   any    `json:"detail"`
}

// ClusterDetail is the aggregated view of one cluster. The raw lists are the
// API server payloads as received, null when that fetch failed.
type ClusterDetail struct {
	Server              string              `json:"server"`
	Summary             Summary             `json:"summary"`
	Nodes               json.RawMessage     `json:"nodes"`
	Pods                json.RawMessage     `json:"pods"`
	Deployments         json.RawMessage     `json:"deployments"`
	DeploymentSummaries []DeploymentSummary `json:"deploymentSummaries"`
	PodStatuses         []PodStatus         `json:"podStatuses"`
	Errors              []PartialError      `json:"errors"`
	UsedCredentialType  CredentialTier      `json:"usedCredentialType"`
}

// PodLogs is a snapshot of a container's recent log lines
type PodLogs struct {
	Namespace string   `json:"namespace"`
	Pod       string   `json:"pod"`
	Container *string  `json:"container"`
	Lines     []string `json:"lines"`
}
