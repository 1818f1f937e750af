package k8s

import (
	"sort"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/ptr"

	"github.com/kubestellar/aks-console/pkg/models"
)

// crashRule marks a pod as crashed when the selected container state reason
// contains any of the substrings, compared case-insensitively.
type crashRule struct {
	state   string
	reason  func(corev1.ContainerStatus) string
	matches []string
}

var crashRules = []crashRule{
	{
		state: "waiting",
		reason: func(cs corev1.ContainerStatus) string {
			if cs.State.Waiting == nil {
				return ""
			}
			return cs.State.Waiting.Reason
		},
		matches: []string{"CrashLoopBackOff", "Error", "ContainerCannotRun", "OOMKilled"},
	},
	{
		state: "terminated",
		reason: func(cs corev1.ContainerStatus) string {
			if cs.State.Terminated == nil {
				return ""
			}
			return cs.State.Terminated.Reason
		},
		matches: []string{"Error", "OOMKilled", "ContainerCannotRun"},
	},
}

// CrashReason returns the first container state reason that matches a crash
// rule. Only regular containers are inspected.
func CrashReason(pod *corev1.Pod) (string, bool) {
	for _, cs := range pod.Status.ContainerStatuses {
		if reason, ok := matchCrash(cs); ok {
			return reason, true
		}
	}
	return "", false
}

func matchCrash(cs corev1.ContainerStatus) (string, bool) {
	for _, rule := range crashRules {
		reason := rule.reason(cs)
		if reason == "" {
			continue
		}
		lower := strings.ToLower(reason)
		for _, m := range rule.matches {
			if strings.Contains(lower, strings.ToLower(m)) {
				return reason, true
			}
		}
	}
	return "", false
}

// IsNodeReady reports whether the node's Ready condition is True.
func IsNodeReady(node *corev1.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

// CountReadyNodes counts nodes whose Ready condition is True.
func CountReadyNodes(nodes []corev1.Node) int {
	ready := 0
	for i := range nodes {
		if IsNodeReady(&nodes[i]) {
			ready++
		}
	}
	return ready
}

func podPhase(pod *corev1.Pod) string {
	if pod.Status.Phase == "" {
		return "Unknown"
	}
	return string(pod.Status.Phase)
}

// PodPhaseHistogram counts pods per phase. A pod without a phase counts as Unknown.
func PodPhaseHistogram(pods []corev1.Pod) map[string]int {
	phases := make(map[string]int)
	for i := range pods {
		phases[podPhase(&pods[i])]++
	}
	return phases
}

// PodStatuses derives per-pod health, sorted by name then namespace.
func PodStatuses(pods []corev1.Pod) []models.PodStatus {
	out := make([]models.PodStatus, 0, len(pods))
	for i := range pods {
		pod := &pods[i]
		var restarts int32
		for _, cs := range pod.Status.ContainerStatuses {
			restarts += cs.RestartCount
		}
		reason, crashed := CrashReason(pod)
		out = append(out, models.PodStatus{
			Name:        pod.Name,
			Namespace:   pod.Namespace,
			Phase:       podPhase(pod),
			Crashed:     crashed,
			CrashReason: reason,
			Restarts:    restarts,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Namespace < out[j].Namespace
	})
	return out
}

// DeploymentSummaries derives rollout state, sorted by name then namespace.
// Missing replica counts are treated as zero.
func DeploymentSummaries(deployments []appsv1.Deployment) []models.DeploymentSummary {
	out := make([]models.DeploymentSummary, 0, len(deployments))
	for i := range deployments {
		d := &deployments[i]
		out = append(out, models.DeploymentSummary{
			Name:      d.Name,
			Namespace: d.Namespace,
			Desired:   ptr.Deref(d.Spec.Replicas, 0),
			Available: d.Status.AvailableReplicas,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Namespace < out[j].Namespace
	})
	return out
}

// Snapshot holds whichever lists were fetched successfully. A nil list means
// the fetch failed and contributes nothing.
type Snapshot struct {
	Nodes       *corev1.NodeList
	Pods        *corev1.PodList
	Deployments *appsv1.DeploymentList
	AgentPools  []models.AgentPool
}

// Summarize derives the cluster summary from a snapshot. It is pure: the same
// snapshot always yields an equal summary.
func Summarize(s Snapshot) models.Summary {
	sum := models.Summary{
		PodPhases:  map[string]int{},
		AgentPools: make([]models.AgentPool, len(s.AgentPools)),
	}
	copy(sum.AgentPools, s.AgentPools)
	sort.SliceStable(sum.AgentPools, func(i, j int) bool {
		return sum.AgentPools[i].Name < sum.AgentPools[j].Name
	})
	if s.Nodes != nil {
		sum.NodeCount = len(s.Nodes.Items)
		sum.ReadyNodes = CountReadyNodes(s.Nodes.Items)
	}
	if s.Pods != nil {
		sum.PodPhases = PodPhaseHistogram(s.Pods.Items)
		for i := range s.Pods.Items {
			if _, crashed := CrashReason(&s.Pods.Items[i]); crashed {
				sum.CrashedPods++
			}
		}
	}
	if s.Deployments != nil {
		sum.Deployments = len(s.Deployments.Items)
	}
	return sum
}
