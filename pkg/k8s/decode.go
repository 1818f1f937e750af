package k8s

import (
	"encoding/json"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"
)

var deserializer = scheme.Codecs.UniversalDeserializer()

// decodeInto decodes an API server list payload into the typed object. Bodies
// without kind/apiVersion are decoded as plain JSON.
func decodeInto(body []byte, into runtime.Object) error {
	obj, gvk, err := deserializer.Decode(body, nil, into)
	if err != nil {
		if runtime.IsMissingKind(err) || runtime.IsMissingVersion(err) {
			return json.Unmarshal(body, into)
		}
		return err
	}
	if obj != into {
		return fmt.Errorf("unexpected kind %s", gvk.Kind)
	}
	return nil
}

// DecodeNodes decodes a /api/v1/nodes payload.
func DecodeNodes(body []byte) (*corev1.NodeList, error) {
	list := &corev1.NodeList{}
	if err := decodeInto(body, list); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}
	return list, nil
}

// DecodePods decodes a /api/v1/pods payload.
func DecodePods(body []byte) (*corev1.PodList, error) {
	list := &corev1.PodList{}
	if err := decodeInto(body, list); err != nil {
		return nil, fmt.Errorf("decode pods: %w", err)
	}
	return list, nil
}

// DecodeDeployments decodes a /apis/apps/v1/deployments payload.
func DecodeDeployments(body []byte) (*appsv1.DeploymentList, error) {
	list := &appsv1.DeploymentList{}
	if err := decodeInto(body, list); err != nil {
		return nil, fmt.Errorf("decode deployments: %w", err)
	}
	return list, nil
}
