// Package k8s reads workload objects straight from cluster API servers and
// derives health summaries from them.
package k8s

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/kubestellar/aks-console/pkg/kubeconfig"
)

// DefaultTimeout bounds every call to a cluster API server.
const DefaultTimeout = 10 * time.Second

// FetchError is the error marker of a failed cluster API call. It is either a
// transport failure (Status == 0) or a non-2xx answer.
type FetchError struct {
	Path    string
	Status  int
	Message string
	Body    []byte
	Kind    string // timeout, auth, network, certificate, decode, unknown
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("GET %s: status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("GET %s: %s", e.Path, e.Message)
}

// MarshalJSON renders the marker the way the API reports partial errors.
// A JSON body is embedded as-is, anything else as a string.
func (e *FetchError) MarshalJSON() ([]byte, error) {
	type wire struct {
		Error   bool   `json:"error"`
		Path    string `json:"path"`
		Status  int    `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
		Kind    string `json:"kind"`
		Body    any    `json:"body,omitempty"`
	}
	w := wire{Error: true, Path: e.Path, Status: e.Status, Message: e.Message, Kind: e.Kind}
	if len(e.Body) > 0 {
		if json.Valid(e.Body) {
			w.Body = json.RawMessage(e.Body)
		} else {
			w.Body = string(e.Body)
		}
	}
	return json.Marshal(w)
}

// Result is the tagged outcome of one fetch: Body on success, Err otherwise.
type Result struct {
	Path   string
	Status int
	Body   []byte
	Err    *FetchError
}

// OK reports whether the fetch produced a payload.
func (r Result) OK() bool { return r.Err == nil }

// Fetcher issues authenticated GETs against cluster API servers through the
// client-go REST client. Server certificates are not verified: managed
// clusters present certificates signed by a per-cluster CA we do not carry.
type Fetcher struct {
	timeout time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) clientset(access kubeconfig.Access) (*kubernetes.Clientset, error) {
	config := &rest.Config{
		Host:        access.Server,
		BearerToken: access.Token,
		TLSClientConfig: rest.TLSClientConfig{
			Insecure: true, // cluster CA is not available
		},
		Timeout: f.timeout,
	}
	return kubernetes.NewForConfig(config)
}

// Fetch performs one GET of access.Server+path. It never returns a Go error:
// every failure is folded into Result.Err.
func (f *Fetcher) Fetch(ctx context.Context, access kubeconfig.Access, path string) Result {
	cs, err := f.clientset(access)
	if err != nil {
		return Result{Path: path, Err: transportError(path, err)}
	}
	u, err := url.Parse(path)
	if err != nil {
		return Result{Path: path, Err: transportError(path, err)}
	}

	req := cs.CoreV1().RESTClient().Get().AbsPath(u.Path)
	for key, values := range u.Query() {
		for _, v := range values {
			req = req.Param(key, v)
		}
	}
	return do(ctx, path, req)
}

// PodLogs reads a container log snapshot the way Fetch reads objects.
func (f *Fetcher) PodLogs(ctx context.Context, access kubeconfig.Access, namespace, pod string, opts *corev1.PodLogOptions) Result {
	path := fmt.Sprintf("/api/v1/namespaces/%s/pods/%s/log", namespace, pod)
	cs, err := f.clientset(access)
	if err != nil {
		return Result{Path: path, Err: transportError(path, err)}
	}
	return do(ctx, path, cs.CoreV1().Pods(namespace).GetLogs(pod, opts))
}

// do runs req without retries. DoRaw keeps the body of a non-2xx answer
// whatever its content type; the status comes back on the StatusError.
func do(ctx context.Context, path string, req *rest.Request) Result {
	res := Result{Path: path}

	body, err := req.MaxRetries(0).DoRaw(ctx)
	if err == nil {
		res.Status = http.StatusOK
		res.Body = body
		return res
	}

	var status apierrors.APIStatus
	if !errors.As(err, &status) || status.Status().Code == 0 {
		res.Err = transportError(path, err)
		return res
	}

	code := int(status.Status().Code)
	msg := fmt.Sprintf("%d %s", code, http.StatusText(code))
	res.Status = code
	res.Err = &FetchError{
		Path:    path,
		Status:  code,
		Message: msg,
		Body:    body,
		Kind:    classifyError(msg),
	}
	return res
}

func transportError(path string, err error) *FetchError {
	return &FetchError{
		Path:    path,
		Message: err.Error(),
		Kind:    classifyError(err.Error()),
	}
}

// classifyError categorizes a failure message for the partial-error report.
func classifyError(errMsg string) string {
	lowerMsg := strings.ToLower(errMsg)

	// Timeout errors
	if strings.Contains(lowerMsg, "timeout") ||
		strings.Contains(lowerMsg, "deadline exceeded") ||
		strings.Contains(lowerMsg, "context deadline") {
		return "timeout"
	}

	// Auth errors
	if strings.Contains(lowerMsg, "401") ||
		strings.Contains(lowerMsg, "403") ||
		strings.Contains(lowerMsg, "unauthorized") ||
		strings.Contains(lowerMsg, "forbidden") ||
		strings.Contains(lowerMsg, "invalid token") {
		return "auth"
	}

	// Network errors
	if strings.Contains(lowerMsg, "connection refused") ||
		strings.Contains(lowerMsg, "no route to host") ||
		strings.Contains(lowerMsg, "network unreachable") ||
		strings.Contains(lowerMsg, "dial tcp") ||
		strings.Contains(lowerMsg, "no such host") {
		return "network"
	}

	// Certificate errors
	if strings.Contains(lowerMsg, "x509") ||
		strings.Contains(lowerMsg, "tls") ||
		strings.Contains(lowerMsg, "certificate") {
		return "certificate"
	}

	return "unknown"
}
