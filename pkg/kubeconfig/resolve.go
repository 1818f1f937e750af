// Package kubeconfig turns a cluster credential blob minted by the control
// plane into the API server URL and bearer token needed to call the cluster.
package kubeconfig

import (
	"bytes"
	"encoding/base64"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/kubestellar/aks-console/pkg/errors"
)

// Access is the minimal pair needed to talk to a cluster API server.
type Access struct {
	Server string
	Token  string
}

// Complete reports whether both halves are present.
func (a Access) Complete() bool {
	return a.Server != "" && a.Token != ""
}

// document is a lenient view of a kubeconfig: only the fields we read, no
// validation of anything else.
type document struct {
	Clusters []struct {
		Cluster struct {
			Server string `yaml:"server"`
		} `yaml:"cluster"`
	} `yaml:"clusters"`
	Users []struct {
		User userEntry `yaml:"user"`
	} `yaml:"users"`
}

type userEntry struct {
	Token        string `yaml:"token"`
	AccessToken  string `yaml:"access-token"`
	AuthProvider struct {
		Config map[string]string `yaml:"config"`
	} `yaml:"auth-provider"`
}

// tokenExtractor pulls a bearer token out of one user entry shape.
type tokenExtractor func(userEntry) string

// tokenExtractors are tried in order; the first non-empty result wins.
var tokenExtractors = []tokenExtractor{
	func(u userEntry) string { return u.Token },
	func(u userEntry) string { return u.AccessToken },
	func(u userEntry) string { return u.AuthProvider.Config["access-token"] },
}

func firstToken(u userEntry, extractors []tokenExtractor) string {
	for _, extract := range extractors {
		if tok := strings.TrimSpace(extract(u)); tok != "" {
			return tok
		}
	}
	return ""
}

var (
	serverPattern = regexp.MustCompile(`server: (.*)`)
	tokenPattern  = regexp.MustCompile(`token: (.*)`)
)

// Resolve extracts the server and token from blob, which may be raw YAML or
// base64-encoded YAML. A structured decode is attempted first; whatever it
// leaves empty is filled from a line scan of the text.
func Resolve(blob []byte) (Access, error) {
	text := decodeBlob(blob)

	var access Access
	var doc document
	if err := yaml.Unmarshal(text, &doc); err == nil {
		if len(doc.Clusters) > 0 {
			access.Server = strings.TrimSpace(doc.Clusters[0].Cluster.Server)
		}
		if len(doc.Users) > 0 {
			access.Token = firstToken(doc.Users[0].User, tokenExtractors)
		}
	}

	if !access.Complete() {
		if access.Server == "" {
			access.Server = scan(serverPattern, text)
		}
		if access.Token == "" {
			access.Token = scan(tokenPattern, text)
		}
	}

	if !access.Complete() {
		return Access{}, apperrors.New(apperrors.ErrCodeUnresolvableAccess, "could not parse kubeconfig")
	}
	return access, nil
}

func scan(re *regexp.Regexp, text []byte) string {
	m := re.FindSubmatch(text)
	if m == nil {
		return ""
	}
	return string(bytes.TrimSpace(m[1]))
}

// decodeBlob returns the base64-decoded blob when it is valid base64, and the
// raw bytes otherwise.
func decodeBlob(blob []byte) []byte {
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) == 0 {
		return blob
	}
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.StdEncoding.Decode(decoded, trimmed)
	if err != nil {
		return blob
	}
	return decoded[:n]
}
