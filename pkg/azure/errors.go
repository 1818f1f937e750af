package azure

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	apperrors "github.com/kubestellar/aks-console/pkg/errors"
)

var authorizationPattern = regexp.MustCompile(`AuthorizationFailed|does not have authorization|403`)

// Remedy is the role assignment that lifts an authorization denial.
type Remedy struct {
	Role  string
	Scope string
	Note  string
}

// Guidance renders the remedy for operators.
func (r Remedy) Guidance() string {
	g := fmt.Sprintf("Grant the service principal %s at scope %s.", r.Role, r.Scope)
	if r.Note != "" {
		g += " " + r.Note
	}
	return g
}

// CLI renders the az command that creates the assignment.
func (r Remedy) CLI() string {
	return fmt.Sprintf("az role assignment create --assignee <APP_ID> --role %q --scope %s", r.Role, r.Scope)
}

// Context is the error context the API error layer renders.
func (r Remedy) Context() map[string]any {
	return map[string]any{
		"role":     r.Role,
		"scope":    r.Scope,
		"guidance": r.Guidance(),
		"cli":      r.CLI(),
	}
}

func subscriptionScope(subscriptionID string) string {
	if subscriptionID == "" {
		subscriptionID = "<SUB_ID>"
	}
	return "/subscriptions/" + subscriptionID
}

func clusterScope(subscriptionID, resourceGroup, name string) string {
	return fmt.Sprintf("%s/resourceGroups/%s/providers/Microsoft.ContainerService/managedClusters/%s",
		subscriptionScope(subscriptionID), resourceGroup, name)
}

// CostRemedy covers usage-detail reads.
func CostRemedy(subscriptionID string) Remedy {
	return Remedy{
		Role:  "Cost Management Reader",
		Scope: subscriptionScope(subscriptionID),
		Note:  "Reader also works. The Microsoft.Consumption provider must be registered.",
	}
}

// ReaderRemedy covers subscription, cluster and agent pool listing.
func ReaderRemedy(subscriptionID string) Remedy {
	return Remedy{Role: "Reader", Scope: subscriptionScope(subscriptionID)}
}

// CredentialRemedy covers minting cluster credentials at the given tier.
func CredentialRemedy(subscriptionID, resourceGroup, name string, admin bool) Remedy {
	role := "Azure Kubernetes Service Cluster User Role"
	if admin {
		role = "Azure Kubernetes Service Cluster Admin Role"
	}
	return Remedy{Role: role, Scope: clusterScope(subscriptionID, resourceGroup, name)}
}

// classify maps an SDK failure onto the error taxonomy. Authorization
// denials carry the remedy in their context.
func classify(op string, remedy Remedy, err error) error {
	if err == nil {
		return nil
	}

	var se *apperrors.StructuredError
	if errors.As(err, &se) {
		return err
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return apperrors.Wrap(apperrors.ErrCodeAuthentication, op, err)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusUnauthorized:
			return apperrors.Wrap(apperrors.ErrCodeAuthentication, op, err)
		case respErr.StatusCode == http.StatusForbidden, respErr.ErrorCode == "AuthorizationFailed":
			return apperrors.WrapWithContext(apperrors.ErrCodeAuthorization, op, err, remedy.Context())
		case respErr.StatusCode == http.StatusNotFound,
			respErr.ErrorCode == "ResourceNotFound",
			respErr.ErrorCode == "ResourceGroupNotFound":
			return apperrors.Wrap(apperrors.ErrCodeNotFound, op, err)
		}
	}

	if authorizationPattern.MatchString(err.Error()) {
		return apperrors.WrapWithContext(apperrors.ErrCodeAuthorization, op, err, remedy.Context())
	}
	return apperrors.Wrap(apperrors.ErrCodeInternal, op, err)
}
