// Package errors provides the structured error taxonomy shared by the
// control-plane client, the aggregation engine and the HTTP layer.
//
// Example usage:
//
//	err := errors.WrapWithContext(
//	    errors.ErrCodeAuthorization,
//	    "list cluster user credentials",
//	    respErr,
//	    map[string]any{
//	        "resourceGroup": rg,
//	        "cluster":       name,
//	    },
//	)
package errors
