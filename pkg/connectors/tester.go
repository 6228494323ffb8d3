package connectors

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dukex/conduit/pkg/models"
)

// TestResult reports whether a connector is usable.
type TestResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// Test verifies a connector by obtaining credentials and, when endpoint is given or the
// connector has no token flow, issuing a GET request.
func (c *Client) Test(ctx context.Context, connector *models.Connector, endpoint string) *TestResult {
	details := map[string]any{"authType": string(connector.AuthType)}

	if connector.AuthType == models.AuthTypeOAuth2 {
		current, issued, err := c.resolver.MaybeRefresh(ctx, connector)
		if err != nil {
			details["error"] = err.Error()

			return &TestResult{Success: false, Message: "Failed to obtain access token", Details: details}
		}

		details["tokenRefreshed"] = issued
		details["tokenExpiresAt"] = current.AuthConfig.TokenExpiresAt
		connector = current

		if endpoint == "" {
			return &TestResult{Success: true, Message: "Access token is valid", Details: details}
		}
	}

	resp, err := c.Do(ctx, connector, Request{Method: http.MethodGet, Endpoint: endpoint})
	if err != nil {
		details["error"] = err.Error()

		return &TestResult{Success: false, Message: "Connection failed", Details: details}
	}

	details["status"] = resp.Status

	if !resp.Success {
		return &TestResult{Success: false, Message: fmt.Sprintf("Server responded with status %d", resp.Status), Details: details}
	}

	return &TestResult{Success: true, Message: "Connection successful", Details: details}
}
