package backend

import (
	"context"
	"net/http"
)

// Gateway endpoints authenticate with the gateway API key rather than a user
// session; they are consumed by the agent's sync loops.

// GatewayProbes fetches the probes assigned to this gateway.
func (c *Client) GatewayProbes(ctx context.Context) ([]Probe, error) {
	var probes []Probe
	if err := c.do(ctx, authAPIKey, http.MethodGet, "/api/gateway/probes", nil, nil, &probes); err != nil {
		return nil, err
	}
	return probes, nil
}

// PushResults uploads a batch of probe results.
func (c *Client) PushResults(ctx context.Context, results []ProbeResult) error {
	payload := struct {
		APIKey  string        `json:"apiKey"`
		Results []ProbeResult `json:"results"`
	}{APIKey: c.apiKey, Results: results}
	return c.do(ctx, authAPIKey, http.MethodPost, "/api/gateway/results", nil, payload, nil)
}

// PushHeartbeat reports gateway liveness and queue depth.
func (c *Client) PushHeartbeat(ctx context.Context, hb Heartbeat) error {
	return c.do(ctx, authAPIKey, http.MethodPost, "/api/gateway/heartbeat", nil, hb, nil)
}
