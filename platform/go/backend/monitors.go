package backend

import (
	"context"
	"net/http"
)

// ListProbes returns the tenant's probe definitions.
func (c *Client) ListProbes(ctx context.Context) ([]Probe, error) {
	var probes []Probe
	if err := c.do(ctx, authBearer, http.MethodGet, "/api/probes", nil, nil, &probes); err != nil {
		return nil, err
	}
	return probes, nil
}

// CreateProbe registers a new probe definition.
func (c *Client) CreateProbe(ctx context.Context, probe Probe) (*Probe, error) {
	var created Probe
	if err := c.do(ctx, authBearer, http.MethodPost, "/api/probes", nil, probe, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteProbe removes a probe definition.
func (c *Client) DeleteProbe(ctx context.Context, id string) error {
	return c.do(ctx, authBearer, http.MethodDelete, "/api/probes/"+id, nil, nil, nil)
}

// ListGateways returns the tenant's gateways.
func (c *Client) ListGateways(ctx context.Context) ([]Gateway, error) {
	var gateways []Gateway
	if err := c.do(ctx, authBearer, http.MethodGet, "/api/gateways", nil, nil, &gateways); err != nil {
		return nil, err
	}
	return gateways, nil
}

// ListAlerts returns recent alerts for the tenant.
func (c *Client) ListAlerts(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	if err := c.do(ctx, authBearer, http.MethodGet, "/api/alerts", nil, nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}
