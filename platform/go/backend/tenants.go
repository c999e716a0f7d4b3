package backend

import (
	"context"
	"net/http"
	"net/url"
)

// CreateTenant creates the organization for the current user.
func (c *Client) CreateTenant(ctx context.Context, input CreateTenantInput) (*Tenant, error) {
	var tenant Tenant
	if err := c.do(ctx, authBearer, http.MethodPost, "/api/tenants", nil, input, &tenant); err != nil {
		return nil, err
	}
	return &tenant, nil
}

// PendingInvitationsByEmail lists collaborator invitations awaiting the given address.
func (c *Client) PendingInvitationsByEmail(ctx context.Context, email string) ([]PendingInvitation, error) {
	query := url.Values{"email": {email}}
	var invitations []PendingInvitation
	if err := c.do(ctx, authBearer, http.MethodGet, "/api/collaborators/pending-by-email", query, nil, &invitations); err != nil {
		return nil, err
	}
	return invitations, nil
}

// AcceptInvitation consumes an invitation token, converting it into tenant
// membership on the application user.
func (c *Client) AcceptInvitation(ctx context.Context, invitationToken, email string) error {
	payload := struct {
		InvitationToken string `json:"invitationToken"`
		Email           string `json:"email"`
	}{InvitationToken: invitationToken, Email: email}
	return c.do(ctx, authBearer, http.MethodPost, "/api/collaborators/accept", nil, payload, nil)
}
