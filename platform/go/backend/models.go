package backend

import "time"

// User is the application-user record owned by the NetView backend. The tenant
// fields are denormalized onto the user by the backend; TenantID is nil until
// the user has created or joined a tenant.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Role       string    `json:"role"`
	TenantID   *string   `json:"tenantId"`
	TenantName *string   `json:"tenantName,omitempty"`
	Company    *string   `json:"company,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Valid reports whether the payload is structurally usable. The backend has
// been observed returning 200 with an empty object; treat that as not found.
func (u *User) Valid() bool {
	return u != nil && (u.ID != "" || u.Email != "")
}

// Tenant is an organizational account boundary.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// PendingInvitation is a collaborator invitation awaiting acceptance,
// looked up by invited email address.
type PendingInvitation struct {
	ID              string `json:"id"`
	TenantName      string `json:"tenantName"`
	Role            string `json:"role"`
	InvitationToken string `json:"invitationToken"`
}

// RegisterInput is the payload for POST /api/auth/register.
type RegisterInput struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Company   *string `json:"company,omitempty"`
}

// CreateTenantInput is the payload for POST /api/tenants. TenantID lets the
// backend adopt a pre-provisioned identity-provider tenant when present.
type CreateTenantInput struct {
	Name     string  `json:"name"`
	TenantID *string `json:"tenantId,omitempty"`
}

// Probe is a monitoring check definition as served by the backend.
type Probe struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name,omitempty"`
	Type                 string            `json:"type"` // Uptime | API | Security
	URL                  string            `json:"url"`
	Protocol             string            `json:"protocol,omitempty"` // HTTP | HTTPS | TCP | SMTP | DNS
	Method               string            `json:"method,omitempty"`
	Headers              map[string]string `json:"headers,omitempty"`
	Body                 string            `json:"body,omitempty"`
	ExpectedStatusCode   int               `json:"expectedStatusCode,omitempty"`
	ExpectedResponseTime int               `json:"expectedResponseTime,omitempty"` // ms, doubles as timeout
	IsActive             bool              `json:"isActive"`
	GatewayID            *string           `json:"gatewayId,omitempty"`
}

// Probe statuses reported in results.
const (
	StatusUp      = "Up"
	StatusDown    = "Down"
	StatusWarning = "Warning"
	StatusUnknown = "Unknown"
)

// ProbeResult is a single check outcome pushed to the backend by a gateway.
type ProbeResult struct {
	ProbeID      string  `json:"probeId"`
	GatewayID    string  `json:"gatewayId"`
	Status       string  `json:"status"`
	ResponseTime int     `json:"responseTime"` // ms
	StatusCode   *int    `json:"statusCode"`
	ErrorMessage *string `json:"errorMessage"`
	ResponseBody *string `json:"responseBody"`
	CheckedAt    string  `json:"checkedAt"` // RFC3339 UTC
}

// Gateway is a probe execution location (Core = NetView-hosted, Custom = on-prem).
type Gateway struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Location string `json:"location,omitempty"`
	Status   string `json:"status,omitempty"`
	LastSeen string `json:"lastSeen,omitempty"`
}

// Alert is a triggered notification for a probe state change.
type Alert struct {
	ID        string    `json:"id"`
	ProbeID   string    `json:"probeId"`
	ProbeName string    `json:"probeName,omitempty"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Resolved  bool      `json:"resolved"`
}

// HeartbeatStats summarizes gateway health inside a heartbeat payload.
type HeartbeatStats struct {
	Uptime         float64  `json:"uptime"` // seconds
	LastSync       *float64 `json:"lastSync"`
	PendingResults int      `json:"pendingResults"`
}

// Heartbeat is the periodic liveness report pushed by a gateway.
type Heartbeat struct {
	GatewayID   string         `json:"gatewayId"`
	GatewayType string         `json:"gatewayType"`
	GatewayName string         `json:"gatewayName"`
	Location    string         `json:"location"`
	Timestamp   string         `json:"timestamp"`
	Stats       HeartbeatStats `json:"stats"`
}
