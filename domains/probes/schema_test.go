package probes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netview-hq/netview-go/platform/go/backend"
)

func TestValidateProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		probe   backend.Probe
		wantErr string
	}{
		{
			name:  "minimal uptime probe",
			probe: backend.Probe{ID: "p1", Type: "Uptime", URL: "https://example.com"},
		},
		{
			name: "full api probe",
			probe: backend.Probe{
				ID:                 "p2",
				Name:               "orders endpoint",
				Type:               "API",
				URL:                "https://api.example.com/orders",
				Method:             "POST",
				Headers:            map[string]string{"Authorization": "Bearer x"},
				Body:               `{"q":1}`,
				ExpectedStatusCode: 201,
				IsActive:           true,
			},
		},
		{
			name:    "missing url",
			probe:   backend.Probe{ID: "p3", Type: "Uptime"},
			wantErr: "invalid probe definition",
		},
		{
			name:    "unknown type",
			probe:   backend.Probe{ID: "p4", Type: "Teleport", URL: "https://example.com"},
			wantErr: "invalid probe definition",
		},
		{
			name:    "unknown protocol",
			probe:   backend.Probe{ID: "p5", Type: "Uptime", URL: "example.com", Protocol: "GOPHER"},
			wantErr: "invalid probe definition",
		},
		{
			name:    "status code out of range",
			probe:   backend.Probe{ID: "p6", Type: "Uptime", URL: "https://example.com", ExpectedStatusCode: 999},
			wantErr: "invalid probe definition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateProbe(tt.probe)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
