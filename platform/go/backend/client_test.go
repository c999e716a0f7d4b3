package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{
		BaseURL: srv.URL,
		Token:   func(ctx context.Context) (string, error) { return "test-token", nil },
		APIKey:  "gw-key",
	})
	require.NoError(t, err)
	return client
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestMeSendsBearerToken(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/me", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.Equal(t, "netview-go", r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode(User{ID: "user-1", Email: "jane@acme.io"})
	}))

	user, err := client.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID)
}

func TestMeEmptyPayloadIsNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Some deployments 200 with an empty object for unknown identities.
		_, _ = w.Write([]byte(`{}`))
	}))

	_, err := client.Me(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClassifyNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.Me(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClassifyUnauthorized(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Me(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestClassifyEmailNotVerified(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"EMAIL_NOT_VERIFIED","message":"confirm your email","details":{"email":"jane@acme.io","firstName":"Jane"}}}`))
	}))

	_, err := client.Register(context.Background(), RegisterInput{FirstName: "Jane"})
	var notVerified *EmailNotVerifiedError
	require.ErrorAs(t, err, &notVerified)
	require.Equal(t, "jane@acme.io", notVerified.Details.Email)
	require.Equal(t, "Jane", notVerified.Details.FirstName)
}

func TestClassifyForbiddenWithoutCodeIsAPIError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"FORBIDDEN","message":"nope"}}`))
	}))

	_, err := client.Me(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "FORBIDDEN", apiErr.Code)
	require.Equal(t, "nope", apiErr.Message)
}

func TestClassifyFlatMessageEnvelope(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"database unavailable"}`))
	}))

	_, err := client.Me(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "database unavailable", apiErr.Message)
}

func TestTokenSourceFailurePropagates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the server without a token")
	}))
	t.Cleanup(srv.Close)

	tokenErr := errors.New("refresh failed")
	client, err := New(Config{
		BaseURL: srv.URL,
		Token:   func(ctx context.Context) (string, error) { return "", tokenErr },
	})
	require.NoError(t, err)

	_, err = client.Me(context.Background())
	require.ErrorIs(t, err, tokenErr)
}

func TestBearerWithoutTokenSourceIsUnauthorized(t *testing.T) {
	t.Parallel()

	client, err := New(Config{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = client.Me(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestGatewayEndpointsUseAPIKey(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "gw-key", r.Header.Get("X-API-Key"))
		require.Empty(t, r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/api/gateway/probes":
			_, _ = w.Write([]byte(`[{"id":"p-1","type":"Uptime","url":"https://acme.io"}]`))
		case "/api/gateway/results":
			var payload struct {
				APIKey  string        `json:"apiKey"`
				Results []ProbeResult `json:"results"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			require.Equal(t, "gw-key", payload.APIKey)
			require.Len(t, payload.Results, 1)
			w.WriteHeader(http.StatusOK)
		case "/api/gateway/heartbeat":
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	probes, err := client.GatewayProbes(context.Background())
	require.NoError(t, err)
	require.Len(t, probes, 1)
	require.Equal(t, "p-1", probes[0].ID)

	require.NoError(t, client.PushResults(context.Background(), []ProbeResult{{ProbeID: "p-1", Status: StatusUp}}))
	require.NoError(t, client.PushHeartbeat(context.Background(), Heartbeat{}))
}

func TestGatewayEndpointsRequireAPIKey(t *testing.T) {
	t.Parallel()

	client, err := New(Config{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = client.GatewayProbes(context.Background())
	require.Error(t, err)
}

func TestPendingInvitationsQuery(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/collaborators/pending-by-email", r.URL.Path)
		require.Equal(t, "jane@acme.io", r.URL.Query().Get("email"))
		_, _ = w.Write([]byte(`[{"id":"inv-1","tenantName":"Acme Inc","invitationToken":"tok-1"}]`))
	}))

	invitations, err := client.PendingInvitationsByEmail(context.Background(), "jane@acme.io")
	require.NoError(t, err)
	require.Len(t, invitations, 1)
	require.Equal(t, "tok-1", invitations[0].InvitationToken)
}

func TestMalformedSuccessBodyIsAPIError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))

	_, err := client.Me(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Contains(t, apiErr.Message, "malformed response")
}
