package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestBuildUnsignedToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	token, err := BuildUnsignedToken(Params{
		ProjectID:              "local-netview",
		UserID:                 "user-123",
		Email:                  "owner@acme.io",
		Name:                   "Dev Owner",
		EmailVerified:          true,
		TenantID:               "tenant-42",
		Role:                   "owner",
		FirebaseSignInProvider: "password",
		ExpiresIn:              time.Hour,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header, payload := splitToken(t, token)
	if got, want := header["alg"], "none"; got != want {
		t.Fatalf("header alg = %v, want %v", got, want)
	}

	if got, want := payload["iss"], "https://securetoken.google.com/local-netview"; got != want {
		t.Errorf("iss = %v, want %v", got, want)
	}
	if got, want := payload["aud"], "local-netview"; got != want {
		t.Errorf("aud = %v, want %v", got, want)
	}
	if got, want := payload["user_id"], "user-123"; got != want {
		t.Errorf("user_id = %v, want %v", got, want)
	}
	if got, want := payload["email"], "owner@acme.io"; got != want {
		t.Errorf("email = %v, want %v", got, want)
	}
	if got, want := payload["email_verified"], true; got != want {
		t.Errorf("email_verified = %v, want %v", got, want)
	}
	if got, want := payload["tenantId"], "tenant-42"; got != want {
		t.Errorf("tenantId = %v, want %v", got, want)
	}
	if got, want := payload["role"], "owner"; got != want {
		t.Errorf("role = %v, want %v", got, want)
	}

	firebaseClaim, ok := payload["firebase"].(map[string]interface{})
	if !ok {
		t.Fatalf("firebase claim missing or invalid type: %T", payload["firebase"])
	}
	if got, want := firebaseClaim["sign_in_provider"], "password"; got != want {
		t.Errorf("firebase.sign_in_provider = %v, want %v", got, want)
	}

	exp, ok := payload["exp"].(float64)
	if !ok || int64(exp) != now.Add(time.Hour).Unix() {
		t.Errorf("exp = %v, want %v", payload["exp"], now.Add(time.Hour).Unix())
	}
}

func TestBuildUnsignedTokenRequiredFields(t *testing.T) {
	base := Params{ProjectID: "p", UserID: "u", Email: "e@x.io"}

	for name, mutate := range map[string]func(*Params){
		"projectID": func(p *Params) { p.ProjectID = "" },
		"userID":    func(p *Params) { p.UserID = "" },
		"email":     func(p *Params) { p.Email = "" },
	} {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			if _, err := BuildUnsignedToken(p, time.Time{}); err == nil {
				t.Fatalf("expected error when %s is empty", name)
			}
		})
	}
}

func splitToken(t *testing.T, token string) (map[string]interface{}, map[string]interface{}) {
	t.Helper()
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		t.Fatalf("invalid token format: %q", token)
	}

	header := decodeSegment(t, parts[0])
	payload := decodeSegment(t, parts[1])
	return header, payload
}

func decodeSegment(t *testing.T, segment string) map[string]interface{} {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		t.Fatalf("decode segment: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal segment: %v", err)
	}
	return out
}
