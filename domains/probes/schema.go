package probes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/netview-hq/netview-go/platform/go/backend"
)

// probeSchema constrains probe definitions fetched from the backend before
// they reach the executor. The backend is trusted but versions drift; a
// malformed definition should fail one probe, not the scheduler loop.
const probeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "type", "url"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "type": {"type": "string", "enum": ["Uptime", "API", "Security", "Browser"]},
    "url": {"type": "string", "minLength": 1},
    "protocol": {"type": "string", "enum": ["HTTP", "HTTPS", "TCP", "SMTP", "DNS"]},
    "method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"]},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "body": {"type": "string"},
    "expectedStatusCode": {"type": "integer", "minimum": 100, "maximum": 599},
    "expectedResponseTime": {"type": "integer", "minimum": 0},
    "isActive": {"type": "boolean"},
    "gatewayId": {"type": ["string", "null"]}
  }
}`

var compiledProbeSchema = jsonschema.MustCompileString("probe.schema.json", probeSchema)

// ValidateProbe checks a probe definition against the embedded schema.
func ValidateProbe(p backend.Probe) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode probe: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode probe: %w", err)
	}
	if err := compiledProbeSchema.Validate(doc); err != nil {
		return fmt.Errorf("invalid probe definition: %s", condense(err))
	}
	return nil
}

func condense(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		msg = msg[:i]
	}
	return msg
}
