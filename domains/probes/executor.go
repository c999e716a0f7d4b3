// Package probes executes monitoring checks (uptime, API, security) against
// targets and produces results in the backend's wire format.
package probes

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/netview-hq/netview-go/platform/go/backend"
)

// Config captures executor-wide settings.
type Config struct {
	GatewayID      string
	UserAgent      string
	DefaultTimeout time.Duration // fallback when the probe carries none
	VerifySSL      bool
	// DNSServer is the resolver address ("host:port") for DNS probes;
	// defaults to the first server in /etc/resolv.conf, then 1.1.1.1:53.
	DNSServer string
}

// Executor runs probes. Safe for concurrent use.
type Executor struct {
	cfg    Config
	http   *http.Client
	dns    *dns.Client
	logger *zap.Logger

	total      atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
}

// New builds an Executor.
func New(cfg Config, logger *zap.Logger) *Executor {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "NetView-Gateway/1.0"
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.DNSServer == "" {
		cfg.DNSServer = systemResolver()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifySSL},
		Proxy:           http.ProxyFromEnvironment,
	}

	return &Executor{
		cfg:    cfg,
		http:   &http.Client{Transport: transport},
		dns:    &dns.Client{},
		logger: logger,
	}
}

func systemResolver() string {
	if conf, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(conf.Servers) > 0 {
		return net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	return "1.1.1.1:53"
}

// Stats returns the execution counters.
func (e *Executor) Stats() (total, successful, failed int64) {
	return e.total.Load(), e.successful.Load(), e.failed.Load()
}

// outcome is the per-check partial result merged into the final ProbeResult.
type outcome struct {
	status     string
	statusCode *int
	errMsg     *string
	body       *string
}

// Execute runs one probe and returns its result. Probe failures are reported
// in the result, never as a Go error.
func (e *Executor) Execute(ctx context.Context, probe backend.Probe) backend.ProbeResult {
	e.total.Add(1)
	start := time.Now()

	var out outcome
	if err := ValidateProbe(probe); err != nil {
		out = down(err.Error())
	} else {
		switch probe.Type {
		case "Uptime":
			out = e.executeUptime(ctx, probe)
		case "API":
			out = e.executeAPI(ctx, probe)
		case "Security":
			out = e.executeSecurity(ctx, probe)
		default:
			out = down(fmt.Sprintf("unsupported probe type: %s", probe.Type))
		}
	}

	elapsed := int(time.Since(start).Milliseconds())
	if out.status == backend.StatusUp {
		e.successful.Add(1)
	} else {
		e.failed.Add(1)
	}

	result := backend.ProbeResult{
		ProbeID:      probe.ID,
		GatewayID:    e.cfg.GatewayID,
		Status:       out.status,
		ResponseTime: elapsed,
		StatusCode:   out.statusCode,
		ErrorMessage: out.errMsg,
		ResponseBody: out.body,
		CheckedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	e.logger.Info("probe executed",
		zap.String("probe_id", probe.ID),
		zap.String("status", result.Status),
		zap.Int("response_time_ms", result.ResponseTime),
	)
	return result
}

func (e *Executor) timeout(probe backend.Probe) time.Duration {
	if probe.ExpectedResponseTime > 0 {
		return time.Duration(probe.ExpectedResponseTime) * time.Millisecond
	}
	return e.cfg.DefaultTimeout
}

func (e *Executor) executeUptime(ctx context.Context, probe backend.Probe) outcome {
	protocol := probe.Protocol
	if protocol == "" {
		protocol = "HTTPS"
	}
	expected := probe.ExpectedStatusCode
	if expected == 0 {
		expected = http.StatusOK
	}
	timeout := e.timeout(probe)

	switch protocol {
	case "HTTP", "HTTPS":
		return e.checkHTTP(ctx, probe.URL, expected, timeout, 500)
	case "TCP":
		return e.checkTCP(ctx, probe.URL, timeout)
	case "SMTP":
		return e.checkSMTP(ctx, probe.URL, timeout)
	case "DNS":
		return e.checkDNS(probe.URL, timeout)
	default:
		return down(fmt.Sprintf("unsupported protocol: %s", protocol))
	}
}

func (e *Executor) executeAPI(ctx context.Context, probe backend.Probe) outcome {
	method := strings.ToUpper(probe.Method)
	if method == "" {
		method = http.MethodGet
	}
	expected := probe.ExpectedStatusCode
	if expected == 0 {
		expected = http.StatusOK
	}
	timeout := e.timeout(probe)

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	contentType := ""
	if probe.Body != "" && (method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch) {
		reader = bytes.NewReader([]byte(probe.Body))
		if json.Valid([]byte(probe.Body)) {
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(reqCtx, method, probe.URL, reader)
	if err != nil {
		return down(err.Error())
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	for k, v := range probe.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return down(fmt.Sprintf("request timed out after %s", timeout))
		}
		return down(err.Error())
	}
	defer resp.Body.Close()

	body := readTruncated(resp.Body, 1000)
	if resp.StatusCode != expected {
		return outcome{
			status:     backend.StatusDown,
			statusCode: intPtr(resp.StatusCode),
			errMsg:     strPtr(fmt.Sprintf("expected status %d, got %d", expected, resp.StatusCode)),
			body:       strPtr(body),
		}
	}
	return outcome{status: backend.StatusUp, statusCode: intPtr(resp.StatusCode), body: strPtr(body)}
}

// securityHeaders are the response headers whose absence is reported as a finding.
var securityHeaders = []string{
	"Strict-Transport-Security",
	"X-Content-Type-Options",
	"X-Frame-Options",
	"X-XSS-Protection",
	"Content-Security-Policy",
}

func (e *Executor) executeSecurity(ctx context.Context, probe backend.Probe) outcome {
	var issues []string

	parsed, err := url.Parse(probe.URL)
	if err != nil {
		return down(fmt.Sprintf("security check failed: %v", err))
	}

	if parsed.Scheme == "https" {
		if issue := e.checkCertificate(parsed); issue != "" {
			issues = append(issues, issue)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, probe.URL, nil)
	if err != nil {
		return down(fmt.Sprintf("security check failed: %v", err))
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := e.http.Do(req)
	if err != nil {
		issues = append(issues, fmt.Sprintf("HTTP check failed: %v", err))
	} else {
		defer resp.Body.Close()

		var missing []string
		for _, h := range securityHeaders {
			if resp.Header.Get(h) == "" {
				missing = append(missing, h)
			}
		}
		if len(missing) > 0 {
			issues = append(issues, "missing security headers: "+strings.Join(missing, ", "))
		}

		server := resp.Header.Get("Server")
		lower := strings.ToLower(server)
		if strings.Contains(lower, "apache/") || strings.Contains(lower, "nginx/") || strings.Contains(lower, "iis/") {
			issues = append(issues, "server version disclosed: "+server)
		}
	}

	findings, _ := json.Marshal(map[string]any{"security_issues": issues})
	if len(issues) == 0 {
		return outcome{status: backend.StatusUp, statusCode: intPtr(http.StatusOK), body: strPtr(string(findings))}
	}
	return outcome{
		status:     backend.StatusWarning,
		statusCode: intPtr(http.StatusPartialContent),
		errMsg:     strPtr(strings.Join(issues, "; ")),
		body:       strPtr(string(findings)),
	}
}

func (e *Executor) checkCertificate(u *url.URL) string {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, port), &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: !e.cfg.VerifySSL,
	})
	if err != nil {
		return fmt.Sprintf("SSL certificate error: %v", err)
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return "SSL certificate error: no peer certificate"
	}

	days := int(time.Until(certs[0].NotAfter).Hours() / 24)
	if days < 30 {
		return fmt.Sprintf("SSL certificate expires in %d days", days)
	}
	return ""
}

func (e *Executor) checkHTTP(ctx context.Context, target string, expected int, timeout time.Duration, truncate int) outcome {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return down(err.Error())
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := e.http.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return down(fmt.Sprintf("request timed out after %s", timeout))
		}
		return down(err.Error())
	}
	defer resp.Body.Close()

	body := readTruncated(resp.Body, truncate)
	if resp.StatusCode != expected {
		return outcome{
			status:     backend.StatusDown,
			statusCode: intPtr(resp.StatusCode),
			errMsg:     strPtr(fmt.Sprintf("expected status %d, got %d", expected, resp.StatusCode)),
			body:       strPtr(body),
		}
	}
	return outcome{status: backend.StatusUp, statusCode: intPtr(resp.StatusCode), body: strPtr(body)}
}

func (e *Executor) checkTCP(ctx context.Context, target string, timeout time.Duration) outcome {
	host, port := hostPort(target, "80")

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return down(fmt.Sprintf("TCP connection failed to %s:%s", host, port))
	}
	_ = conn.Close()
	return outcome{status: backend.StatusUp, statusCode: intPtr(http.StatusOK)}
}

func (e *Executor) checkSMTP(ctx context.Context, target string, timeout time.Duration) outcome {
	host, port := hostPort(target, "25")

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return down(fmt.Sprintf("SMTP check failed: %v", err))
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return down(fmt.Sprintf("SMTP check failed: %v", err))
	}
	_ = client.Quit()
	return outcome{status: backend.StatusUp, statusCode: intPtr(220)}
}

func (e *Executor) checkDNS(target string, timeout time.Duration) outcome {
	host := target
	if parsed, err := url.Parse(target); err == nil && parsed.Hostname() != "" {
		host = parsed.Hostname()
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)

	client := *e.dns
	client.Timeout = timeout

	resp, _, err := client.Exchange(msg, e.cfg.DNSServer)
	if err != nil {
		return down(fmt.Sprintf("DNS check failed: %v", err))
	}
	if len(resp.Answer) == 0 {
		return down(fmt.Sprintf("DNS resolution failed for %s", host))
	}

	addrs := make([]string, 0, len(resp.Answer))
	for _, answer := range resp.Answer {
		if a, ok := answer.(*dns.A); ok {
			addrs = append(addrs, a.A.String())
		}
	}
	return outcome{
		status:     backend.StatusUp,
		statusCode: intPtr(http.StatusOK),
		body:       strPtr("Resolved to: " + strings.Join(addrs, ", ")),
	}
}

func hostPort(target, defaultPort string) (string, string) {
	if parsed, err := url.Parse(target); err == nil && parsed.Hostname() != "" {
		port := parsed.Port()
		if port == "" {
			port = defaultPort
		}
		return parsed.Hostname(), port
	}
	if host, port, err := net.SplitHostPort(target); err == nil {
		return host, port
	}
	return target, defaultPort
}

func readTruncated(r io.Reader, limit int) string {
	raw, _ := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}

func down(message string) outcome {
	return outcome{status: backend.StatusDown, errMsg: strPtr(message)}
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
