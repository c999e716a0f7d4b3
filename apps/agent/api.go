package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/netview-hq/netview-go/domains/gatewaysync"
	"github.com/netview-hq/netview-go/domains/probes"
	"github.com/netview-hq/netview-go/platform/go/backend"
	platformlogging "github.com/netview-hq/netview-go/platform/go/logging"
)

// agentAPI exposes the gateway's local control surface.
type agentAPI struct {
	cfg      config
	executor *probes.Executor
	syncer   *gatewaysync.Syncer
	spool    gatewaysync.Spool
	logger   *zap.Logger
}

func (a *agentAPI) routes(r chi.Router) {
	r.Get("/health", a.handleHealth)
	r.Get("/probes", a.handleProbes)
	r.Post("/execute", a.handleExecute)
	r.Get("/results", a.handleResults)
	r.Post("/sync", a.handleSync)
	r.Get("/stats", a.handleStats)
}

func (a *agentAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"gatewayId":   a.cfg.GatewayID,
		"gatewayType": a.cfg.GatewayType,
		"version":     version,
	})
}

func (a *agentAPI) handleProbes(w http.ResponseWriter, r *http.Request) {
	assigned, err := a.syncer.FetchProbes(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}
	if assigned == nil {
		assigned = []backend.Probe{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"probes": assigned,
		"count":  len(assigned),
	})
}

func (a *agentAPI) handleExecute(w http.ResponseWriter, r *http.Request) {
	var probe backend.Probe
	if err := json.NewDecoder(r.Body).Decode(&probe); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	result := a.executor.Execute(r.Context(), probe)
	if err := a.spool.Store(r.Context(), result); err != nil {
		platformlogging.FromRequest(r, a.logger).Error("failed to spool result", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *agentAPI) handleResults(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, r, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = parsed
	}

	stored, err := a.spool.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	results := make([]storedResultPayload, 0, len(stored))
	for _, s := range stored {
		results = append(results, storedResultPayload{ProbeResult: s.ProbeResult, Synced: s.Synced})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (a *agentAPI) handleSync(w http.ResponseWriter, r *http.Request) {
	count, err := a.syncer.SyncResults(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Synced " + strconv.Itoa(count) + " results",
		"syncedCount": count,
	})
}

func (a *agentAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	total, successful, failed := a.executor.Stats()

	spoolStats, err := a.spool.Stats(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	var lastSync, lastHeartbeat *float64
	if t := a.syncer.LastSync(); !t.IsZero() {
		v := float64(t.Unix())
		lastSync = &v
	}
	if t := a.syncer.LastHeartbeat(); !t.IsZero() {
		v := float64(t.Unix())
		lastHeartbeat = &v
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"gatewayId":            a.cfg.GatewayID,
		"gatewayType":          a.cfg.GatewayType,
		"uptime":               a.syncer.Uptime().Seconds(),
		"totalExecutions":      total,
		"successfulExecutions": successful,
		"failedExecutions":     failed,
		"pendingResults":       spoolStats.Unsynced,
		"lastSync":             lastSync,
		"lastHeartbeat":        lastHeartbeat,
	})
}

type storedResultPayload struct {
	backend.ProbeResult
	Synced bool `json:"synced"`
}

var errInvalidLimit = &limitError{}

type limitError struct{}

func (*limitError) Error() string { return "limit must be a positive integer" }

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
