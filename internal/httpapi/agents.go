package httpapi

import (
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/gorilla/mux"

	"github.com/al3dwii/agenticBE/internal/auth"
	"github.com/al3dwii/agenticBE/internal/domain/jobs"
	"github.com/al3dwii/agenticBE/internal/packs"
	"github.com/al3dwii/agenticBE/internal/ratelimit"
)

func registerAgentRoutes(router *mux.Router, logger *slog.Logger, deps Deps) {
	router.HandleFunc("/agents/{pack}/{agent}", func(w http.ResponseWriter, r *http.Request) {
		principal, _ := auth.FromContext(r.Context())
		if !checkRate(w, r, logger, deps, principal) {
			return
		}

		vars := mux.Vars(r)
		agent, err := deps.Registry.Lookup(vars["pack"], vars["agent"])
		if err != nil {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}

		payload, ok, err := decodeObject(r)
		if err != nil || !ok {
			respondError(w, http.StatusBadRequest, "Payload must be a JSON object")
			return
		}
		inputs := normalizeInputs(payload)
		if err := agent.Validate(inputs); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		kind := jobs.Kind(vars["pack"], vars["agent"])
		start := time.Now()
		result, err := runSync(r, agent, packs.Context{
			TenantID: principal.TenantID,
			UserID:   principal.UserID,
			Logger:   logger.With("tenant_id", principal.TenantID, "agent", kind),
		}, inputs)
		if deps.Runs != nil {
			deps.Runs.ObserveAgentRun(kind, "sync", err, time.Since(start))
		}
		if err != nil {
			respondError(w, http.StatusBadRequest, "Agent error: "+err.Error())
			return
		}
		if result == nil {
			result = map[string]any{"result": nil}
		}
		respondJSON(w, http.StatusOK, result)
	}).Methods(http.MethodPost)
}

func runSync(r *http.Request, agent packs.Agent, rc packs.Context, inputs map[string]any) (out map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.New("agent panicked")
			rc.Logger.Error("agent panic", "panic", rec)
		}
	}()
	return agent.Run(r.Context(), rc, inputs)
}

// checkRate writes a 429 and returns false when the caller is over its limit.
func checkRate(w http.ResponseWriter, r *http.Request, logger *slog.Logger, deps Deps, p auth.Principal) bool {
	if deps.Limiter == nil {
		return true
	}
	err := deps.Limiter.Check(r.Context(), p.TenantID, p.UserID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ratelimit.ErrTenantLimited), errors.Is(err, ratelimit.ErrUserLimited):
		respondError(w, http.StatusTooManyRequests, err.Error())
	default:
		logger.Error("rate limit check failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
	return false
}
