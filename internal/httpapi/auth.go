package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"log/slog"

	"github.com/gorilla/mux"

	"github.com/al3dwii/agenticBE/internal/domain/tenants"
)

func registerAuthRoutes(router *mux.Router, logger *slog.Logger, deps Deps) {
	router.HandleFunc("/v1/auth/tenants", func(w http.ResponseWriter, r *http.Request) {
		if !deps.SignupEnabled {
			respondError(w, http.StatusForbidden, "tenant signup is disabled")
			return
		}
		var payload struct {
			Name string `json:"name"`
		}
		if err := decodeInto(r, &payload); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}

		tenant, apiKey, err := deps.Domain.Tenants.Register(r.Context(), tenants.RegisterInput{Name: payload.Name})
		if err != nil {
			if errors.Is(err, tenants.ErrNameRequired) {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			logger.Error("register tenant failed", "err", err)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		token, err := deps.Issuer.Issue(tenant.ID, "")
		if err != nil {
			logger.Error("issue token failed", "err", err)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		logger.Info("tenant registered", "tenant_id", tenant.ID)
		respondJSON(w, http.StatusCreated, map[string]any{
			"tenant":  tenant,
			"api_key": apiKey,
			"token":   token,
		})
	}).Methods(http.MethodPost)

	router.HandleFunc("/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			TenantID string `json:"tenant_id"`
			APIKey   string `json:"api_key"`
			UserID   string `json:"user_id"`
		}
		if err := decodeInto(r, &payload); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}

		tenant, err := deps.Domain.Tenants.Authenticate(r.Context(), payload.TenantID, payload.APIKey)
		if err != nil {
			if errors.Is(err, tenants.ErrNotFound) || errors.Is(err, tenants.ErrInvalidAPIKey) {
				respondError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			logger.Error("authenticate tenant failed", "err", err)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		token, err := deps.Issuer.Issue(tenant.ID, strings.TrimSpace(payload.UserID))
		if err != nil {
			logger.Error("issue token failed", "err", err)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		respondJSON(w, http.StatusOK, token)
	}).Methods(http.MethodPost)
}
