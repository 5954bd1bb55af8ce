package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/mux"

	"github.com/al3dwii/agenticBE/internal/auth"
	"github.com/al3dwii/agenticBE/internal/domain/jobs"
	"github.com/al3dwii/agenticBE/internal/queue"
)

func registerJobRoutes(router *mux.Router, logger *slog.Logger, deps Deps) {
	router.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		handleJobCreate(w, r, logger, deps)
	}).Methods(http.MethodPost)

	router.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		principal, _ := auth.FromContext(r.Context())
		offset, limit, msg := pagination(r)
		if msg != "" {
			respondError(w, http.StatusBadRequest, msg)
			return
		}
		results, err := deps.Domain.Jobs.ListForTenant(r.Context(), principal.TenantID, offset, limit)
		if err != nil {
			logger.Error("list jobs failed", "err", err)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"data":  results,
			"count": len(results),
		})
	}).Methods(http.MethodGet)

	router.HandleFunc("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadJob(w, r, logger, deps)
		if !ok {
			return
		}
		respondJSON(w, http.StatusOK, job)
	}).Methods(http.MethodGet)

	router.HandleFunc("/jobs/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadJob(w, r, logger, deps)
		if !ok {
			return
		}
		history, err := deps.Domain.Events.History(r.Context(), job.TenantID, job.ID)
		if err != nil {
			logger.Error("load job history failed", "err", err, "job_id", job.ID)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"job_id": job.ID,
			"status": job.Status,
			"events": history,
		})
	}).Methods(http.MethodGet)

	router.HandleFunc("/jobs/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadJob(w, r, logger, deps)
		if !ok {
			return
		}
		streamJob(w, r, logger, deps, job.ID)
	}).Methods(http.MethodGet)
}

func handleJobCreate(w http.ResponseWriter, r *http.Request, logger *slog.Logger, deps Deps) {
	principal, _ := auth.FromContext(r.Context())
	if !checkRate(w, r, logger, deps, principal) {
		return
	}

	payload, ok, err := decodeObject(r)
	if err != nil || !ok {
		respondError(w, http.StatusBadRequest, "Payload must be a JSON object")
		return
	}
	pack, _ := payload["pack"].(string)
	agentName, _ := payload["agent"].(string)
	webhookURL, _ := payload["webhook_url"].(string)
	pack, agentName, webhookURL = strings.TrimSpace(pack), strings.TrimSpace(agentName), strings.TrimSpace(webhookURL)
	if pack == "" || agentName == "" {
		respondError(w, http.StatusBadRequest, "pack and agent are required")
		return
	}

	agent, err := deps.Registry.Lookup(pack, agentName)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	inputs := normalizeInputs(payload, "pack", "agent")
	if err := agent.Validate(inputs); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if webhookURL != "" && !strings.HasPrefix(webhookURL, "http://") && !strings.HasPrefix(webhookURL, "https://") {
		respondError(w, http.StatusBadRequest, "webhook_url must be an http(s) URL")
		return
	}

	job, err := deps.Domain.Jobs.Create(r.Context(), jobs.CreateInput{
		TenantID:   principal.TenantID,
		Pack:       pack,
		Agent:      agentName,
		Input:      inputs,
		WebhookURL: webhookURL,
	})
	if err != nil {
		logger.Error("create job failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	task, err := queue.NewTask(queue.TaskRunAgentJob, queue.AgentJobPayload{
		TenantID:   job.TenantID,
		Pack:       pack,
		Agent:      agentName,
		Payload:    inputs,
		JobID:      job.ID,
		WebhookURL: webhookURL,
	})
	if err == nil {
		err = deps.Publisher.Publish(r.Context(), task)
	}
	if err != nil {
		logger.Error("enqueue job failed", "err", err, "job_id", job.ID)
		if _, ferr := deps.Domain.Jobs.MarkFailed(r.Context(), job.TenantID, job.ID, fmt.Sprintf("enqueue failed: %v", err)); ferr != nil {
			logger.Error("mark job failed", "err", ferr, "job_id", job.ID)
		}
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	logger.Info("job queued", "job_id", job.ID, "tenant_id", job.TenantID, "kind", job.Kind)
	respondJSON(w, http.StatusAccepted, map[string]any{"job_id": job.ID, "status": job.Status})
}

func loadJob(w http.ResponseWriter, r *http.Request, logger *slog.Logger, deps Deps) (jobs.Job, bool) {
	principal, _ := auth.FromContext(r.Context())
	job, err := deps.Domain.Jobs.Get(r.Context(), principal.TenantID, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			respondError(w, http.StatusNotFound, "job not found")
			return jobs.Job{}, false
		}
		logger.Error("get job failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return jobs.Job{}, false
	}
	return job, true
}

func streamJob(w http.ResponseWriter, r *http.Request, logger *slog.Logger, deps Deps, jobID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	messages, err := deps.Streamer.Subscribe(ctx, jobID)
	if err != nil {
		logger.Error("subscribe job events failed", "err", err, "job_id", jobID)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(deps.Heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deps.Closing:
			return
		case msg, open := <-messages:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
