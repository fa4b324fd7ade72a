package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/vlied266/work-manager-sub001/internal/log"
	"github.com/vlied266/work-manager-sub001/pkg/engine"
	"github.com/vlied266/work-manager-sub001/pkg/models"
	"github.com/vlied266/work-manager-sub001/pkg/service"
	"github.com/vlied266/work-manager-sub001/pkg/storage"
)

func StartServer(ctx context.Context, port string, store storage.Store) error {
	svc := service.NewRunService(ctx, store, log.GetLogger(), nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/procedures", ProceduresHandler(svc))
	mux.HandleFunc("/runs", RunsHandler(svc))
	mux.HandleFunc("/runs/", RunByIDHandler(svc))

	log.GetLogger().Infof("Starting workman server on :%s", port)
	return http.ListenAndServe(":"+port, mux)
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "workman server is running")
}

func ProceduresHandler(svc *service.RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listProcedures(w, r, svc)
		case http.MethodPost:
			createProcedure(w, r, svc)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func RunsHandler(svc *service.RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listRuns(w, r, svc)
		case http.MethodPost:
			startRun(w, r, svc)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// RunByIDHandler serves /runs/{id}, /runs/{id}/complete and /runs/{id}/claim.
func RunByIDHandler(svc *service.RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/runs/")
		parts := strings.SplitN(rest, "/", 2)
		runID := parts[0]
		if runID == "" {
			http.Error(w, "Missing run id", http.StatusBadRequest)
			return
		}

		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			getRun(w, svc, runID)
		case action == "complete" && r.Method == http.MethodPost:
			completeStep(w, r, svc, runID)
		case action == "claim" && r.Method == http.MethodPost:
			claimRun(w, r, svc, runID)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	}
}

func createProcedure(w http.ResponseWriter, r *http.Request, svc *service.RunService) {
	var proc models.Procedure
	if err := json.NewDecoder(r.Body).Decode(&proc); err != nil {
		http.Error(w, fmt.Sprintf("Invalid procedure body: %v", err), http.StatusBadRequest)
		return
	}
	id, err := svc.CreateProcedure(proc)
	if err != nil {
		log.GetLogger().Errorf("Failed to create procedure: %v", err)
		http.Error(w, fmt.Sprintf("Failed to create procedure: %v", err), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func listProcedures(w http.ResponseWriter, r *http.Request, svc *service.RunService) {
	procs, err := svc.ListProcedures(r.URL.Query().Get("org"))
	if err != nil {
		log.GetLogger().Errorf("Failed to list procedures: %v", err)
		http.Error(w, "Failed to list procedures", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, procs)
}

type startRunRequest struct {
	ProcedureID string         `json:"procedure_id"`
	UserID      string         `json:"user_id"`
	Trigger     map[string]any `json:"trigger,omitempty"`
}

func startRun(w http.ResponseWriter, r *http.Request, svc *service.RunService) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.ProcedureID == "" || req.UserID == "" {
		http.Error(w, "Missing 'procedure_id' or 'user_id'", http.StatusBadRequest)
		return
	}
	run, err := svc.StartRun(req.ProcedureID, req.UserID, req.Trigger)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		log.GetLogger().Errorf("Failed to start run: %v", err)
		http.Error(w, fmt.Sprintf("Failed to start run: %v", err), status)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func listRuns(w http.ResponseWriter, r *http.Request, svc *service.RunService) {
	runs, err := svc.ListRuns(r.URL.Query().Get("procedure"))
	if err != nil {
		log.GetLogger().Errorf("Failed to list runs: %v", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func getRun(w http.ResponseWriter, svc *service.RunService, runID string) {
	run, err := svc.GetRun(runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		log.GetLogger().Errorf("Failed to get run %s: %v", runID, err)
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type completeStepRequest struct {
	UserID  string         `json:"user_id"`
	Output  any            `json:"output"`
	Outcome models.Outcome `json:"outcome,omitempty"`
}

func completeStep(w http.ResponseWriter, r *http.Request, svc *service.RunService, runID string) {
	var req completeStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Outcome == "" {
		req.Outcome = models.SuccessOutcome
	}
	run, err := svc.CompleteStep(runID, req.UserID, req.Output, req.Outcome)
	if err != nil {
		var vErr *engine.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": vErr.Error()})
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "Run not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrConflict):
			http.Error(w, "Run was modified concurrently; retry with fresh state", http.StatusConflict)
		default:
			log.GetLogger().Errorf("Failed to complete step on run %s: %v", runID, err)
			http.Error(w, fmt.Sprintf("Failed to complete step: %v", err), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type claimRequest struct {
	UserID string `json:"user_id"`
}

func claimRun(w http.ResponseWriter, r *http.Request, svc *service.RunService, runID string) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "Missing 'user_id'", http.StatusBadRequest)
		return
	}
	run, err := svc.ClaimRun(runID, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to claim run: %v", err), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}
