package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/pipeline"
	"github.com/synaptica-ai/cid-coder/pkg/record"
)

// CodingHandler exposes the pipeline over HTTP.
type CodingHandler struct {
	Pipeline *pipeline.Pipeline
	Dirs     pipeline.Dirs
}

func NewCodingHandler(p *pipeline.Pipeline, dirs pipeline.Dirs) *CodingHandler {
	return &CodingHandler{Pipeline: p, Dirs: dirs}
}

func (h *CodingHandler) Register(r *mux.Router) {
	r.HandleFunc("/records/code", h.handleCodeRecord).Methods(http.MethodPost)
	r.HandleFunc("/runs/{stage}", h.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/reports/summary", h.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/provenance/{run_id}/{record_id}", h.handleProvenance).Methods(http.MethodGet)
}

func (h *CodingHandler) handleCodeRecord(w http.ResponseWriter, r *http.Request) {
	var doc record.Raw
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := record.Validate(doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, h.Pipeline.CodeRecord(r.Context(), doc))
}

// handleRun runs one stage, or every stage with "all", synchronously over the configured directories.
func (h *CodingHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["stage"]
	if name == "all" {
		summaries, err := h.Pipeline.RunAll(r.Context(), h.Dirs)
		if err != nil {
			logger.Log.WithError(err).Error("pipeline run failed")
			writeStatusJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"error": err.Error(), "stages": summaries})
			return
		}
		writeJSON(w, map[string]interface{}{"stages": summaries})
		return
	}

	stage, err := pipeline.ParseStage(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in, out := h.Dirs.For(stage)
	if stage == pipeline.StageReport {
		report, err := h.Pipeline.Report(r.Context(), in, out)
		if err != nil {
			logger.Log.WithError(err).Error("report failed")
			http.Error(w, "report failed", http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, report)
		return
	}

	summary, err := h.Pipeline.Run(r.Context(), stage, in, out)
	if err != nil {
		logger.Log.WithError(err).WithField("stage", name).Error("stage run failed")
		writeStatusJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"error": err.Error(), "summary": summary})
		return
	}
	writeJSON(w, summary)
}

func (h *CodingHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(filepath.Join(h.Dirs.Reports, pipeline.SummaryFile))
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "no report yet", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to read report summary")
		http.Error(w, "failed to read report summary", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (h *CodingHandler) handleProvenance(w http.ResponseWriter, r *http.Request) {
	log := h.Pipeline.CallLog()
	if log == nil {
		http.Error(w, "provenance not recorded", http.StatusNotFound)
		return
	}
	vars := mux.Vars(r)
	calls, err := log.Calls(r.Context(), vars["run_id"], vars["record_id"])
	if err != nil {
		logger.Log.WithError(err).Error("failed to load model calls")
		http.Error(w, "failed to load model calls", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"calls": calls})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeStatusJSON(w, http.StatusOK, data)
}

func writeStatusJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}
