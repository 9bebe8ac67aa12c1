package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/platinummonkey/askdata/pkg/analysis"
	"github.com/platinummonkey/askdata/pkg/history"
	"github.com/platinummonkey/askdata/pkg/httputil"
	"github.com/platinummonkey/askdata/pkg/usage"
)

// multipartMemoryLimit is how much of an upload is buffered in memory
// before spilling to disk.
const multipartMemoryLimit = 32 << 20

const defaultHistoryLimit = 50

// analysisResponse is the success body for POST /api/analyses.
type analysisResponse struct {
	Answer     string         `json:"answer"`
	RecordID   string         `json:"record_id"`
	DurationMS int64          `json:"duration_ms"`
	Usage      usage.Snapshot `json:"usage"`
}

// deniedResponse is the body for quota and size denials.
type deniedResponse struct {
	Error string         `json:"error"`
	Usage usage.Snapshot `json:"usage"`
}

// handleCreateAnalysis accepts a multipart upload ("file" + "question"),
// runs the analysis pipeline, and maps the outcome to a status code.
func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		httputil.WriteBadRequest(w, "expected multipart form with file and question")
		return
	}

	question := r.FormValue("question")
	if !httputil.RequireNonEmpty(w, question, "question") {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read uploaded file")
		return
	}

	doc := analysis.Document{Filename: header.Filename, Content: content}
	outcome, err := s.orch.Run(r.Context(), user, doc, question)
	if err != nil {
		s.logger.WithError(err).Error("Analysis pipeline failed")
		httputil.WriteInternalError(w, errors.New("analysis failed"))
		return
	}

	switch outcome.Kind {
	case analysis.OutcomeCompleted:
		httputil.WriteSuccess(w, analysisResponse{
			Answer:     outcome.Answer,
			RecordID:   outcome.RecordID,
			DurationMS: outcome.Duration.Milliseconds(),
			Usage:      outcome.Snapshot,
		})
	case analysis.OutcomeQuotaExceeded:
		httputil.WriteJSON(w, http.StatusTooManyRequests, deniedResponse{
			Error: outcome.Reason,
			Usage: outcome.Snapshot,
		})
	case analysis.OutcomeFileTooLarge:
		httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, deniedResponse{
			Error: outcome.Reason,
			Usage: outcome.Snapshot,
		})
	case analysis.OutcomeFailed:
		httputil.WriteBadGateway(w, "analysis backend failed")
	default:
		httputil.WriteInternalError(w, fmt.Errorf("unknown analysis outcome %q", outcome.Kind))
	}
}

// usageResponse pairs the snapshot with the upgrade nudge for the UI.
type usageResponse struct {
	usage.Snapshot
	UpgradePrompt bool   `json:"upgrade_prompt"`
	PromptReason  string `json:"prompt_reason,omitempty"`
}

func (s *Server) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	snap, err := s.ledger.Snapshot(r.Context(), user.ID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load usage snapshot")
		httputil.WriteInternalError(w, errors.New("failed to load usage"))
		return
	}

	prompt, reason, err := s.ledger.ShouldShowUpgradePrompt(r.Context(), user.ID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to evaluate upgrade prompt")
		httputil.WriteInternalError(w, errors.New("failed to load usage"))
		return
	}

	httputil.WriteSuccess(w, usageResponse{
		Snapshot:      snap,
		UpgradePrompt: prompt,
		PromptReason:  reason,
	})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit <= 0 {
		httputil.WriteBadRequest(w, "limit must be a positive integer")
		return
	}

	records, err := s.history.List(r.Context(), user.ID, limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list history")
		httputil.WriteInternalError(w, errors.New("failed to load history"))
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) handleGetHistoryRecord(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	rec, err := s.history.Get(r.Context(), user.ID, id)
	if errors.Is(err, history.ErrNotFound) {
		httputil.WriteNotFoundError(w, "analysis not found")
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to load history record")
		httputil.WriteInternalError(w, errors.New("failed to load history"))
		return
	}

	httputil.WriteSuccess(w, rec)
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	stats, err := s.history.Stats(r.Context(), user.ID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load history stats")
		httputil.WriteInternalError(w, errors.New("failed to load history stats"))
		return
	}

	httputil.WriteSuccess(w, stats)
}
