package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"medlens/internal/common/errors"
	"medlens/internal/models"
	"medlens/internal/pipeline"
)

const noResultMessage = "No previous analysis is available."

type analyzeRequest struct {
	Text     string        `json:"text"`
	Language string        `json:"language"`
	Source   models.Source `json:"source"`
}

type languageRequest struct {
	Language string `json:"language"`
}

type reanalyzeRequest struct {
	RawText  string `json:"rawText"`
	Language string `json:"language"`
}

type analysisResponse struct {
	RequestID    string                      `json:"requestId"`
	Result       *models.AnalysisResult      `json:"result"`
	Interactions []models.InteractionWarning `json:"interactions"`
}

type reanalysisResponse struct {
	analysisResponse
	Updated bool `json:"updated"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	input, language, err := s.decodeAnalyzeRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.runAnalysis(w, r, input, language)
}

func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := checkLanguage(req.Language); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.runAnalysis(w, r, pipeline.DemoDocument(), req.Language)
}

func (s *Server) handleReanalyze(w http.ResponseWriter, r *http.Request) {
	var req reanalyzeRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := checkLanguage(req.Language); err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.RawText != "" {
		outcome, err := s.runner.Reanalyze(r.Context(), req.RawText, req.Language)
		s.respondOutcome(w, r, outcome, err)
		return
	}

	record, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if record == nil || record.Data == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no_result", Message: noResultMessage})
		return
	}

	session := pipeline.RestoreSession(s.runner, s.logger, record.Outcome())
	outcome, updated, err := session.SetLanguage(r.Context(), req.Language)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if updated {
		s.save(r.Context(), outcome)
	}

	writeJSON(w, http.StatusOK, reanalysisResponse{
		analysisResponse: newAnalysisResponse(r.Context(), outcome),
		Updated:          updated,
	})
}

func (s *Server) handleGetLastResult(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if record == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no_result", Message: noResultMessage})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleClearLastResult(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"languages": pipeline.SupportedLanguages,
		"default":   pipeline.DefaultLanguage(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.version,
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"checks": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) runAnalysis(w http.ResponseWriter, r *http.Request, input models.DocumentInput, language string) {
	outcome, err := s.runner.Analyze(r.Context(), input, language)
	s.respondOutcome(w, r, outcome, err)
}

// respondOutcome writes a result, a sentinel or an error. Only results are
// saved to the last-result store.
func (s *Server) respondOutcome(w http.ResponseWriter, r *http.Request, outcome *models.Outcome, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if outcome.IsSentinel() {
		writeJSON(w, http.StatusUnprocessableEntity, outcome.Sentinel)
		return
	}
	s.save(r.Context(), outcome)
	writeJSON(w, http.StatusOK, newAnalysisResponse(r.Context(), outcome))
}

// save never fails the request; the analysis already succeeded.
func (s *Server) save(ctx context.Context, outcome *models.Outcome) {
	if err := s.store.Save(ctx, outcome.Result, outcome.Interactions); err != nil {
		s.logger.Warn("Failed to save last result", map[string]interface{}{
			"requestId": RequestID(ctx),
			"error":     err,
		})
	}
}

func newAnalysisResponse(ctx context.Context, outcome *models.Outcome) analysisResponse {
	interactions := outcome.Interactions
	if interactions == nil {
		interactions = []models.InteractionWarning{}
	}
	return analysisResponse{
		RequestID:    RequestID(ctx),
		Result:       outcome.Result,
		Interactions: interactions,
	}
}

func (s *Server) decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (models.DocumentInput, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return s.decodeUpload(w, r)
	}

	var req analyzeRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		return models.DocumentInput{}, "", err
	}
	if err := checkLanguage(req.Language); err != nil {
		return models.DocumentInput{}, "", err
	}
	source := req.Source
	if source == "" {
		source = models.SourcePaste
	}
	if !knownSource(source) {
		return models.DocumentInput{}, "", errors.NewInvalidInputError(fmt.Sprintf("unknown source %q", source))
	}
	return models.TextDocument(req.Text, source), req.Language, nil
}

func (s *Server) decodeUpload(w http.ResponseWriter, r *http.Request) (models.DocumentInput, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return models.DocumentInput{}, "", errors.NewInvalidInputError(fmt.Sprintf("read upload: %v", err))
	}

	language := r.FormValue("language")
	if err := checkLanguage(language); err != nil {
		return models.DocumentInput{}, "", err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return models.DocumentInput{}, "", errors.NewInvalidInputError("file is required")
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		return models.DocumentInput{}, "", errors.NewInvalidInputError(fmt.Sprintf("read upload: %v", err))
	}

	source := models.Source(r.FormValue("source"))
	if source == "" {
		source = models.SourceUpload
	}
	if !knownSource(source) {
		return models.DocumentInput{}, "", errors.NewInvalidInputError(fmt.Sprintf("unknown source %q", source))
	}
	return models.ImageDocument(image, header.Filename, header.Header.Get("Content-Type"), source), language, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := errors.Normalize(err)

	if stdErr.Code == errors.ErrCodeInvalidInput {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(stdErr.Code), Message: stdErr.Details})
		return
	}

	s.logger.Error("Request failed", map[string]interface{}{
		"requestId": RequestID(r.Context()),
		"path":      r.URL.Path,
		"errorCode": string(stdErr.Code),
		"error":     err,
	})
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error:   string(stdErr.Code),
		Message: errors.GenericFailureMessage,
	})
}

func checkLanguage(language string) error {
	if !pipeline.IsSupportedLanguage(language) {
		return errors.NewInvalidInputError(fmt.Sprintf("unsupported language %q", language))
	}
	return nil
}

func knownSource(source models.Source) bool {
	switch source {
	case models.SourceCamera, models.SourceUpload, models.SourcePaste, models.SourceVoice, models.SourceDemo:
		return true
	}
	return false
}

// decodeOptionalJSON accepts an empty body as the zero value.
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || stderrors.Is(err, io.EOF) {
		return nil
	}
	return errors.NewInvalidInputError(fmt.Sprintf("decode request: %v", err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
