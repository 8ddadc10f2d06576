package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/raaihank/cv-anonymizer/internal/audit"
	"github.com/raaihank/cv-anonymizer/internal/export"
	"github.com/raaihank/cv-anonymizer/internal/ingest"
	"github.com/raaihank/cv-anonymizer/internal/normalize"
	"github.com/raaihank/cv-anonymizer/internal/redact"
	"github.com/raaihank/cv-anonymizer/internal/sections"
	"github.com/raaihank/cv-anonymizer/internal/stats"
	"github.com/raaihank/cv-anonymizer/internal/websocket"
	"go.uber.org/zap"
)

var errInvalidRequest = errors.New("invalid request")

// RedactRequest is the body of /v1/redact and /v1/export/{format}.
type RedactRequest struct {
	Text     string               `json:"text"`
	Override redact.OverrideNames `json:"override"`
	// Filename is the download name base for exports.
	Filename string `json:"filename,omitempty" validate:"max=255"`
}

// RedactResponse is returned by /v1/redact and /v1/upload.
type RedactResponse struct {
	RequestID  string                  `json:"request_id"`
	Redacted   string                  `json:"redacted"`
	Findings   []redact.Finding        `json:"findings"`
	Statistics map[redact.Category]int `json:"statistics"`
	Sections   sections.PresenceMap    `json:"sections"`
	Document   *ingest.Document        `json:"document,omitempty"`
	DurationMS float64                 `json:"duration_ms"`
}

type textRequest struct {
	Text string `json:"text"`
}

type uploadForm struct {
	FirstName string `validate:"max=200"`
	LastName  string `validate:"max=200"`
	Format    string `validate:"omitempty,oneof=txt csv json pdf"`
}

// outcome is one finished redaction run.
type outcome struct {
	result   *redact.Result
	sections sections.PresenceMap
	duration time.Duration
}

// process redacts text and reports the run to every sink. Sink failures are
// logged and never fail the request.
func (s *Server) process(r *http.Request, source, text string, names redact.OverrideNames) (*outcome, error) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	start := time.Now()
	res, err := s.engine.Load().Redact(text, names)
	if err != nil {
		return nil, err
	}
	presence := sections.Detect(res.Redacted)
	duration := time.Since(start)

	s.totalDocuments.Add(1)
	counts := countsOf(res.Statistics)
	log.LogRedaction(source, len(text), counts)

	found := presence.Found()
	if err := s.recorder.Record(r.Context(), stats.Run{Source: source, Counts: res.Statistics, Sections: found}); err != nil {
		log.Warn("Failed to record stats", zap.Error(err))
	}

	sectionNames := make([]string, len(found))
	for i, sec := range found {
		sectionNames[i] = string(sec)
	}

	if s.auditor != nil {
		entry := &audit.Entry{
			RequestID:  requestID,
			SourceKind: source,
			InputBytes: len(text),
			Counts:     audit.Counts(counts),
			Sections:   audit.SectionSet(sectionNames),
			DurationMs: duration.Milliseconds(),
		}
		if err := s.auditor.Insert(r.Context(), entry); err != nil {
			log.Warn("Failed to write audit entry", zap.Error(err))
		}
	}

	rules := make([]string, 0, len(res.Findings))
	total := 0
	for _, f := range res.Findings {
		rules = append(rules, f.Rule)
	}
	for _, n := range counts {
		total += n
	}

	s.wsHub.BroadcastRedaction(websocket.RedactionEvent{
		RequestID:    requestID,
		Source:       source,
		InputBytes:   len(text),
		Counts:       counts,
		TotalMasked:  total,
		Rules:        rules,
		Sections:     sectionNames,
		Override:     !names.Empty(),
		ProcessingMS: float64(duration.Microseconds()) / 1000,
	})

	return &outcome{result: res, sections: presence, duration: duration}, nil
}

func (s *Server) response(r *http.Request, out *outcome, doc *ingest.Document) RedactResponse {
	return RedactResponse{
		RequestID:  getRequestID(r.Context()),
		Redacted:   out.result.Redacted,
		Findings:   out.result.Findings,
		Statistics: out.result.Statistics,
		Sections:   out.sections,
		Document:   doc,
		DurationMS: float64(out.duration.Microseconds()) / 1000,
	}
}

// handleRedact redacts a JSON text body
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req RedactRequest
	if err := s.decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	out, err := s.process(r, "text", req.Text, req.Override)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.response(r, out, nil))
}

// handleUpload decodes a PDF, DOCX or text upload and redacts it. With a
// format field the rendered export is returned instead of JSON.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.handleError(w, r, fmt.Errorf("%w: %v", ingest.ErrTooLarge, err))
			return
		}
		s.handleError(w, r, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	form := uploadForm{
		FirstName: r.FormValue("first_name"),
		LastName:  r.FormValue("last_name"),
		Format:    r.FormValue("format"),
	}
	if err := s.validate.Struct(form); err != nil {
		s.handleError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.handleError(w, r, fmt.Errorf("%w: missing file field", errInvalidRequest))
		return
	}
	defer file.Close()

	doc, err := ingest.ReadAll(file, header.Filename, s.config.Server.MaxUploadBytes)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	out, err := s.process(r, string(doc.Format), doc.Text, redact.OverrideNames{FirstName: form.FirstName, LastName: form.LastName})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	if form.Format == "" {
		writeJSON(w, http.StatusOK, s.response(r, out, doc))
		return
	}

	format, err := export.ParseFormat(form.Format)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeExport(w, r, format, header.Filename, string(doc.Format), out)
}

// handleExport redacts a JSON text body and returns it rendered in {format}
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(mux.Vars(r)["format"])
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var req RedactRequest
	if err := s.decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	out, err := s.process(r, "text", req.Text, req.Override)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeExport(w, r, format, req.Filename, "text", out)
}

// writeExport renders into a buffer first so a render failure still yields a clean error response.
func (s *Server) writeExport(w http.ResponseWriter, r *http.Request, format export.Format, filename, source string, out *outcome) {
	var buf bytes.Buffer
	ctx := export.Context{
		ProcessedAt: time.Now().UTC(),
		Source:      source,
		RequestID:   getRequestID(r.Context()),
	}
	if err := s.exporter.Load().Write(&buf, format, out.result, ctx); err != nil {
		s.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(trimExt(filename), format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleSections reports which résumé sections a text contains
func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := s.decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	presence := sections.Detect(req.Text)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sections": presence,
		"found":    presence.Found(),
	})
}

// handleNormalize returns text folded for a limited character set
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := s.decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, textRequest{Text: normalize.ForLimitedCharset(req.Text)})
}

// handleRules lists the rules in application order
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	engine := s.engine.Load()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":   engine.Rules(),
		"enabled": engine.GetEnabledRules(),
		"tokens":  redact.Tokens(),
	})
}

// handleStats returns aggregated counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.recorder.Snapshot(r.Context())
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to read stats", zap.Error(err))
		writeJSONError(w, r, http.StatusServiceUnavailable, "stats backend unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"redactions":      snap,
		"total_requests":  s.totalRequests.Load(),
		"total_documents": s.totalDocuments.Load(),
		"websocket":       s.wsHub.GetStats(),
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":              "cv-anonymizer",
		"version":           Version,
		"enabled_rules":     len(s.engine.Load().GetEnabledRules()),
		"export_formats":    export.Formats,
		"stats_backend":     s.config.Stats.Backend,
		"audit_enabled":     s.auditor != nil,
		"websocket_enabled": s.config.WebSocket.Enabled,
	})
}

// decode reads a JSON body into dst and validates it
func (s *Server) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: %v", ingest.ErrTooLarge, err)
		}
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return s.validate.Struct(dst)
}

// handleError maps an error to a status code. Client errors carry their
// message; internal failures are logged and reported generically.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		writeJSONError(w, r, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ingest.ErrUnreadable):
		writeJSONError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ingest.ErrTooLarge), errors.Is(err, redact.ErrDocumentTooLarge):
		writeJSONError(w, r, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ingest.ErrEmptyDocument),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, errInvalidRequest):
		writeJSONError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &validationErrs):
		writeJSONError(w, r, http.StatusBadRequest, validationErrs.Error())
	case errors.Is(err, export.ErrRender):
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Export failed", zap.Error(err))
		writeJSONError(w, r, http.StatusInternalServerError, export.ErrRender.Error())
	default:
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Redaction failed", zap.Error(err))
		writeJSONError(w, r, http.StatusInternalServerError, "redaction failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": getRequestID(r.Context()),
	})
}

func countsOf(statistics map[redact.Category]int) map[string]int {
	counts := make(map[string]int, len(statistics))
	for category, n := range statistics {
		counts[string(category)] = n
	}
	return counts
}

func trimExt(name string) string {
	name = filepath.Base(name)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
