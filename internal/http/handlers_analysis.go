package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
)

const (
	// maxUploadBytes bounds one multipart submission. Individual files over
	// core.MaxOfflineFileSize are still accepted when they can be analyzed
	// right away.
	maxUploadBytes    = 64 << 20
	multipartMemory   = 8 << 20
	sseKeepAliveEvery = 25 * time.Second
)

type outcomeView struct {
	FileName string
	Message  string
	Level    string
	Summary  string
}

type analysisView struct {
	services.Snapshot
	MaxMiB   int
	Outcomes []outcomeView
}

func (s *Server) analysisData(snap services.Snapshot, outs []services.Outcome) analysisView {
	v := analysisView{Snapshot: snap, MaxMiB: core.MaxOfflineFileSize >> 20}
	for _, o := range outs {
		ov := outcomeView{FileName: o.FileName, Message: o.Message(), Level: o.Level()}
		if o.Entry != nil {
			ov.Summary = o.Entry.Summary
		}
		v.Outcomes = append(v.Outcomes, ov)
	}
	return v
}

// handleAnalysisPanel renders credential state, pending queue and history.
func (s *Server) handleAnalysisPanel(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "analysis.html", s.analysisData(s.analysis.Refresh(r.Context()), nil))
}

// handleAnalyze accepts one or more files in the "files" multipart field
// and runs each through the analysis policy in order.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Fail(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload too large (limit %d MiB per request)", maxUploadBytes>>20)).Write(w)
			return
		}
		s.logger.WarnContext(r.Context(), "Parse multipart error", "error", err, applog.FieldComponent, applog.ComponentAnalysis)
		Fail(http.StatusBadRequest, "Invalid upload").Write(w)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		Fail(http.StatusBadRequest, "Select at least one file").Write(w)
		return
	}

	files := make([]core.FileUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.logger.ErrorContext(r.Context(), "Open uploaded file error", "error", err, applog.FieldFileName, fh.Filename)
			Fail(http.StatusInternalServerError, "Could not read "+fh.Filename).Write(w)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			s.logger.ErrorContext(r.Context(), "Read uploaded file error", "error", err, applog.FieldFileName, fh.Filename)
			Fail(http.StatusInternalServerError, "Could not read "+fh.Filename).Write(w)
			return
		}
		typ := fh.Header.Get("Content-Type")
		if typ == "" || typ == "application/octet-stream" {
			typ = http.DetectContentType(data)
		}
		files = append(files, core.FileUpload{
			Name: sanitizeInput(filepath.Base(fh.Filename)),
			Type: typ,
			Data: data,
		})
	}
	atomic.AddInt64(&s.appMetrics.uploads, int64(len(files)))

	outs := s.analysis.SubmitAll(r.Context(), files)
	for _, o := range outs {
		s.events.LogAnalysisOutcome(r.Context(), o.FileName, o.Status.String(), o.Err)
	}

	body, err := s.execute(r.Context(), "analysis_result.html", s.analysisData(s.analysis.Snapshot(), outs))
	if err != nil {
		Fail(http.StatusInternalServerError, "Rendering failed").Write(w)
		return
	}

	resp := NewReply().AnalysisUpdated().ResetForm().HTML(string(body))
	if len(outs) == 1 {
		resp.Toast(Toast(outs[0].Level()), outs[0].Message())
	} else {
		level, msg := summarizeOutcomes(outs)
		resp.Toast(Toast(level), msg)
	}
	resp.Write(w)
}

// summarizeOutcomes picks the most severe level across outs.
func summarizeOutcomes(outs []services.Outcome) (string, string) {
	rank := map[string]int{"success": 0, "info": 1, "warning": 2, "error": 3}
	level := "success"
	analyzed := 0
	for _, o := range outs {
		if rank[o.Level()] > rank[level] {
			level = o.Level()
		}
		if o.Status == services.StatusAnalyzed {
			analyzed++
		}
	}
	return level, fmt.Sprintf("%d of %d files analyzed", analyzed, len(outs))
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	report, err := s.analysis.Drain(r.Context())
	resp := NewReply().AnalysisUpdated()
	switch {
	case err != nil:
		s.events.LogError(r.Context(), "Drain failed", err, applog.ComponentAnalysis, applog.OpDrain, nil)
		resp.Toast(ToastError, "Could not process the queue")
	case report.Taken == 0:
		resp.Toast(ToastInfo, "Nothing to process")
	default:
		resp.Toast(map[bool]Toast{true: ToastSuccess, false: ToastWarning}[report.Failed == 0],
			fmt.Sprintf("Processed %d queued files, %d failed, %d still waiting", report.Succeeded+report.Failed, report.Failed, report.Requeued))
	}
	body, rerr := s.execute(r.Context(), "analysis.html", s.analysisData(s.analysis.Snapshot(), report.Outcomes))
	if rerr == nil {
		resp.HTML(string(body))
	}
	resp.Write(w)
}

func (s *Server) handleDismissError(w http.ResponseWriter, r *http.Request) {
	s.analysis.DismissError(r.Context())
	s.render(w, r, "analysis.html", s.analysisData(s.analysis.Snapshot(), nil))
}

func (s *Server) handleSaveAPIKey(w http.ResponseWriter, r *http.Request) {
	fields, err := ReadFields(r)
	if err != nil {
		Fail(http.StatusBadRequest, "Invalid request format").Write(w)
		return
	}
	if err := s.analysis.SaveAPIKey(r.Context(), fields.Get("api_key")); err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			Fail(http.StatusUnprocessableEntity, verr.Error()).Write(w)
			return
		}
		s.events.LogError(r.Context(), "Save API key failed", err, applog.ComponentAppState, applog.OpCreate, nil)
		Fail(http.StatusInternalServerError, "Could not save the API key").Write(w)
		return
	}
	s.respondPanel(w, r, "API key saved")
}

func (s *Server) handleClearAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := s.analysis.ClearAPIKey(r.Context()); err != nil {
		s.events.LogError(r.Context(), "Clear API key failed", err, applog.ComponentAppState, applog.OpDelete, nil)
		Fail(http.StatusInternalServerError, "Could not clear the API key").Write(w)
		return
	}
	s.respondPanel(w, r, "API key removed")
}

func (s *Server) respondPanel(w http.ResponseWriter, r *http.Request, note string) {
	body, err := s.execute(r.Context(), "analysis.html", s.analysisData(s.analysis.Refresh(r.Context()), nil))
	if err != nil {
		Fail(http.StatusInternalServerError, "Rendering failed").Write(w)
		return
	}
	NewReply().
		ResetForm().
		Toast(ToastSuccess, note).
		HTML(string(body)).
		Write(w)
}

// handleConnectivity overrides the reachability state until the next probe.
func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	if s.conn == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "connectivity control disabled"})
		return
	}
	fields, err := ReadFields(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request format"})
		return
	}
	online, err := strconv.ParseBool(fields.Get("online"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "online must be true or false"})
		return
	}
	s.conn.Set(online)
	s.logger.InfoContext(r.Context(), "Connectivity overridden",
		applog.FieldOnline, online,
		applog.FieldComponent, applog.ComponentConnectivity)
	writeJSON(w, http.StatusOK, map[string]bool{"online": s.conn.Online()})
}

// handleState returns the current analysis snapshot as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.analysis.Refresh(r.Context()))
}

// handleEvents streams analysis snapshots as server-sent events, starting
// with the current one. Every event carries the complete state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	updates, cancel := s.analysis.Subscribe()
	defer cancel()

	send := func(snap services.Snapshot) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	ticker := time.NewTicker(sseKeepAliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := send(snap); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
