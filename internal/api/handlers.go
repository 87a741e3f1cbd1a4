package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/hostbridge/internal/consent"
	"github.com/mattjoyce/hostbridge/internal/deletion"
	"github.com/mattjoyce/hostbridge/internal/events"
	"github.com/mattjoyce/hostbridge/internal/mediaindex"
)

const maxBodyBytes = 1 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:          "ok",
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
		Subscribers:     s.deps.Events.Subscribers(),
		ConsentSurfaces: s.deps.Events.Count(events.RoleConsent),
	}
	if s.deps.Deleter != nil {
		resp.Tier = s.deps.Deleter.Tier().String()
		_, resp.ConsentPending = s.deps.Deleter.Pending()
	}
	if s.deps.Index != nil {
		n, err := s.deps.Index.Count(r.Context())
		if err != nil {
			s.logger.Error("failed to count index entries", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to count index entries")
			return
		}
		resp.IndexEntries = n
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleDelete handles POST /media/delete.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if s.deps.Deleter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "deletion coordinator not available")
		return
	}

	var req DeleteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Locator) == "" {
		s.writeError(w, http.StatusBadRequest, "locator is required")
		return
	}

	// The request outlives this HTTP exchange once parked on consent.
	fut, err := s.deps.Deleter.Delete(context.WithoutCancel(r.Context()), req.Locator)
	if err != nil {
		s.writeKindError(w, err)
		return
	}

	wait := syncWait(req.WaitMs, s.config.MaxSyncWait)

	if res, ok := fut.Result(); ok {
		s.writeResult(w, res)
		return
	}
	if wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		if res, err := fut.Wait(ctx); err == nil {
			s.writeResult(w, res)
			return
		}
	}

	s.logger.Info("deletion pending consent", "request_token", fut.Token())
	respondJSON(w, http.StatusAccepted, DeleteResponse{
		Token:  fut.Token(),
		Status: "pending",
		Tier:   s.deps.Deleter.Tier().String(),
	})
}

// syncWait converts wait_ms to a duration capped at ceiling. The cap is
// applied in milliseconds so large values cannot overflow.
func syncWait(ms int64, ceiling time.Duration) time.Duration {
	if ms <= 0 {
		return 0
	}
	if ms > ceiling.Milliseconds() {
		return ceiling
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Server) writeResult(w http.ResponseWriter, res deletion.Result) {
	resp, code := ResponseFor(res)
	respondJSON(w, code, resp)
}

// ResponseFor renders a resolved deletion and the HTTP status it maps to.
func ResponseFor(res deletion.Result) (DeleteResponse, int) {
	completed := res.CompletedAt
	resp := DeleteResponse{
		Token:       res.Token,
		Status:      "completed",
		Path:        res.Path,
		Tier:        res.Tier.String(),
		Deleted:     res.Deleted,
		Partial:     res.Partial,
		Report:      &res.Report,
		CompletedAt: &completed,
	}
	code := http.StatusOK
	if res.Err != nil {
		resp.ErrorKind = string(res.Err.Kind)
		resp.Error = res.Err.Error()
		code = statusForKind(res.Err.Kind)
	}
	return resp, code
}

// handleConsentPending handles GET /consent/pending.
func (s *Server) handleConsentPending(w http.ResponseWriter, r *http.Request) {
	if s.deps.Deleter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "deletion coordinator not available")
		return
	}
	t, ok := s.deps.Deleter.Pending()
	if !ok {
		respondJSON(w, http.StatusOK, PendingResponse{})
		return
	}
	respondJSON(w, http.StatusOK, PendingResponse{Pending: true, Ticket: &t})
}

// handleConsentResult handles POST /consent/{token}.
func (s *Server) handleConsentResult(w http.ResponseWriter, r *http.Request) {
	if s.deps.Deleter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "deletion coordinator not available")
		return
	}
	token := chi.URLParam(r, "token")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if s.config.ConsentSecret != "" {
		if err := consent.VerifySignature(body, r.Header.Get(s.config.SignatureHeader), s.config.ConsentSecret); err != nil {
			s.logger.Warn("consent callback rejected", "request_token", token, "error", err)
			s.writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var req ConsentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !s.deps.Deleter.OnConsentResult(token, req.Approved) {
		s.writeError(w, http.StatusNotFound, "no outstanding consent request for token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"token": token, "approved": req.Approved})
}

// handleConsentCancel handles DELETE /consent/{token}.
func (s *Server) handleConsentCancel(w http.ResponseWriter, r *http.Request) {
	if s.deps.Deleter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "deletion coordinator not available")
		return
	}
	token := chi.URLParam(r, "token")
	if !s.deps.Deleter.Cancel(token) {
		s.writeError(w, http.StatusNotFound, "no outstanding consent request for token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIndexList handles GET /index?prefix=&limit=.
func (s *Server) handleIndexList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Index == nil {
		s.writeError(w, http.StatusServiceUnavailable, "index not available")
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.deps.Index.List(r.Context(), r.URL.Query().Get("prefix"), limit)
	if err != nil {
		s.logger.Error("failed to list index", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list index")
		return
	}
	total, err := s.deps.Index.Count(r.Context())
	if err != nil {
		s.logger.Error("failed to count index entries", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to count index entries")
		return
	}
	if entries == nil {
		entries = []mediaindex.Entry{}
	}
	respondJSON(w, http.StatusOK, IndexListResponse{Total: total, Entries: entries})
}

// handleIndexScan handles POST /index/scan. An empty root rescans every
// configured root.
func (s *Server) handleIndexScan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scanner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "index scanner not available")
		return
	}
	var req ScanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	roots := s.deps.Roots
	if req.Root != "" {
		roots = nil
		for _, root := range s.deps.Roots {
			if root.Path == req.Root {
				roots = append(roots, root)
			}
		}
		if len(roots) == 0 {
			s.writeError(w, http.StatusNotFound, "root is not configured")
			return
		}
	}

	resp := ScanResponse{Results: make([]*mediaindex.ScanResult, 0, len(roots))}
	for _, root := range roots {
		res, err := s.deps.Scanner.ScanRoot(r.Context(), root)
		if err != nil {
			s.logger.Error("index scan failed", "root", root.Path, "error", err)
			s.writeError(w, http.StatusInternalServerError, "scan failed: "+err.Error())
			return
		}
		resp.Results = append(resp.Results, res)
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleJournal handles GET /journal?limit=.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.deps.Journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	respondJSON(w, http.StatusOK, JournalResponse{Entries: entries})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New(key + " must be a positive integer")
	}
	return n, nil
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// writeKindError maps a coordinator error to its status code.
func (s *Server) writeKindError(w http.ResponseWriter, err error) {
	kind := deletion.KindOf(err)
	respondJSON(w, statusForKind(kind), ErrorResponse{Error: err.Error(), Kind: string(kind)})
}
