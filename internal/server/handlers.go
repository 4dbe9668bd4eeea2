package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/invoicetools/extraction-service/internal/common"
	"github.com/invoicetools/extraction-service/internal/entity"
	"github.com/invoicetools/extraction-service/internal/export"
	"github.com/invoicetools/extraction-service/internal/ingest"
)

// maxUploadBytes caps spreadsheet uploads.
const maxUploadBytes = 10 << 20

type createBatchRequest struct {
	URLs      []string `json:"urls"`
	FileName  string   `json:"file_name"`
	CreatedBy string   `json:"created_by"`
}

// handleCreateBatch accepts either a JSON URL list or a multipart
// spreadsheet upload, creates the batch, and processes it in the
// background. The response carries the batch ID for progress polling.
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest

	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "application/json"):
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, r, common.NewAppError("INVALID_INPUT", "malformed request body", err))
			return
		}
	default:
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			s.respondError(w, r, common.NewAppError("INVALID_INPUT", "expected JSON body or multipart upload", err))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, r, common.NewAppError("INVALID_INPUT", "missing file part", err))
			return
		}
		defer file.Close()

		urls, err := ingest.ReadURLs(file, header.Filename)
		if err != nil {
			s.respondError(w, r, common.NewAppError("INVALID_INPUT", "could not read upload", err))
			return
		}
		req.URLs = urls
		req.FileName = header.Filename
		req.CreatedBy = r.FormValue("created_by")
	}

	if len(req.URLs) == 0 {
		s.respondError(w, r, common.NewAppError("INVALID_INPUT",
			"no source urls in request", common.ErrInvalidInput))
		return
	}

	batch, err := s.orch.Start(r.Context(), req.FileName, req.URLs, req.CreatedBy)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, batch)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseBatchID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	batch, err := s.batches.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, batch)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.batches.List(r.Context(), r.URL.Query().Get("created_by"), 100)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if batches == nil {
		batches = []*entity.Batch{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	id, err := parseBatchID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if _, err := s.batches.Get(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	records, err := s.records.ListByBatch(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleExportBatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseBatchID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	batch, err := s.batches.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	records, err := s.records.ListByBatch(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.FileName(batch)))
	if err := export.WriteBatchXLSX(w, batch, records, s.specs); err != nil {
		// Headers are gone; all we can do is log.
		s.logger.Error("export write error", "batch_id", id, "error", err)
	}
}

func parseBatchID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "batchID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, common.NewAppError("INVALID_INPUT",
			fmt.Sprintf("invalid batch id %q", raw), err)
	}
	return id, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encode error", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"
	msg := "internal error"

	var appErr *common.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		msg = appErr.Message
		switch {
		case errors.Is(appErr, common.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(appErr, common.ErrInvalidInput):
			status = http.StatusBadRequest
		case appErr.Code == "UNHEALTHY":
			status = http.StatusServiceUnavailable
		}
	}

	if status >= 500 {
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Warn("request rejected",
			"method", r.Method, "path", r.URL.Path, "code", code)
	}
	s.respondJSON(w, status, map[string]string{"error": code, "message": msg})
}
