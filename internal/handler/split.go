package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ridesplit/ridesplit/internal/handler/dto"
	"github.com/ridesplit/ridesplit/internal/ocr"
	"github.com/ridesplit/ridesplit/internal/service"
)

// receiptField is the multipart field holding the receipt image.
const receiptField = "receipt"

// SplitService reads fares and tracks who paid the payer back.
type SplitService interface {
	ExtractFare(ctx context.Context, groupID, userID string, image []byte, contentType string) (float64, error)
	StartSplit(ctx context.Context, groupID, payerID string, total float64) (*service.SplitStatus, error)
	SetPaid(ctx context.Context, groupID, callerID, memberID string, paid bool) (*service.SplitStatus, error)
	Status(ctx context.Context, groupID, userID string) (*service.SplitStatus, error)
}

// SplitHandler handles fare extraction and split tracking.
type SplitHandler struct {
	svc       SplitService
	logger    *slog.Logger
	maxUpload int64
}

// NewSplitHandler creates a new SplitHandler. maxUpload bounds the
// receipt image in bytes.
func NewSplitHandler(svc SplitService, maxUpload int64, logger *slog.Logger) *SplitHandler {
	return &SplitHandler{svc: svc, logger: logger, maxUpload: maxUpload}
}

// Fare handles POST /api/v1/groups/{id}/fare with a multipart receipt image.
func (h *SplitHandler) Fare(w http.ResponseWriter, r *http.Request) {
	userID, ok := riderID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "receipt image too large")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "expected a multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(receiptField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "missing "+receiptField+" file")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "could not read receipt")
		return
	}
	if int64(len(image)) > h.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "receipt image too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(image)
	}
	if len(image) > 0 && !strings.HasPrefix(contentType, "image/") && contentType != "application/pdf" {
		writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "receipt must be an image")
		return
	}

	amount, err := h.svc.ExtractFare(r.Context(), chi.URLParam(r, "id"), userID, image, contentType)
	if err != nil {
		h.handleFareError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FareResponse{Amount: amount})
}

// Start handles POST /api/v1/groups/{id}/split.
func (h *SplitHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := riderID(w, r)
	if !ok {
		return
	}

	var req dto.StartSplitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status, err := h.svc.StartSplit(r.Context(), chi.URLParam(r, "id"), userID, req.Total)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, status)
}

// Status handles GET /api/v1/groups/{id}/split.
func (h *SplitHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := riderID(w, r)
	if !ok {
		return
	}

	status, err := h.svc.Status(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// SetPaid handles PUT /api/v1/groups/{id}/split/{user_id}.
func (h *SplitHandler) SetPaid(w http.ResponseWriter, r *http.Request) {
	userID, ok := riderID(w, r)
	if !ok {
		return
	}

	var req dto.SetPaidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.HasPaid == nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "has_paid is required")
		return
	}

	status, err := h.svc.SetPaid(r.Context(), chi.URLParam(r, "id"), userID, chi.URLParam(r, "user_id"), *req.HasPaid)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	if status.Closed {
		h.logger.Info("group settled", "group_id", status.GroupID)
	}
	writeJSON(w, http.StatusOK, status)
}

// handleFareError maps OCR failures before falling back to service errors.
func (h *SplitHandler) handleFareError(w http.ResponseWriter, err error) {
	var (
		statusErr *ocr.StatusError
		repoErr   *service.RepositoryError
	)
	switch {
	case errors.Is(err, ocr.ErrNoAmount):
		writeError(w, http.StatusUnprocessableEntity, "NO_AMOUNT", "no dollar amount found on receipt")
	case errors.Is(err, ocr.ErrEmptyImage):
		writeError(w, http.StatusBadRequest, "EMPTY_IMAGE", "receipt image is empty")
	case errors.Is(err, ocr.ErrProcessing), errors.As(err, &statusErr):
		h.logger.Warn("ocr_failed", "error", err)
		writeError(w, http.StatusBadGateway, "OCR_FAILED", "could not read the receipt, try again")
	case errors.Is(err, service.ErrNotMember), errors.Is(err, service.ErrGroupNotFound),
		errors.Is(err, service.ErrInvalidInput), errors.As(err, &repoErr):
		handleServiceError(h.logger, w, err)
	default:
		h.logger.Warn("ocr_failed", "error", err)
		writeError(w, http.StatusBadGateway, "OCR_FAILED", "could not read the receipt, try again")
	}
}
