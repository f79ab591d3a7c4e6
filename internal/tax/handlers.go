package tax

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/storelens/avatax-bridge/internal/avatax"
	"github.com/storelens/avatax-bridge/internal/common"
	"github.com/storelens/avatax-bridge/internal/order"
	"github.com/storelens/avatax-bridge/internal/resilience"
)

// Handler exposes the tax flows over HTTP.
type Handler struct {
	Svc      *Service
	Commits  *CommitEnqueuer
	Validate *validator.Validate
}

// Routes mounts the tax endpoints on the provided router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/orders/{orderID}/tax/estimate", h.Estimate)
	r.Post("/v1/orders/{orderID}/tax/commit", h.Commit)
	r.Post("/v1/orders/{orderID}/tax/commit-final", h.CommitFinal)
	r.Post("/v1/orders/{orderID}/tax/cancel", h.Cancel)
	r.Get("/v1/orders/{orderID}/tax", h.Get)
	r.Post("/v1/refunds/{refundID}/tax/capture", h.CaptureReturn)
}

// Estimate computes tax for the order without recording a document.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	res, err := h.Svc.Estimate(r.Context(), orderID)
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, res)
}

// Commit records a sales invoice without finalising it.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	res, err := h.Svc.Commit(r.Context(), orderID)
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, res)
}

// CommitFinal enqueues an asynchronous final commit for the order.
func (h *Handler) CommitFinal(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	if h.Commits == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "commit queue not configured", nil)
		return
	}
	if err := h.Commits.EnqueueCommitFinal(r.Context(), orderID); err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{
		"orderId": orderID,
		"status":  "queued",
	})
}

type cancelRequest struct {
	CancelCode string `json:"cancelCode" validate:"omitempty,oneof=DocVoided DocDeleted"`
}

// Cancel voids the order's recorded tax document.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	var body cancelRequest
	if !h.decodeOptional(w, r, &body) {
		return
	}
	res, err := h.Svc.Cancel(r.Context(), orderID, body.CancelCode)
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, res)
}

// Get returns the last recorded transaction for the order.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	tx, err := h.Svc.LastTransaction(r.Context(), orderID)
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"orderId":   tx.OrderID,
		"docCode":   tx.DocCode,
		"docType":   tx.DocType,
		"totalTax":  tx.TotalTax.String(),
		"status":    tx.Status,
		"createdAt": tx.CreatedAt,
		"updatedAt": tx.UpdatedAt,
	})
}

// CaptureReturn submits a return invoice for a refund.
func (h *Handler) CaptureReturn(w http.ResponseWriter, r *http.Request) {
	refundID, ok := h.pathID(w, r, "refundID")
	if !ok {
		return
	}
	res, err := h.Svc.CaptureReturn(r.Context(), refundID)
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, res)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid "+name, nil)
		return 0, false
	}
	return id, true
}

// decodeOptional parses an optional JSON body and validates it. An empty body
// is accepted as the zero value.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(dst); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "request validation failed", err.Error())
			return false
		}
	}
	return true
}

func (h *Handler) renderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrRefundNotFound),
		errors.Is(err, ErrTransactionNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrDocumentCommitDisabled):
		common.JSONError(w, http.StatusConflict, "COMMIT_DISABLED", err.Error(), nil)
	case errors.Is(err, avatax.ErrResultNotSuccess):
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM", err.Error(), nil)
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "tax operation failed", nil)
	}
}
