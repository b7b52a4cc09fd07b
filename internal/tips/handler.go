package tips

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sundayezeilo/tips/internal/errx"
	"github.com/sundayezeilo/tips/internal/httpx"
)

// HTTPSubmitTipRequest is the JSON body for new tips and edits. Edits ignore
// connection_id and take the parent's.
type HTTPSubmitTipRequest struct {
	ConnectionID string `json:"connection_id"`
	Title        string `json:"title,omitempty"`
	Body         string `json:"body"`
	Attribution  string `json:"attribution,omitempty"`
	Language     string `json:"language,omitempty"`
}

// SubmitTipResponse is returned for a created tip or edit.
type SubmitTipResponse struct {
	TipID int64 `json:"tip_id"`
}

// ListTipsResponse wraps tip lists so the payload can grow fields later.
type ListTipsResponse struct {
	Tips []Tip `json:"tips"`
}

// Handler provides HTTP handlers for the moderation service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service Service
	Logger  *slog.Logger
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: cfg.Service,
		logger:  logger,
	}
}

// CreateTip handles POST /api/tips.
func (h *Handler) CreateTip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[HTTPSubmitTipRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	id, err := h.service.Submit(ctx, req.toSubmit())
	if err != nil {
		h.handleError(ctx, w, err, "submit tip")
		return
	}

	logger.InfoContext(ctx, "tip submitted",
		"tip_id", id,
		"connection_id", req.ConnectionID,
	)
	httpx.WriteJSON(w, http.StatusCreated, SubmitTipResponse{TipID: id})
}

// CreateEdit handles POST /api/tips/{id}/edits.
func (h *Handler) CreateEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	parentID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	req, err := httpx.DecodeJSON[HTTPSubmitTipRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	id, err := h.service.SubmitEdit(ctx, parentID, req.toSubmit())
	if err != nil {
		h.handleError(ctx, w, err, "submit edit")
		return
	}

	logger.InfoContext(ctx, "edit submitted",
		"tip_id", id,
		"parent_id", parentID,
	)
	httpx.WriteJSON(w, http.StatusCreated, SubmitTipResponse{TipID: id})
}

// GetTip handles GET /api/tips/{id}.
func (h *Handler) GetTip(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	tip, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleError(r.Context(), w, err, "get tip")
		return
	}

	h.requestLogger(r).DebugContext(r.Context(), "tip fetched",
		"tip_id", tip.TipID,
		"edit", tip.IsEdit(),
		"deleted", tip.Deleted,
	)
	httpx.WriteJSON(w, http.StatusOK, tip)
}

// ListTips handles GET /api/tips?connection_id=a&connection_id=b.
func (h *Handler) ListTips(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	includeUnapproved := false
	if raw := query.Get("include_unapproved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request",
				"include_unapproved must be a boolean", nil)
			return
		}
		includeUnapproved = v
	}

	tips, err := h.service.List(ctx, query["connection_id"], includeUnapproved)
	if err != nil {
		h.handleError(ctx, w, err, "list tips")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ListTipsResponse{Tips: tips})
}

// ListPending handles GET /api/tips/unapproved.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	tips, err := h.service.Pending(r.Context())
	if err != nil {
		h.handleError(r.Context(), w, err, "list pending tips")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ListTipsResponse{Tips: tips})
}

// ApproveTip handles POST /api/tips/{id}/approve.
func (h *Handler) ApproveTip(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, "approve tip", h.service.Approve)
}

// RejectTip handles POST /api/tips/{id}/reject.
func (h *Handler) RejectTip(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, "reject tip", h.service.Reject)
}

// RevertEdit handles POST /api/tips/{id}/revert.
func (h *Handler) RevertEdit(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, "revert edit", h.service.Revert)
}

// DeleteTip handles DELETE /api/tips/{id}.
func (h *Handler) DeleteTip(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, "delete tip", h.service.Delete)
}

func (h *Handler) moderate(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, int64) error) {
	ctx := r.Context()

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := fn(ctx, id); err != nil {
		h.handleError(ctx, w, err, action)
		return
	}

	h.requestLogger(r).InfoContext(ctx, "moderation applied",
		"action", action,
		"tip_id", id,
	)
	httpx.WriteNoContent(w)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseTipID(r.PathValue("id"))
	if err != nil {
		h.requestLogger(r).WarnContext(r.Context(), "invalid tip id",
			"id", r.PathValue("id"),
			"error", err.Error(),
		)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_tip_id", err.Error(), nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

// handleError logs err at a level matching its kind and writes the response.
// Status and code come from the kind; only the message is chosen here.
func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, err error, action string) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"request_id", httpx.GetRequestID(ctx),
		"action", action,
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
	}

	message := "Unable to " + action + " at this time. Please try again."
	switch kind {
	case errx.NotFound:
		h.logger.WarnContext(ctx, "tip not found", logAttrs...)
		message = "tip doesn't exist"

	case errx.Invalid:
		h.logger.WarnContext(ctx, "invalid tip request", logAttrs...)
		message = clientMessage(err, "tip was rejected by a storage constraint")

	case errx.Conflict:
		h.logger.WarnContext(ctx, "tip state conflict", logAttrs...)
		message = clientMessage(err, "tip conflicts with its current state")

	case errx.Unavailable:
		h.logger.ErrorContext(ctx, "tip store unavailable", logAttrs...)

	default:
		h.logger.ErrorContext(ctx, "unexpected error", logAttrs...)
	}

	httpx.WriteKindError(w, err, message)
}

func (req HTTPSubmitTipRequest) toSubmit() SubmitRequest {
	return SubmitRequest{
		ConnectionID: req.ConnectionID,
		Title:        req.Title,
		Body:         req.Body,
		Attribution:  req.Attribution,
		Language:     req.Language,
	}
}

func parseTipID(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("tip id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("tip id must be a positive integer")
	}
	return id, nil
}

// clientMessage returns the innermost message of err, or fallback when the
// error comes from the database so constraint and table names stay in the logs.
func clientMessage(err error, fallback string) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fallback
	}
	return cause(err)
}

// cause strips operation prefixes so clients see only the innermost message.
func cause(err error) string {
	for {
		var e *errx.Error
		if !errors.As(err, &e) || e.Err == nil {
			return err.Error()
		}
		err = e.Err
	}
}
