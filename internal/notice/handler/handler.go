// Package handler exposes the notice operations over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
	"noticeops/pkg/platform/httputil"
	"noticeops/pkg/requestcontext"
)

// Service is the subset of the coordinator the handler drives.
type Service interface {
	RegisterNotice(ctx context.Context, cmd models.RegisterNoticeCommand) (*models.Notice, error)
	ApplyPayment(ctx context.Context, cmd models.PaymentCommand) (*models.PaymentResult, error)
	RequestReduction(ctx context.Context, cmd models.ReductionCommand) (*models.ReductionResult, error)
	ReviveSuspension(ctx context.Context, noticeNo id.NoticeNo) (*models.Notice, error)
	History(ctx context.Context, noticeNo id.NoticeNo) (*models.NoticeHistory, error)
	ResyncPending(ctx context.Context, limit int) (models.ResyncResult, error)
}

// Looping runs the looping suspension pass and manages tracked parties.
type Looping interface {
	RunPass(ctx context.Context) (models.PassResult, error)
	TrackParty(ctx context.Context, partyID id.PartyID) (*models.TrackedParty, error)
}

// Handler wires notice endpoints to the coordinator and looping controller.
type Handler struct {
	service Service
	looping Looping
	logger  *slog.Logger
}

func New(service Service, looping Looping, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		looping: looping,
		logger:  logger,
	}
}

// Register mounts the officer-facing notice endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/notices", h.HandleRegisterNotice)
	r.Get("/notices/{noticeNo}", h.HandleGetNotice)
	r.Post("/notices/{noticeNo}/payments", h.HandleApplyPayment)
	r.Post("/notices/{noticeNo}/reductions", h.HandleRequestReduction)
	r.Post("/notices/{noticeNo}/revival", h.HandleReviveSuspension)
}

// RegisterAdmin mounts the operator endpoints. Callers guard the router.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/looping-suspension/run", h.HandleRunPass)
	r.Post("/admin/parties/{partyID}/tracking", h.HandleTrackParty)
	r.Post("/admin/mirror/resync", h.HandleResync)
}

func (h *Handler) HandleRegisterNotice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterNoticeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	n, err := h.service.RegisterNotice(ctx, req.Command())
	if err != nil {
		h.fail(w, r, "register notice failed", err)
		return
	}
	h.logger.InfoContext(ctx, "notice registered",
		"request_id", requestID,
		"notice_no", n.NoticeNo,
	)
	httputil.WriteJSON(w, http.StatusCreated, n)
}

func (h *Handler) HandleGetNotice(w http.ResponseWriter, r *http.Request) {
	noticeNo, ok := h.noticeNo(w, r)
	if !ok {
		return
	}
	history, err := h.service.History(r.Context(), noticeNo)
	if err != nil {
		h.fail(w, r, "get notice failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, history)
}

func (h *Handler) HandleApplyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	noticeNo, ok := h.noticeNo(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PaymentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	result, err := h.service.ApplyPayment(ctx, req.Command(noticeNo, requestcontext.Now(ctx)))
	if err != nil {
		h.fail(w, r, "apply payment failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleRequestReduction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	noticeNo, ok := h.noticeNo(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReductionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	result, err := h.service.RequestReduction(ctx, req.Command(noticeNo, requestcontext.Now(ctx)))
	if err != nil {
		h.fail(w, r, "reduction request failed", err)
		return
	}
	status := http.StatusCreated
	if result.Status == models.ReductionAlreadyApplied {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, result)
}

func (h *Handler) HandleReviveSuspension(w http.ResponseWriter, r *http.Request) {
	noticeNo, ok := h.noticeNo(w, r)
	if !ok {
		return
	}
	n, err := h.service.ReviveSuspension(r.Context(), noticeNo)
	if err != nil {
		h.fail(w, r, "revival failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) HandleRunPass(w http.ResponseWriter, r *http.Request) {
	res, err := h.looping.RunPass(r.Context())
	if err != nil {
		h.fail(w, r, "looping suspension pass failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleTrackParty(w http.ResponseWriter, r *http.Request) {
	partyID, err := id.ParsePartyID(chi.URLParam(r, "partyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.looping.TrackParty(r.Context(), partyID)
	if err != nil {
		h.fail(w, r, "track party failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleResync(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	res, err := h.service.ResyncPending(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "mirror resync failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) noticeNo(w http.ResponseWriter, r *http.Request) (id.NoticeNo, bool) {
	noticeNo, err := id.ParseNoticeNo(chi.URLParam(r, "noticeNo"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return noticeNo, true
}

// fail logs technical failures at error level; everything else was already
// logged by the service.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if dErrors.KindOf(err) == dErrors.KindTechnical {
		ctx := r.Context()
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"path", r.URL.Path,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
