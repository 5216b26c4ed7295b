package dispatch

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/platform/httpx"
)

// Handler exposes dispatch endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *httpx.Validator
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers dispatch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/dispatches", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type lineRequest struct {
	OrderItemID        int64           `json:"orderItemId" validate:"required,gt=0"`
	QuantityDispatched decimal.Decimal `json:"quantityDispatched"`
}

type createRequest struct {
	OrderID       int64         `json:"orderId" validate:"required,gt=0"`
	DispatchDate  httpx.Date    `json:"dispatchDate" validate:"required"`
	TransporterID *int64        `json:"transporterId,omitempty" validate:"omitempty,gt=0"`
	Remarks       string        `json:"remarks,omitempty" validate:"max=500"`
	Items         []lineRequest `json:"items" validate:"required,min=1,dive"`
}

type updateRequest struct {
	DispatchDate  *httpx.Date   `json:"dispatchDate,omitempty"`
	TransporterID *int64        `json:"transporterId,omitempty" validate:"omitempty,gt=0"`
	Remarks       *string       `json:"remarks,omitempty" validate:"omitempty,max=500"`
	Items         []lineRequest `json:"items" validate:"required,min=1,dive"`
}

func toLines(in []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(in))
	for _, l := range in {
		out = append(out, LineInput{OrderItemID: l.OrderItemID, Quantity: l.QuantityDispatched})
	}
	return out
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	claim, err := httpx.ClaimFromRequest(r, IdempotencyModule)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createRequest
	if err := h.validator.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Create(r.Context(), CreateInput{
		OrderID:       req.OrderID,
		DispatchDate:  req.DispatchDate.Time,
		TransporterID: req.TransporterID,
		Remarks:       req.Remarks,
		Items:         toLines(req.Items),
	}, claim)
	if err != nil {
		h.logError(r, "create dispatch", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.logError(r, "get dispatch", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := h.validator.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := UpdateInput{TransporterID: req.TransporterID, Remarks: req.Remarks, Items: toLines(req.Items)}
	if req.DispatchDate != nil {
		in.DispatchDate = &req.DispatchDate.Time
	}
	d, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.logError(r, "update dispatch", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logError(r, "delete dispatch", err)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	if httpx.StatusFor(err) < http.StatusInternalServerError {
		return
	}
	h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
}
