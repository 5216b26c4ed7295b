package orders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/platform/httpx"
)

// Handler exposes order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *httpx.Validator
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Get("/{id}/balance", h.balance)
		r.Patch("/{id}/items/{itemId}", h.reviseItem)
		r.Delete("/{id}/items/{itemId}", h.deleteItem)
	})
}

type createOrderRequest struct {
	CustomerID int64               `json:"customerId" validate:"required,gt=0"`
	OrderDate  httpx.Date          `json:"orderDate" validate:"required"`
	Items      []createItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createItemRequest struct {
	ItemID   int64           `json:"itemId" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity"`
	Rate     decimal.Decimal `json:"rate"`
}

type reviseItemRequest struct {
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
	Rate     *decimal.Decimal `json:"rate,omitempty"`
}

type orderResponse struct {
	Order
	Totals LineTotals `json:"totals"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	claim, err := httpx.ClaimFromRequest(r, IdempotencyModule)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createOrderRequest
	if err := h.validator.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateOrderInput{CustomerID: req.CustomerID, OrderDate: req.OrderDate.Time}
	for _, it := range req.Items {
		in.Items = append(in.Items, CreateItemInput(it))
	}
	order, err := h.service.CreateOrder(r.Context(), in, claim)
	if err != nil {
		h.logError(r, "create order", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, orderResponse{Order: order, Totals: order.Totals()})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.logError(r, "get order", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse{Order: order, Totals: order.Totals()})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balance, err := h.service.GetBalance(r.Context(), id)
	if err != nil {
		h.logError(r, "order balance", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) reviseItem(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := httpx.PathID(r, "itemId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reviseItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.ReviseItem(r.Context(), orderID, itemID, ReviseItemInput(req))
	if err != nil {
		h.logError(r, "revise order item", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := httpx.PathID(r, "itemId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteItem(r.Context(), orderID, itemID); err != nil {
		h.logError(r, "delete order item", err)
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
