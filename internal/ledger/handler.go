package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/platform/httpx"
	"github.com/steelworks-erp/steelworks/internal/shared"
)

// Handler exposes manual ledger entry and the stock card.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *httpx.Validator
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers ledger routes; mounted under /stock-reports.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stock-transactions", h.createManual)
	r.Get("/stock-ledger", h.stockCard)
}

type manualEntryRequest struct {
	TransactionDate httpx.Date      `json:"transactionDate" validate:"required"`
	TransactionType string          `json:"transactionType" validate:"required,oneof=OPENING RECEIPT ISSUE"`
	ItemID          int64           `json:"itemId" validate:"required,gt=0"`
	Quantity        decimal.Decimal `json:"quantity"`
	Rate            decimal.Decimal `json:"rate"`
	ReferenceType   string          `json:"referenceType,omitempty" validate:"max=40"`
	ReferenceID     *int64          `json:"referenceId,omitempty" validate:"omitempty,gt=0"`
	Remarks         string          `json:"remarks,omitempty" validate:"max=500"`
}

func (h *Handler) createManual(w http.ResponseWriter, r *http.Request) {
	var req manualEntryRequest
	if err := h.validator.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.CreateManual(r.Context(), ManualEntryInput{
		Date:          req.TransactionDate.Time,
		Type:          TransactionType(req.TransactionType),
		ItemID:        req.ItemID,
		Quantity:      req.Quantity,
		Rate:          req.Rate,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Remarks:       req.Remarks,
	})
	if err != nil {
		h.logError(r, "create manual stock transaction", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(r.URL.Query().Get("itemId"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.RespondError(w, shared.Validation("itemId", "must be a positive integer"))
		return
	}
	start, err := httpx.QueryDate(r, "startDate")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	end, err := httpx.QueryDate(r, "endDate")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	card, err := h.service.StockCard(r.Context(), itemID, start, end)
	if err != nil {
		h.logError(r, "stock card", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, card)
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	if httpx.StatusFor(err) < http.StatusInternalServerError {
		return
	}
	h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
}
