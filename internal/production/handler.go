package production

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/platform/httpx"
)

// Handler exposes production event endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *httpx.Validator
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/production", func(r chi.Router) {
		r.Post("/grns", h.postGRN)
		r.Delete("/grns/{id}", h.deleteGRN)
		r.Post("/meltings", h.recordMelting)
		r.Delete("/meltings/{id}", h.deleteMelting)
		r.Post("/heat-treatments", h.recordHeatTreatment)
		r.Delete("/heat-treatments/{id}", h.deleteHeatTreatment)
	})
}

type grnRequest struct {
	SupplierID int64            `json:"supplierId" validate:"required,gt=0"`
	GRNDate    httpx.Date       `json:"grnDate" validate:"required"`
	InvoiceNo  string           `json:"invoiceNo,omitempty" validate:"max=60"`
	Lines      []grnLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type grnLineRequest struct {
	ItemID   int64           `json:"itemId" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity"`
	Rate     decimal.Decimal `json:"rate"`
}

type meltingRequest struct {
	MeltingDate  httpx.Date         `json:"meltingDate" validate:"required"`
	HeatNumber   string             `json:"heatNumber" validate:"required,max=40"`
	Remarks      string             `json:"remarks,omitempty" validate:"max=500"`
	Consumptions []ConsumptionInput `json:"consumptions" validate:"required,min=1,dive"`
}

type heatTreatmentRequest struct {
	TreatmentDate httpx.Date       `json:"treatmentDate" validate:"required"`
	FurnaceNumber string           `json:"furnaceNumber" validate:"required,max=40"`
	ItemID        int64            `json:"itemId" validate:"required,gt=0"`
	BagsProduced  int              `json:"bagsProduced" validate:"required,gt=0"`
	WIPItemID     *int64           `json:"wipItemId,omitempty" validate:"omitempty,gt=0"`
	WIPQuantity   *decimal.Decimal `json:"wipQuantity,omitempty"`
	Remarks       string           `json:"remarks,omitempty" validate:"max=500"`
}

func (h *Handler) postGRN(w http.ResponseWriter, r *http.Request) {
	var req grnRequest
	if err := h.validator.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := GRNInput{SupplierID: req.SupplierID, GRNDate: req.GRNDate.Time, InvoiceNo: req.InvoiceNo}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, GRNLineInput(l))
	}
	grn, err := h.service.PostGRN(r.Context(), in)
	if err != nil {
		h.logError(r, "post grn", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grn)
}

func (h *Handler) recordMelting(w http.ResponseWriter, r *http.Request) {
	var req meltingRequest
	if err := h.validator.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.service.RecordMelting(r.Context(), MeltingInput{
		MeltingDate:  req.MeltingDate.Time,
		HeatNumber:   req.HeatNumber,
		Remarks:      req.Remarks,
		Consumptions: req.Consumptions,
	})
	if err != nil {
		h.logError(r, "record melting", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) recordHeatTreatment(w http.ResponseWriter, r *http.Request) {
	var req heatTreatmentRequest
	if err := h.validator.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ht, err := h.service.RecordHeatTreatment(r.Context(), HeatTreatmentInput{
		TreatmentDate: req.TreatmentDate.Time,
		FurnaceNumber: req.FurnaceNumber,
		ItemID:        req.ItemID,
		BagsProduced:  req.BagsProduced,
		WIPItemID:     req.WIPItemID,
		WIPQuantity:   req.WIPQuantity,
		Remarks:       req.Remarks,
	})
	if err != nil {
		h.logError(r, "record heat treatment", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ht)
}

func (h *Handler) deleteGRN(w http.ResponseWriter, r *http.Request) {
	h.deleteBy(w, r, "delete grn", h.service.DeleteGRN)
}

func (h *Handler) deleteMelting(w http.ResponseWriter, r *http.Request) {
	h.deleteBy(w, r, "delete melting", h.service.DeleteMelting)
}

func (h *Handler) deleteHeatTreatment(w http.ResponseWriter, r *http.Request) {
	h.deleteBy(w, r, "delete heat treatment", h.service.DeleteHeatTreatment)
}

func (h *Handler) deleteBy(w http.ResponseWriter, r *http.Request, msg string, del func(ctx context.Context, id int64) error) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := del(r.Context(), id); err != nil {
		h.logError(r, msg, err)
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
