package stockreport

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/steelworks-erp/steelworks/internal/platform/httpx"
	"github.com/steelworks-erp/steelworks/internal/shared"
)

// Handler exposes the stock statement.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer PDFRenderer
	now      func() time.Time
}

// NewHandler constructs a Handler instance. renderer may be nil, which
// disables PDF export.
func NewHandler(logger *slog.Logger, service *Service, renderer PDFRenderer) *Handler {
	return &Handler{logger: logger, service: service, renderer: renderer, now: time.Now}
}

// MountRoutes registers report routes; mounted under /stock-reports.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock-statement", h.statement)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "pdf" && h.renderer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "PDF Export Unavailable", "no PDF renderer configured")
		return
	}
	st, err := h.service.Generate(r.Context(), filter)
	if err != nil {
		h.logError(r, "generate stock statement", err)
		httpx.RespondError(w, err)
		return
	}
	filename := fmt.Sprintf("stock-statement-%s-%s", st.Start.Format(time.DateOnly), st.End.Format(time.DateOnly))

	switch format {
	case "", "json":
		httpx.JSON(w, http.StatusOK, st)
	case "xlsx":
		var buf bytes.Buffer
		if err := WriteXLSX(&buf, st); err != nil {
			h.logError(r, "write stock statement xlsx", err)
			httpx.RespondError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	case "pdf":
		pdf, err := RenderPDF(r.Context(), h.renderer, st, h.now())
		if err != nil {
			h.logger.Error("render stock statement pdf", slog.Any("error", err))
			httpx.Problem(w, http.StatusBadGateway, "PDF Render Failed", "")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s.pdf", filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	}
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var errs shared.ValidationErrors
	var f Filter
	var err error
	if f.Start, err = httpx.QueryDate(r, "startDate"); err != nil {
		errs = append(errs, asField(err))
	}
	if f.End, err = httpx.QueryDate(r, "endDate"); err != nil {
		errs = append(errs, asField(err))
	}
	if raw := q.Get("categoryId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			errs = append(errs, shared.Validation("categoryId", "must be a positive integer"))
		} else {
			f.CategoryID = &id
		}
	}
	if raw := q.Get("includeZero"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, shared.Validation("includeZero", "must be true or false"))
		} else {
			f.IncludeZero = &v
		}
	}
	switch q.Get("format") {
	case "", "json", "xlsx", "pdf":
	default:
		errs = append(errs, shared.Validation("format", "must be one of [json xlsx pdf]"))
	}
	if len(errs) > 0 {
		return Filter{}, errs
	}
	return f, nil
}

func asField(err error) *shared.ValidationError {
	var ve *shared.ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return shared.Validation("", "%v", err)
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	if httpx.StatusFor(err) < http.StatusInternalServerError {
		return
	}
	h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
}
