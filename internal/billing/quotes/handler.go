package quotes

import (
	"context"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/invoices"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-billing/internal/rbac"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

type Handler struct {
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{service: service, rbac: rbac}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := parseListRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), actor.CompanyID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func parseListRequest(r *http.Request) (ListQuotesRequest, error) {
	var req ListQuotesRequest
	var err error
	if req.Page, err = httpx.QueryInt(r, "page", 1); err != nil {
		return req, err
	}
	if req.Limit, err = httpx.QueryInt(r, "limit", shared.DefaultPerPage); err != nil {
		return req, err
	}
	if req.CustomerID, err = httpx.QueryInt64(r, "customer_id"); err != nil {
		return req, err
	}
	if req.DateFrom, err = httpx.QueryDate(r, "from"); err != nil {
		return req, err
	}
	if req.DateTo, err = httpx.QueryDate(r, "to"); err != nil {
		return req, err
	}
	req.Search = strings.TrimSpace(r.URL.Query().Get("search"))
	if v := r.URL.Query().Get("status"); v != "" {
		s := Status(v)
		req.Status = &s
	}
	return req, nil
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stats, err := h.service.Stats(r.Context(), actor.CompanyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := httpx.ActorAndID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Create(r.Context(), actor.CompanyID, req, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := httpx.ActorAndID(w, r)
	if !ok {
		return
	}
	var req UpdateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Update(r.Context(), actor.CompanyID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := httpx.ActorAndID(w, r)
	if !ok {
		return
	}
	res, err := h.service.Delete(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

type transitionFunc func(ctx context.Context, companyID, id int64) (*Quote, error)

// transition adapts a lifecycle method with no request body into a handler.
func (h *Handler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := httpx.ActorAndID(w, r)
		if !ok {
			return
		}
		q, err := fn(r.Context(), actor.CompanyID, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, q)
	}
}

type conversionResponse struct {
	Quote   *Quote            `json:"quote"`
	Invoice *invoices.Invoice `json:"invoice"`
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := httpx.ActorAndID(w, r)
	if !ok {
		return
	}
	var data ConversionData
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &data); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	q, inv, err := h.service.ConvertToInvoice(r.Context(), actor.CompanyID, id, data, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, conversionResponse{Quote: q, Invoice: inv})
}
