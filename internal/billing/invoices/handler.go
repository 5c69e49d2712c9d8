package invoices

import (
	"net/http"
	"strings"

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

func parseListRequest(r *http.Request) (ListInvoicesRequest, error) {
	var req ListInvoicesRequest
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
	q := r.URL.Query()
	req.Search = strings.TrimSpace(q.Get("search"))
	if v := q.Get("status"); v != "" {
		s := Status(v)
		req.Status = &s
	}
	if v := q.Get("payment_status"); v != "" {
		s := PaymentStatus(v)
		req.PaymentStatus = &s
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
	inv, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Create(r.Context(), actor.CompanyID, req, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := httpx.ActorAndID(w, r)
	if !ok {
		return
	}
	var req UpdateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Update(r.Context(), actor.CompanyID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
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

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := httpx.ActorAndID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.MarkAsSent(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := httpx.ActorAndID(w, r)
	if !ok {
		return
	}
	var data *PaymentData
	if r.ContentLength != 0 {
		data = &PaymentData{}
		if err := httpx.DecodeJSON(r, data); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	inv, err := h.service.MarkAsPaid(r.Context(), actor.CompanyID, id, data, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := httpx.ActorAndID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Cancel(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req BulkActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.BulkAction(r.Context(), actor.CompanyID, req, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
