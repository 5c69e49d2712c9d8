package products

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

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

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.With(h.rbac.Require(shared.ResourceProduct, shared.ActionList)).Get("/", h.list)
		r.With(h.rbac.Require(shared.ResourceProduct, shared.ActionCreate)).Post("/", h.create)
		r.With(h.rbac.Require(shared.ResourceProduct, shared.ActionRead)).Get("/{id}", h.show)
		r.With(h.rbac.Require(shared.ResourceProduct, shared.ActionUpdate)).Patch("/{id}", h.update)
		r.With(h.rbac.Require(shared.ResourceProduct, shared.ActionUpdate)).Post("/{id}/stock", h.adjustStock)
		r.With(h.rbac.Require(shared.ResourceProduct, shared.ActionDelete)).Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ListProductsRequest
	if req.Page, err = httpx.QueryInt(r, "page", 1); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Limit, err = httpx.QueryInt(r, "limit", shared.DefaultPerPage); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.Search = strings.TrimSpace(r.URL.Query().Get("search"))
	req.ActiveOnly = r.URL.Query().Get("active") == "true"
	page, err := h.service.List(r.Context(), actor.CompanyID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Create(r.Context(), actor.CompanyID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := httpx.ActorAndID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := httpx.ActorAndID(w, r)
	if !ok {
		return
	}
	var req UpdateProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Update(r.Context(), actor.CompanyID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := httpx.ActorAndID(w, r)
	if !ok {
		return
	}
	var req StockAdjustment
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.AdjustStock(r.Context(), actor.CompanyID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := httpx.ActorAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor.CompanyID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
