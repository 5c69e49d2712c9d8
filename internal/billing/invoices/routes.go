package invoices

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(shared.ResourceInvoice, shared.ActionList))
			r.Get("/", h.list)
			r.Get("/stats", h.stats)
		})
		r.With(h.rbac.Require(shared.ResourceInvoice, shared.ActionRead)).Get("/{id}", h.show)
		r.With(h.rbac.Require(shared.ResourceInvoice, shared.ActionCreate)).Post("/", h.create)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(shared.ResourceInvoice, shared.ActionUpdate))
			r.Patch("/{id}", h.update)
			r.Post("/{id}/send", h.send)
			r.Post("/{id}/cancel", h.cancel)
			r.Post("/bulk", h.bulk)
		})
		r.With(h.rbac.RequireAll(
			shared.Permission(shared.ResourceInvoice, shared.ActionUpdate),
			shared.Permission(shared.ResourcePayment, shared.ActionCreate),
		)).Post("/{id}/pay", h.markPaid)
		r.With(h.rbac.Require(shared.ResourceInvoice, shared.ActionDelete)).Delete("/{id}", h.delete)
	})
}
