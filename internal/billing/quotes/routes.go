package quotes

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotes", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(shared.ResourceQuote, shared.ActionList))
			r.Get("/", h.list)
			r.Get("/stats", h.stats)
		})
		r.With(h.rbac.Require(shared.ResourceQuote, shared.ActionRead)).Get("/{id}", h.show)
		r.With(h.rbac.Require(shared.ResourceQuote, shared.ActionCreate)).Post("/", h.create)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(shared.ResourceQuote, shared.ActionUpdate))
			r.Patch("/{id}", h.update)
			r.Post("/{id}/send", h.transition(h.service.MarkAsSent))
			r.Post("/{id}/view", h.transition(h.service.MarkAsViewed))
			r.Post("/{id}/accept", h.transition(h.service.MarkAsAccepted))
			r.Post("/{id}/reject", h.transition(h.service.MarkAsRejected))
			r.Post("/{id}/cancel", h.transition(h.service.Cancel))
		})
		r.With(h.rbac.RequireAll(
			shared.Permission(shared.ResourceQuote, shared.ActionUpdate),
			shared.Permission(shared.ResourceInvoice, shared.ActionCreate),
		)).Post("/{id}/convert", h.convert)
		r.With(h.rbac.Require(shared.ResourceQuote, shared.ActionDelete)).Delete("/{id}", h.delete)
	})
}
