package rbac

import (
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// Policy maps roles to the permissions they grant. Unknown roles grant nothing.
type Policy struct {
	grants map[string]map[string]struct{}
}

// DefaultPolicy returns the built-in role matrix.
func DefaultPolicy() *Policy {
	all := make([]string, 0, len(shared.Resources())*len(shared.Actions()))
	for _, res := range shared.Resources() {
		for _, act := range shared.Actions() {
			all = append(all, shared.Permission(res, act))
		}
	}
	readOnly := make([]string, 0, len(shared.Resources())*2)
	for _, res := range shared.Resources() {
		readOnly = append(readOnly,
			shared.Permission(res, shared.ActionRead),
			shared.Permission(res, shared.ActionList))
	}

	p := &Policy{grants: map[string]map[string]struct{}{}}
	p.Grant(shared.RoleAdmin, all...)
	for _, perm := range all {
		if perm != shared.Permission(shared.ResourceUser, shared.ActionDelete) {
			p.Grant(shared.RoleManager, perm)
		}
	}
	p.Grant(shared.RoleAccountant, readOnly...)
	p.Grant(shared.RoleAccountant, resourcePerms(shared.ResourceInvoice, shared.ResourceQuote,
		shared.ResourceCustomer, shared.ResourceProduct, shared.ResourcePayment)...)
	p.Grant(shared.RoleSales, resourcePerms(shared.ResourceQuote, shared.ResourceCustomer, shared.ResourceProduct)...)
	p.Grant(shared.RoleSales,
		shared.Permission(shared.ResourceInvoice, shared.ActionRead),
		shared.Permission(shared.ResourceInvoice, shared.ActionList),
		shared.Permission(shared.ResourceCompany, shared.ActionRead))
	p.Grant(shared.RoleUser, readOnly...)
	p.Grant(shared.RoleReadonly, readOnly...)
	return p
}

func resourcePerms(resources ...string) []string {
	out := make([]string, 0, len(resources)*len(shared.Actions()))
	for _, res := range resources {
		for _, act := range shared.Actions() {
			out = append(out, shared.Permission(res, act))
		}
	}
	return out
}

// Grant adds permissions to a role.
func (p *Policy) Grant(role string, perms ...string) {
	role = strings.ToLower(strings.TrimSpace(role))
	set, ok := p.grants[role]
	if !ok {
		set = map[string]struct{}{}
		p.grants[role] = set
	}
	for _, perm := range normalizePermissions(perms) {
		set[perm] = struct{}{}
	}
}

// CheckPermission reports whether the actor's role allows action on resource.
func (p *Policy) CheckPermission(actor shared.Actor, resource, action string) bool {
	return p.Has(actor.Role, shared.Permission(resource, action))
}

// Has reports whether role grants perm.
func (p *Policy) Has(role, perm string) bool {
	set, ok := p.grants[strings.ToLower(role)]
	if !ok {
		return false
	}
	_, ok = set[strings.ToLower(perm)]
	return ok
}

// Permissions returns the sorted permissions granted to role.
func (p *Policy) Permissions(role string) []string {
	set := p.grants[strings.ToLower(role)]
	out := make([]string, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}
