package shared

// Resources guarded by the permission policy.
const (
	ResourceCompany  = "company"
	ResourceCustomer = "customer"
	ResourceProduct  = "product"
	ResourceInvoice  = "invoice"
	ResourceQuote    = "quote"
	ResourcePayment  = "payment"
	ResourceUser     = "user"
)

// Actions checked against a resource.
const (
	ActionRead   = "read"
	ActionList   = "list"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Permission formats a resource/action pair, e.g. "invoice.update".
func Permission(resource, action string) string {
	return resource + "." + action
}

// Resources lists every guarded resource.
func Resources() []string {
	return []string{
		ResourceCompany,
		ResourceCustomer,
		ResourceProduct,
		ResourceInvoice,
		ResourceQuote,
		ResourcePayment,
		ResourceUser,
	}
}

// Actions lists every action.
func Actions() []string {
	return []string{ActionRead, ActionList, ActionCreate, ActionUpdate, ActionDelete}
}
