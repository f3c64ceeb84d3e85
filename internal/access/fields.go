package access

var fieldWhitelist = map[ResourceType][]string{
	ResourceStock:     {"productId", "productName", "quantity", "category", "status"},
	ResourceReports:   {"summary", "totals", "aggregated"},
	ResourceCustomers: {"name", "totalPurchases", "status"},
	ResourceEmployees: {"name", "position", "department"},
	ResourceSales:     {"total", "date", "status"},
}

// AllowedFieldsFor returns a fresh copy of the partial-access whitelist for rt.
// Settings has no whitelist.
func AllowedFieldsFor(rt ResourceType) (FieldSet, bool) {
	keys, ok := fieldWhitelist[rt]
	if !ok {
		return nil, false
	}
	return NewFieldSet(keys...), true
}
