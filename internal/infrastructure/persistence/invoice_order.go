package persistence

import (
	"strings"

	"gorm.io/gorm/clause"
)

const defaultInvoiceSort = "created_at"

// invoiceSortColumns maps accepted sort keys to invoice columns. Column names
// cannot be bound as parameters, so anything not listed sorts by creation.
var invoiceSortColumns = map[string]string{
	"created_at":  "created_at",
	"updated_at":  "updated_at",
	"issued_at":   "issued_at",
	"number":      "number",
	"client_id":   "client_id",
	"status":      "status",
	"grand_total": "grand_total",
	"total":       "grand_total",
}

// invoiceOrder builds a stable ordering: the requested column, then id in the
// same direction. Direction is descending unless "asc" is asked for.
func invoiceOrder(orderBy, orderDir string) clause.OrderBy {
	column, ok := invoiceSortColumns[strings.ToLower(strings.TrimSpace(orderBy))]
	if !ok {
		column = defaultInvoiceSort
	}
	desc := !strings.EqualFold(strings.TrimSpace(orderDir), "asc")

	return clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: column}, Desc: desc},
		{Column: clause.Column{Name: "id"}, Desc: desc},
	}}
}
