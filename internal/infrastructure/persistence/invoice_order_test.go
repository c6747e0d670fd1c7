package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceOrder(t *testing.T) {
	tests := []struct {
		name     string
		orderBy  string
		orderDir string
		column   string
		desc     bool
	}{
		{"defaults", "", "", "created_at", true},
		{"ascending", "number", "asc", "number", false},
		{"padded and mixed case", " Number ", " ASC ", "number", false},
		{"alias", "total", "desc", "grand_total", true},
		{"unlisted column", "void_reason", "asc", "created_at", false},
		{"injection in column", "id; DELETE FROM invoices", "asc", "created_at", false},
		{"injection in direction", "number", "ASC; DROP TABLE invoices;--", "number", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := invoiceOrder(tt.orderBy, tt.orderDir)

			if assert.Len(t, order.Columns, 2) {
				assert.Equal(t, tt.column, order.Columns[0].Column.Name)
				assert.Equal(t, tt.desc, order.Columns[0].Desc)
				assert.Equal(t, "id", order.Columns[1].Column.Name)
				assert.Equal(t, tt.desc, order.Columns[1].Desc)
			}
		})
	}
}
