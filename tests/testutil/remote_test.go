package testutil

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/erp/invoicing/internal/infrastructure/clientregistry"
	"github.com/erp/invoicing/internal/infrastructure/taxservice"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClientRegistry(t *testing.T) {
	registry := NewFakeClientRegistry(t, map[int64]bool{7: true, 8: false})
	client := clientregistry.NewHTTPClient(registry.URL())
	ctx := context.Background()

	lookup, err := client.GetClientStatus(ctx, invoicing.ClientID(7))
	require.NoError(t, err)
	assert.Equal(t, invoicing.ClientLookup{Exists: true, Active: true}, lookup)

	lookup, err = client.GetClientStatus(ctx, invoicing.ClientID(8))
	require.NoError(t, err)
	assert.Equal(t, invoicing.ClientLookup{Exists: true, Active: false}, lookup)

	lookup, err = client.GetClientStatus(ctx, invoicing.ClientID(9))
	require.NoError(t, err)
	assert.False(t, lookup.Exists)

	registry.FailWith(http.StatusInternalServerError)
	_, err = client.GetClientStatus(ctx, invoicing.ClientID(7))
	assert.True(t, errors.Is(err, clientregistry.ErrUnexpectedResponse))

	assert.Equal(t, int64(4), registry.Calls())
}

func TestFakeTaxService(t *testing.T) {
	taxes := NewFakeTaxService(t, map[string]string{"IVA19": "0.19"})
	client := taxservice.NewHTTPClient(taxes.URL())

	quotes, err := client.ComputeTax(context.Background(), []invoicing.ItemSignature{
		{Description: "Laptop", Quantity: 1, UnitPrice: valueobject.NewMoneyCOP(decimal.NewFromInt(2000)), TaxCode: "IVA19"},
		{Description: "Book", Quantity: 2, UnitPrice: valueobject.NewMoneyCOP(decimal.NewFromInt(50)), TaxCode: "EXENTO"},
	})

	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "380.00", quotes[0].TaxAmount.Amount().StringFixed(2))
	assert.True(t, quotes[1].TaxAmount.Amount().IsZero())
	assert.Equal(t, int64(1), taxes.Calls())
}
