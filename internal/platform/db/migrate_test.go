package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, "0001_billing_core", migrations[0].Version)
	for _, table := range []string{"company_settings", "invoices", "invoice_items", "quotes", "quote_items", "payments"} {
		assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Contains(t, migrations[0].SQL, "UNIQUE (company_id, invoice_number)")
	assert.Contains(t, migrations[0].SQL, "ON DELETE RESTRICT")
}

func TestIsUniqueViolation(t *testing.T) {
	_, ok := IsUniqueViolation(assert.AnError)
	assert.False(t, ok)

	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "products_company_id_sku_key"})
	name, ok := IsUniqueViolation(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "products_company_id_sku_key", name)
	assert.False(t, InTransaction(context.Background()))
}
