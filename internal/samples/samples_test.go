package samples

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	catalog, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"fruits", "orders"}, catalog.Keys())
	assert.Len(t, catalog.All(), 2)
}

func TestGetOrders(t *testing.T) {
	catalog, err := Load()
	require.NoError(t, err)

	orders, ok := catalog.Get("orders")
	require.True(t, ok)
	assert.Equal(t, "Orders", orders.Name)
	assert.Contains(t, orders.Script, "CREATE TABLE products")
	assert.Contains(t, orders.Script, "REFERENCES customers(id)")

	require.NotNil(t, orders.Presets)
	assert.Contains(t, orders.Presets.Query, "SELECT * FROM products")
	assert.True(t, strings.HasPrefix(orders.Presets.Rego, "package main"))
	assert.Equal(t, "Emma Clark", orders.Presets.Input["user"])
}

func TestGetUnknownKey(t *testing.T) {
	catalog, err := Load()
	require.NoError(t, err)

	_, ok := catalog.Get("nope")
	assert.False(t, ok)
}
