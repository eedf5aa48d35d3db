package adapters

import (
	"testing"

	"github.com/smallbiznis/carebill/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	registry := NewDefaultRegistry()
	assert.Equal(t, []string{"flutterwave", "paystack"}, registry.Providers())
	assert.True(t, registry.ProviderExists(" Paystack "))
	assert.False(t, registry.ProviderExists("stripe"))

	_, err := registry.NewAdapter("stripe", domain.AdapterConfig{})
	require.ErrorIs(t, err, domain.ErrProviderNotFound)

	adapter, err := registry.NewAdapter("paystack", domain.AdapterConfig{Config: map[string]any{"secret_key": "sk"}})
	require.NoError(t, err)
	assert.NotNil(t, adapter)
}
