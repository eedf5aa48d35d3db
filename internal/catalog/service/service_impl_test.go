package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/carebill/internal/catalog/domain"
	"github.com/smallbiznis/carebill/internal/catalog/repository"
	"github.com/smallbiznis/carebill/internal/migration/migrationtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCatalogLookupAndToggle(t *testing.T) {
	db := migrationtest.NewDB(t)
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: migrationtest.NewNode(t),
		Repo:  repository.Provide(),
	})
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateRequest{
		Code:       "LAB-FBC",
		Name:       "Full Blood Count",
		Department: "Laboratory",
		Amount:     450_000,
	})
	require.NoError(t, err)
	assert.True(t, created.Active)

	found, err := svc.Lookup(ctx, "LAB-FBC")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, int64(450_000), found.Amount)

	require.NoError(t, svc.SetActive(ctx, created.ID, false))
	found, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, found.Active)

	_, err = svc.Lookup(ctx, "NOPE")
	require.ErrorIs(t, err, domain.ErrServiceNotFound)

	_, err = svc.Create(ctx, domain.CreateRequest{Code: "X", Amount: 0})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}
