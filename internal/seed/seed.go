// Package seed bootstraps a starter service catalog for fresh installs.
package seed

import (
	"context"
	"errors"

	catalogdomain "github.com/smallbiznis/carebill/internal/catalog/domain"
	"github.com/smallbiznis/carebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DefaultCatalog covers front desk, outpatient and diagnostic basics.
// Amounts are in kobo.
var DefaultCatalog = []catalogdomain.CreateRequest{
	{Code: "REG-001", Name: "Patient Registration", Department: "Front Desk", WorkflowType: "registration", Amount: 200_000},
	{Code: "REG-CARD", Name: "Hospital Card", Department: "Front Desk", WorkflowType: "registration", Amount: 100_000},
	{Code: "GP-CONSULT", Name: "General Consultation", Department: "OPD", WorkflowType: "consultation", Amount: 500_000},
	{Code: "SPEC-CONSULT", Name: "Specialist Consultation", Department: "Specialist Clinic", WorkflowType: "consultation", Amount: 1_000_000},
	{Code: "LAB-FBC", Name: "Full Blood Count", Department: "Laboratory", WorkflowType: "lab_order", Amount: 350_000, RequiresConsultation: true},
	{Code: "LAB-MP", Name: "Malaria Parasite Test", Department: "Laboratory", WorkflowType: "lab_order", Amount: 150_000, RequiresConsultation: true},
	{Code: "XRAY-CHEST", Name: "Chest X-Ray", Department: "Radiology", WorkflowType: "radiology_order", Amount: 800_000, RequiresConsultation: true},
	{Code: "US-ABD", Name: "Abdominal Ultrasound", Department: "Radiology", WorkflowType: "radiology_order", Amount: 1_200_000, RequiresConsultation: true},
}

// EnsureCatalog creates every entry whose code is not yet in the catalog.
// Existing entries are left untouched, so prices edited after bootstrap stay.
func EnsureCatalog(ctx context.Context, catalog catalogdomain.Catalog, entries []catalogdomain.CreateRequest) (int, error) {
	if catalog == nil {
		return 0, errors.New("seed catalog is required")
	}

	created := 0
	for _, entry := range entries {
		_, err := catalog.Lookup(ctx, entry.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, catalogdomain.ErrServiceNotFound) {
			return created, err
		}
		if _, err := catalog.Create(ctx, entry); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// Module seeds the default catalog on start when SEED_CATALOG is set.
var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, catalog catalogdomain.Catalog, log *zap.Logger) {
		if !cfg.SeedCatalog {
			return
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				created, err := EnsureCatalog(ctx, catalog, DefaultCatalog)
				if err != nil {
					return err
				}
				log.Named("seed").Info("catalog seeded", zap.Int("created", created))
				return nil
			},
		})
	}),
)
