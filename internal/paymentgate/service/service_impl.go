package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	billingsummarydomain "github.com/smallbiznis/carebill/internal/billingsummary/domain"
	"github.com/smallbiznis/carebill/internal/paymentgate/domain"
	"github.com/smallbiznis/carebill/internal/paymentgate/gate"
	"go.uber.org/fx"
)

type Params struct {
	fx.In

	SummarySvc billingsummarydomain.Service
}

type Service struct {
	summarySvc billingsummarydomain.Service
}

func New(p Params) domain.Service {
	return &Service{summarySvc: p.SummarySvc}
}

func (s *Service) GetPaymentGates(ctx context.Context, encounterID snowflake.ID) (gate.Gates, error) {
	report, err := s.summarySvc.ComputeSummary(ctx, encounterID)
	if err != nil {
		return gate.Gates{}, err
	}
	return report.Gates, nil
}
