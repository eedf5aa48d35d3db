package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/paymentgate/gate"
)

type Service interface {
	GetPaymentGates(ctx context.Context, encounterID snowflake.ID) (gate.Gates, error)
}
