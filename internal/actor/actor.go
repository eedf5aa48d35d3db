package actor

import (
	"errors"
	"strings"
)

var ErrInvalidActor = errors.New("invalid_actor")

type Role string

const (
	RoleSystem         Role = "system"
	RoleAdmin          Role = "admin"
	RoleCashier        Role = "cashier"
	RoleBillingOfficer Role = "billing_officer"
	RoleAccountant     Role = "accountant"
	RoleClinician      Role = "clinician"
)

// Actor identifies who performs an operation. It is attribution only and
// never feeds a financial decision.
type Actor struct {
	ID   string
	Role Role
}

// System is the actor used by scheduled jobs and gateway intake.
func System() Actor {
	return Actor{ID: "system", Role: RoleSystem}
}

func New(id string, role string) (Actor, error) {
	a := Actor{
		ID:   strings.TrimSpace(id),
		Role: Role(strings.ToLower(strings.TrimSpace(role))),
	}
	if err := a.Validate(); err != nil {
		return Actor{}, err
	}
	return a, nil
}

func (a Actor) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrInvalidActor
	}
	switch a.Role {
	case RoleSystem, RoleAdmin, RoleCashier, RoleBillingOfficer, RoleAccountant, RoleClinician:
		return nil
	default:
		return ErrInvalidActor
	}
}

// Type reports the audit actor type.
func (a Actor) Type() string {
	if a.Role == RoleSystem {
		return "system"
	}
	return "user"
}

func (a Actor) String() string {
	return string(a.Role) + ":" + a.ID
}
