package actor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNormalizesRole(t *testing.T) {
	a, err := New(" 42 ", " Cashier ")
	require.NoError(t, err)
	assert.Equal(t, "42", a.ID)
	assert.Equal(t, RoleCashier, a.Role)
	assert.Equal(t, "user", a.Type())
}

func TestNewRejectsUnknownRole(t *testing.T) {
	_, err := New("42", "janitor")
	assert.ErrorIs(t, err, ErrInvalidActor)

	_, err = New("", "admin")
	assert.ErrorIs(t, err, ErrInvalidActor)
}

func TestSystemActor(t *testing.T) {
	a := System()
	require.NoError(t, a.Validate())
	assert.Equal(t, "system", a.Type())
}
