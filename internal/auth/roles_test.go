package auth

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrabond/core/internal/domain"
)

func TestGrantRevoke(t *testing.T) {
	r := New()
	oracle := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	require.Error(t, r.Require(oracle, RoleOracle))

	r.Grant(oracle, RoleOracle)
	assert.NoError(t, r.Require(oracle, RoleOracle))
	assert.True(t, r.Has(oracle, RoleOracle))
	assert.False(t, r.Has(oracle, RoleOperator))

	r.Revoke(oracle, RoleOracle)
	err := r.Require(oracle, RoleOracle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestRequireErrorIsUnauthorized(t *testing.T) {
	r := New()
	err := r.Require(common.Address{}, RoleOperator)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}
