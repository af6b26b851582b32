// Package auth is the explicit access-control component. Every write entry
// point checks capabilities here instead of relying on ambient flags.
package auth

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/infrabond/core/internal/domain"
)

// Role is a capability grantable to an account.
type Role string

const (
	// RoleOracle may update project status, verify milestones, fail
	// projects, and resolve markets early.
	RoleOracle Role = "oracle"

	// RoleOperator may create bonds, open markets, backstop market
	// collateral, mirror collateral deposits, and manage roles.
	RoleOperator Role = "operator"
)

// Roles maps account addresses to capability sets.
type Roles struct {
	mu     sync.RWMutex
	grants map[common.Address]map[Role]bool
}

// New creates an empty role registry.
func New() *Roles {
	return &Roles{grants: make(map[common.Address]map[Role]bool)}
}

// Grant adds a role to an account. Idempotent.
func (r *Roles) Grant(addr common.Address, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grants[addr] == nil {
		r.grants[addr] = make(map[Role]bool)
	}
	r.grants[addr][role] = true
}

// Revoke removes a role from an account. Idempotent.
func (r *Roles) Revoke(addr common.Address, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set := r.grants[addr]; set != nil {
		delete(set, role)
	}
}

// Has reports whether the account holds the role.
func (r *Roles) Has(addr common.Address, role Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grants[addr][role]
}

// Require returns ErrUnauthorized when the account lacks the role. The
// error names the missing capability so operators can distinguish
// authorization failures from domain failures.
func (r *Roles) Require(addr common.Address, role Role) error {
	if !r.Has(addr, role) {
		return fmt.Errorf("account %s lacks %s role: %w", addr.Hex(), role, domain.ErrUnauthorized)
	}
	return nil
}
