package core

import (
	"fmt"

	"RwaLedger/internal/ledger"
)

// CallContext mirrors the host execution environment for one call. The
// engine never reads the wall clock: Now, TxHash, and Block are supplied
// by the transport layer.
type CallContext struct {
	Caller ledger.Account
	Now    int64 // Unix ms
	TxHash string
	Block  uint64
}

// Role is the closed authorization set. Every entry point performs
// exactly one role check against it.
type Role int

const (
	// RoleAny admits every caller.
	RoleAny Role = iota
	// RoleAdmin admits the owner and configured admin accounts.
	RoleAdmin
	// RoleOwner admits the owner only.
	RoleOwner
)

// authorize is the single capability check per entry point.
func (e *Engine) authorize(cc CallContext, role Role) error {
	switch role {
	case RoleAny:
		return nil
	case RoleAdmin:
		if cc.Caller == e.owner || e.admins[cc.Caller] {
			return nil
		}
		return fmt.Errorf("caller %s: %w", cc.Caller, ledger.ErrNotAdmin)
	case RoleOwner:
		if cc.Caller == e.owner {
			return nil
		}
		return fmt.Errorf("caller %s: %w", cc.Caller, ledger.ErrNotOwner)
	default:
		return fmt.Errorf("unknown role %d", role)
	}
}
