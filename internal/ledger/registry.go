package ledger

import "fmt"

// UserRegistry owns all User records. Users are created implicitly on
// first deposit and never deleted.
type UserRegistry struct {
	users map[Account]*User
}

func NewUserRegistry() *UserRegistry {
	return &UserRegistry{
		users: make(map[Account]*User),
	}
}

// Get returns the user for an account, or nil if the account has never
// touched the ledger.
func (ur *UserRegistry) Get(account Account) *User {
	return ur.users[account]
}

// RegisterOrTouch returns the existing user, or creates one with zero
// balances and is_registered=true. The second return reports whether a
// new user was created.
func (ur *UserRegistry) RegisterOrTouch(account Account, now int64) (*User, bool) {
	if u, ok := ur.users[account]; ok {
		return u, false
	}
	u := &User{
		Account:      account,
		IsRegistered: true,
		RegisteredAt: now,
	}
	ur.users[account] = u
	return u, true
}

// SetRegistration flips the approval flag for an existing user.
func (ur *UserRegistry) SetRegistration(account Account, approved bool) error {
	u, ok := ur.users[account]
	if !ok {
		return fmt.Errorf("set registration for %s: %w", account, ErrUserNotFound)
	}
	u.IsRegistered = approved
	return nil
}

// Len returns the number of known users.
func (ur *UserRegistry) Len() int {
	return len(ur.users)
}

// Snapshot returns copies of all users for snapshot serialization. The
// returned records stay stable while live state keeps mutating.
func (ur *UserRegistry) Snapshot() []*User {
	out := make([]*User, 0, len(ur.users))
	for _, u := range ur.users {
		c := *u
		out = append(out, &c)
	}
	return out
}

// Restore replaces registry contents from a snapshot.
func (ur *UserRegistry) Restore(users []*User) {
	ur.users = make(map[Account]*User, len(users))
	for _, u := range users {
		ur.users[u.Account] = u
	}
}
