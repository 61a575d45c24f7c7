package ledger

// WindowMillis is the daily rate-limit window length in Unix milliseconds.
const WindowMillis = 86_400_000

// Window is one account's rolling withdrawal accounting period.
type Window struct {
	Account     Account `json:"account"`
	WindowStart int64   `json:"window_start"`
	Accumulated uint64  `json:"accumulated"`
}

// RateLimiter tracks per-account daily withdrawal volume. Checks are
// validate-then-commit: Prospective computes the would-be window without
// mutating, Commit writes it only after the limit check passed.
type RateLimiter struct {
	windows map[Account]Window
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[Account]Window),
	}
}

// Prospective returns the window as it would look after adding amount at
// time now. The window resets when now has moved past window_start plus
// one day; otherwise the amount accumulates.
func (rl *RateLimiter) Prospective(account Account, amount uint64, now int64) Window {
	w, ok := rl.windows[account]
	if !ok || now > w.WindowStart+WindowMillis {
		return Window{Account: account, WindowStart: now, Accumulated: amount}
	}
	w.Accumulated += amount
	return w
}

// Commit stores a window previously returned by Prospective.
func (rl *RateLimiter) Commit(w Window) {
	rl.windows[w.Account] = w
}

// Get returns the stored window for an account.
func (rl *RateLimiter) Get(account Account) (Window, bool) {
	w, ok := rl.windows[account]
	return w, ok
}

// Snapshot returns all windows for snapshot serialization.
func (rl *RateLimiter) Snapshot() []Window {
	out := make([]Window, 0, len(rl.windows))
	for _, w := range rl.windows {
		out = append(out, w)
	}
	return out
}

// Restore replaces limiter contents from a snapshot.
func (rl *RateLimiter) Restore(windows []Window) {
	rl.windows = make(map[Account]Window, len(windows))
	for _, w := range windows {
		rl.windows[w.Account] = w
	}
}
