package health

import "context"

// Pinger is the subset of the store client used for health probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck builds a check that pings the window store backend.
func StoreCheck(p Pinger) Check {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}
