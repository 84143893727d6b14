package preflight

import (
	"context"
	"fmt"
	"time"
)

// Pinger is satisfied by the session store.
type Pinger interface {
	Ping(ctx context.Context) error
	Backend() string
	Location() string
}

// CheckDatabase verifies that the session store answers within two seconds.
func CheckDatabase(ctx context.Context, db Pinger) Result {
	const name = "Session store"
	if db == nil {
		return Result{Name: name, Detail: "not opened"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s %s (error: %v)", db.Backend(), db.Location(), err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s %s", db.Backend(), db.Location())}
}
