// Package guard gates role-restricted views on token liveness and role
// match. The token's claims are decoded without signature verification:
// the backend issued the token and the client only inspects its claimed
// expiry, so a malformed token is handled exactly like an expired one.
package guard

import (
	"context"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"classboard/internal/token"
	"classboard/pkg/types"
)

// Decision is the outcome of a gate check.
type Decision int

const (
	// Allow grants access to the requested view.
	Allow Decision = iota
	// RedirectLogin sends the user to the login entry point; the session
	// has been evicted.
	RedirectLogin
	// RedirectHome sends the user to the home entry point; the session is
	// live but the role does not match the route.
	RedirectHome
)

// Redirect returns the route a non-Allow decision points at.
func (d Decision) Redirect() string {
	switch d {
	case RedirectLogin:
		return "/login"
	case RedirectHome:
		return "/"
	default:
		return ""
	}
}

// Guard evaluates session state before a role-restricted view renders.
type Guard struct {
	store  token.Store
	parser *jwt.Parser
	now    func() time.Time
}

// New creates a guard over the given session store.
func New(store token.Store) *Guard {
	return &Guard{
		store:  store,
		parser: jwt.NewParser(),
		now:    time.Now,
	}
}

// SetClock overrides the guard's notion of now. Test hook.
func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

// Check gates access to a view restricted to the given role. Missing,
// expired, and undecodable tokens all evict the session and redirect to
// login; a live session with the wrong role redirects home.
func (g *Guard) Check(required types.Role) Decision {
	tok, err := g.store.Token()
	if err != nil || tok == "" {
		return RedirectLogin
	}

	if !g.claimsAlive(tok) {
		g.evict()
		return RedirectLogin
	}

	role, err := g.store.Role()
	if err != nil || role != required {
		return RedirectHome
	}

	return Allow
}

// claimsAlive decodes the token's claims segment and compares the exp
// claim (seconds since epoch) against now in milliseconds.
func (g *Guard) claimsAlive(tok string) bool {
	parsed, _, err := g.parser.ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return false
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return exp.Time.UnixMilli() > g.now().UnixMilli()
}

func (g *Guard) evict() {
	if err := g.store.Clear(); err != nil {
		log.Printf("guard: failed to evict session: %v", err)
	}
}

// Sweep re-runs the check on a fixed interval while a protected view is
// mounted, independent of the store's lazy read-time expiry. It returns
// when ctx is cancelled or after the first non-Allow decision, which is
// reported through onEvict.
func (g *Guard) Sweep(ctx context.Context, required types.Role, interval time.Duration, onEvict func(Decision)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if d := g.Check(required); d != Allow {
				log.Printf("guard: session no longer valid, redirecting to %s", d.Redirect())
				if onEvict != nil {
					onEvict(d)
				}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
