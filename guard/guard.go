// Package guard is the client side of staff access control: it resolves
// the locally stored token against the staff/me endpoint and decides
// whether a dashboard page may be shown, using the same permission
// taxonomy as the API.
package guard

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/clock"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/permissions"
)

type State string

const (
	StateUnauthenticated    State = "unauthenticated"
	StatePending            State = "pending-verification"
	StateAuthorized         State = "authorized"
	StateDenied             State = "denied"
	StateNetworkUnavailable State = "network-unavailable"
)

const (
	DefaultLoginPage      = "admin.html"
	DefaultRedirectOnDeny = "dashboard.html"
	// DenyRedirectDelay is how long the denial message stays up before
	// the redirect.
	DenyRedirectDelay = 700 * time.Millisecond
	// DefaultRetryDelay separates the first failed staff/me call from the
	// single retry.
	DefaultRetryDelay = time.Second

	msgUnreachable = "Cannot reach the backend. Check your connection and try again."
)

// Options describe one page's access requirements.
type Options struct {
	AllowAnonymous bool
	LoginPage      string
	RedirectOnDeny string
	// Role, when set, must equal the caller's role.
	Role          string
	DisallowRoles []string
	// AnyOfPermissions, when non-empty, must intersect the caller's
	// permissions. Admins bypass it.
	AnyOfPermissions []string
}

// Decision is the terminal outcome of Require. Proceed is true when the
// page may render.
type Decision struct {
	State         State
	Proceed       bool
	User          *User
	Redirect      string
	Message       string
	RedirectAfter time.Duration
}

// MeFetcher resolves a token to its staff identity. *Client implements it.
type MeFetcher interface {
	FetchMe(ctx context.Context, token string) (*User, error)
}

type Guard struct {
	me         MeFetcher
	storage    TokenStorage
	clock      clock.Clock
	retryDelay time.Duration
	log        logging.Logger
	observe    func(State)
}

type Option func(*Guard)

func WithClock(c clock.Clock) Option { return func(g *Guard) { g.clock = c } }

func WithRetryDelay(d time.Duration) Option { return func(g *Guard) { g.retryDelay = d } }

func WithLogger(l logging.Logger) Option { return func(g *Guard) { g.log = l } }

// WithObserver registers fn to be called on every state transition.
func WithObserver(fn func(State)) Option { return func(g *Guard) { g.observe = fn } }

func New(me MeFetcher, storage TokenStorage, opts ...Option) *Guard {
	g := &Guard{
		me:         me,
		storage:    storage,
		clock:      clock.Real(),
		retryDelay: DefaultRetryDelay,
		log:        logging.Discard(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Guard) enter(s State) {
	if g.observe != nil {
		g.observe(s)
	}
}

// Require runs the access check for one page. The returned error is
// non-nil only when local storage fails or ctx ends.
func (g *Guard) Require(ctx context.Context, opts Options) (Decision, error) {
	login := opts.LoginPage
	if login == "" {
		login = DefaultLoginPage
	}
	fallback := opts.RedirectOnDeny
	if fallback == "" {
		fallback = DefaultRedirectOnDeny
	}

	sess, err := g.storage.Load(ctx)
	if err != nil {
		return Decision{}, err
	}
	if sess.Token == "" {
		g.enter(StateUnauthenticated)
		if opts.AllowAnonymous {
			return Decision{State: StateUnauthenticated, Proceed: true}, nil
		}
		return Decision{State: StateUnauthenticated, Redirect: login}, nil
	}

	g.enter(StatePending)
	user, err := g.fetchWithRetry(ctx, sess.Token)
	switch {
	case err == nil:
	case errors.Is(err, ErrNetworkUnavailable):
		g.enter(StateNetworkUnavailable)
		g.log.Warn(ctx, "staff/me unreachable", "err", err)
		if opts.AllowAnonymous {
			return Decision{State: StateNetworkUnavailable, Proceed: true}, nil
		}
		return Decision{State: StateNetworkUnavailable, Message: msgUnreachable}, nil
	case errors.Is(err, ErrInvalidToken):
		g.enter(StateUnauthenticated)
		if err := g.storage.Clear(ctx); err != nil {
			return Decision{}, err
		}
		return Decision{State: StateUnauthenticated, Redirect: login}, nil
	default:
		return Decision{}, err
	}

	sess.User = user
	sess.LoggedIn = true
	if err := g.storage.Save(ctx, *sess); err != nil {
		g.log.Warn(ctx, "cache staff identity", "err", err)
	}

	if msg, ok := gate(user, opts); !ok {
		g.enter(StateDenied)
		return Decision{State: StateDenied, User: user, Message: msg, Redirect: fallback, RedirectAfter: DenyRedirectDelay}, nil
	}
	g.enter(StateAuthorized)
	return Decision{State: StateAuthorized, Proceed: true, User: user}, nil
}

func (g *Guard) fetchWithRetry(ctx context.Context, token string) (*User, error) {
	user, err := g.me.FetchMe(ctx, token)
	if err == nil || !errors.Is(err, ErrNetworkUnavailable) {
		return user, err
	}
	g.log.Info(ctx, "staff/me failed, retrying once", "delay", g.retryDelay)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.clock.After(g.retryDelay):
	}
	return g.me.FetchMe(ctx, token)
}

// gate applies the role and permission requirements in order: disallowed
// roles, required role, then permissions.
func gate(u *User, opts Options) (string, bool) {
	role := strings.ToLower(strings.TrimSpace(u.Role))
	for _, r := range opts.DisallowRoles {
		if strings.EqualFold(r, role) {
			return "You are not allowed to access this page.", false
		}
	}
	if opts.Role != "" && !strings.EqualFold(opts.Role, role) {
		if strings.EqualFold(opts.Role, "admin") {
			return "Admin access required.", false
		}
		return "This page requires the " + strings.ToLower(opts.Role) + " role.", false
	}
	if len(opts.AnyOfPermissions) > 0 && role != "admin" &&
		!permissions.HasAny(u.Permissions, opts.AnyOfPermissions...) {
		return "You do not have permission to use this feature.", false
	}
	return "", true
}
