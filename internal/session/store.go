package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"noorstitching.org/internal/audit"
	"noorstitching.org/internal/backend"
	"noorstitching.org/internal/obs"
)

// bootGeneration is the generation a store starts in. Bootstrap commits only
// while no Login or Logout has happened since.
const bootGeneration = 0

const defaultLeeway = 10 * time.Second

// Store holds the session of one client.
type Store struct {
	api      Backend
	tokens   TokenStore
	notifier Notifier
	fallback Navigator
	now      func() time.Time
	leeway   time.Duration

	bootOnce sync.Once
	bootDone chan struct{}

	// tokMu serialises token writes with generation changes so a superseded
	// operation can never persist tokens after a newer one.
	tokMu sync.Mutex

	mu   sync.RWMutex
	gen  uint64
	snap Snapshot
	feed *Feed
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets where login notifications go.
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithFallbackNavigator is used when the calling context carries no
// navigator, e.g. in a terminal client.
func WithFallbackNavigator(n Navigator) Option {
	return func(s *Store) { s.fallback = n }
}

// WithClock overrides time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a store in the loading state. Call Bootstrap once.
func New(api Backend, tokens TokenStore, opts ...Option) *Store {
	s := &Store{
		api:      api,
		tokens:   tokens,
		notifier: discardNotifier{},
		now:      time.Now,
		leeway:   defaultLeeway,
		bootDone: make(chan struct{}),
		snap:     Snapshot{Loading: true},
		feed:     NewFeed(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns a copy of the session state.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{User: cloneUser(s.snap.User), Loading: s.snap.Loading}
}

// Ready is closed once Bootstrap has finished.
func (s *Store) Ready() <-chan struct{} { return s.bootDone }

// Subscribe streams the current snapshot followed by every change until ctx
// ends.
func (s *Store) Subscribe(ctx context.Context) <-chan Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed.SubscribeFrom(ctx, Snapshot{User: cloneUser(s.snap.User), Loading: s.snap.Loading})
}

// Subscribers reports how many feeds are open.
func (s *Store) Subscribers() int { return s.feed.Len() }

// Bootstrap restores a persisted session. It runs once per store; later and
// concurrent calls wait for the first one. It always leaves Loading false.
func (s *Store) Bootstrap(ctx context.Context) {
	s.bootOnce.Do(func() {
		defer close(s.bootDone)
		outcome := s.bootstrap(ctx)
		s.mu.Lock()
		s.snap.Loading = false
		s.publishLocked()
		s.mu.Unlock()
		obs.ObserveBootstrap(outcome)
		_ = audit.LogEvent(ctx, "session.bootstrap", map[string]any{"outcome": outcome})
	})
}

func (s *Store) bootstrap(ctx context.Context) string {
	pair, err := s.tokens.LoadTokens(ctx)
	if err != nil {
		obs.Logger().Warn("session_tokens_load_failed", zap.Error(err))
		return "anonymous"
	}
	if pair.Access == "" {
		return "anonymous"
	}
	if expired(pair.Access, s.now(), s.leeway) {
		fresh, err := s.refresh(ctx, bootGeneration, pair)
		if err != nil {
			if errors.Is(err, ErrSuperseded) {
				return "stale"
			}
			s.logoutIf(ctx, bootGeneration)
			return "expired"
		}
		pair = fresh
	}
	user, err := s.fetchProfile(backend.WithToken(ctx, pair.Access))
	if err != nil {
		obs.Logger().Debug("session_restore_failed", zap.Error(err))
		if !s.logoutIf(ctx, bootGeneration) {
			return "stale"
		}
		return "expired"
	}
	if err := s.commit(ctx, bootGeneration, nil, &user); err != nil {
		obs.ObserveStale("session")
		return "stale"
	}
	return "restored"
}

// Login exchanges credentials for tokens and loads the profile. On failure
// the user and tokens are left as they were, no navigation happens and the
// returned error is a *LoginError unless the attempt was superseded.
func (s *Store) Login(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, s.loginFailed(ctx, username, ErrMissingCredentials, "Username and password are required")
	}
	gen := s.bump()

	pair, err := s.api.ObtainToken(ctx, username, password)
	if err != nil {
		return nil, s.loginFailed(ctx, username, err, backend.Message(err, DefaultLoginError))
	}
	user, err := s.fetchProfile(backend.WithToken(ctx, pair.Access))
	if err != nil {
		return nil, s.loginFailed(ctx, username, err, backend.Message(err, DefaultLoginError))
	}
	if err := s.commit(ctx, gen, &pair, &user); err != nil {
		if errors.Is(err, ErrSuperseded) {
			obs.ObserveStale("session")
			return nil, err
		}
		return nil, s.loginFailed(ctx, username, err, "Could not start the session, please try again")
	}

	obs.ObserveLogin("success")
	actx := audit.WithActor(ctx, strconv.FormatInt(user.ID, 10))
	_ = audit.LogEvent(actx, "session.login", map[string]any{
		"username": user.Username,
		"role":     string(RoleOf(&user)),
	})
	s.notifier.Success("Welcome back, " + user.FullName() + "!")
	s.navigate(ctx, LoginDestination(&user))
	return cloneUser(&user), nil
}

func (s *Store) loginFailed(ctx context.Context, username string, err error, msg string) error {
	obs.ObserveLogin("failure")
	_ = audit.LogEvent(ctx, "session.login_failed", map[string]any{
		"username": username,
		"reason":   err.Error(),
	})
	s.notifier.Error(msg)
	return &LoginError{Message: msg, Err: err}
}

// Logout clears the tokens and the user and navigates to the login page. It
// is safe to call at any time, any number of times.
func (s *Store) Logout(ctx context.Context) {
	s.tokMu.Lock()
	s.mu.Lock()
	s.gen++
	had := s.snap.User
	s.snap.User = nil
	s.publishLocked()
	s.mu.Unlock()
	err := s.tokens.ClearTokens(ctx)
	s.tokMu.Unlock()

	if err != nil {
		obs.Logger().Warn("session_tokens_clear_failed", zap.Error(err))
	}
	if had != nil {
		actx := audit.WithActor(ctx, strconv.FormatInt(had.ID, 10))
		_ = audit.LogEvent(actx, "session.logout", nil)
	}
	s.navigate(ctx, LoginPath)
}

// logoutIf performs a logout on behalf of an operation started in gen. It
// does nothing when a newer operation has taken over.
func (s *Store) logoutIf(ctx context.Context, gen uint64) bool {
	s.tokMu.Lock()
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.tokMu.Unlock()
		return false
	}
	s.gen++
	s.snap.User = nil
	s.publishLocked()
	s.mu.Unlock()
	err := s.tokens.ClearTokens(ctx)
	s.tokMu.Unlock()
	if err != nil {
		obs.Logger().Warn("session_tokens_clear_failed", zap.Error(err))
	}
	s.navigate(ctx, LoginPath)
	return true
}

// EnsureFresh returns a usable token pair, refreshing an expired access
// token. A rejected refresh ends the session.
func (s *Store) EnsureFresh(ctx context.Context) (backend.TokenPair, error) {
	pair, err := s.tokens.LoadTokens(ctx)
	if err != nil {
		return backend.TokenPair{}, err
	}
	if pair.Access == "" {
		return backend.TokenPair{}, ErrNoSession
	}
	if !expired(pair.Access, s.now(), s.leeway) {
		return pair, nil
	}
	gen := s.generation()
	fresh, err := s.refresh(ctx, gen, pair)
	if err != nil && errors.Is(err, ErrSessionExpired) {
		s.logoutIf(ctx, gen)
	}
	return fresh, err
}

// Authorize returns ctx carrying the access token of the logged-in user.
func (s *Store) Authorize(ctx context.Context) (context.Context, error) {
	snap := s.Current()
	if snap.User == nil {
		return ctx, ErrNoSession
	}
	pair, err := s.EnsureFresh(ctx)
	if err != nil {
		return ctx, err
	}
	ctx = audit.WithActor(ctx, strconv.FormatInt(snap.User.ID, 10))
	return backend.WithToken(ctx, pair.Access), nil
}

func (s *Store) refresh(ctx context.Context, gen uint64, pair backend.TokenPair) (backend.TokenPair, error) {
	if pair.Refresh == "" {
		return backend.TokenPair{}, ErrSessionExpired
	}
	fresh, err := s.api.RefreshToken(ctx, pair.Refresh)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) || errors.Is(err, backend.ErrValidation) {
			return backend.TokenPair{}, errors.Join(ErrSessionExpired, err)
		}
		return backend.TokenPair{}, err
	}
	if err := s.commit(ctx, gen, &fresh, nil); err != nil {
		return backend.TokenPair{}, err
	}
	return fresh, nil
}

// fetchProfile loads the current user. Student details are best effort.
func (s *Store) fetchProfile(ctx context.Context) (User, error) {
	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		return User{}, err
	}
	if !user.IsStaff {
		details, err := s.api.StudentDetails(ctx)
		if err != nil {
			obs.Logger().Debug("session_student_details_unavailable", zap.Error(err))
		} else {
			user.StudentDetails = &details
		}
	}
	return user, nil
}

func (s *Store) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

func (s *Store) bump() uint64 {
	s.tokMu.Lock()
	defer s.tokMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

// commit applies pair and/or user when gen is still current. Tokens are
// written before the user becomes visible.
func (s *Store) commit(ctx context.Context, gen uint64, pair *backend.TokenPair, user *User) error {
	s.tokMu.Lock()
	defer s.tokMu.Unlock()
	if s.generation() != gen {
		return ErrSuperseded
	}
	if pair != nil {
		if err := s.tokens.SaveTokens(ctx, *pair); err != nil {
			return fmt.Errorf("session: save tokens: %w", err)
		}
	}
	if user != nil {
		s.mu.Lock()
		s.snap.User = cloneUser(user)
		s.publishLocked()
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) publishLocked() {
	s.feed.Publish(Snapshot{User: cloneUser(s.snap.User), Loading: s.snap.Loading})
}

func (s *Store) navigate(ctx context.Context, path string) {
	if nav := navigatorFrom(ctx); nav != nil {
		nav.Navigate(path)
		return
	}
	if s.fallback != nil {
		s.fallback.Navigate(path)
	}
}
