package session

import (
	"context"

	"noorstitching.org/internal/backend"
)

// Backend is the slice of the REST client the store talks to.
type Backend interface {
	ObtainToken(ctx context.Context, username, password string) (backend.TokenPair, error)
	RefreshToken(ctx context.Context, refresh string) (backend.TokenPair, error)
	CurrentUser(ctx context.Context) (backend.User, error)
	StudentDetails(ctx context.Context) (backend.StudentDetails, error)
}

// TokenStore persists the token pair of one client. Load returns an empty
// pair when nothing is stored.
type TokenStore interface {
	LoadTokens(ctx context.Context) (backend.TokenPair, error)
	SaveTokens(ctx context.Context, pair backend.TokenPair) error
	ClearTokens(ctx context.Context) error
}

// Notifier receives transient user-facing notifications.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Navigator moves the user to another location.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

type navigatorKey struct{}

// WithNavigator scopes navigation to ctx, typically one HTTP request.
func WithNavigator(ctx context.Context, nav Navigator) context.Context {
	return context.WithValue(ctx, navigatorKey{}, nav)
}

func navigatorFrom(ctx context.Context) Navigator {
	if ctx == nil {
		return nil
	}
	nav, _ := ctx.Value(navigatorKey{}).(Navigator)
	return nav
}

type discardNotifier struct{}

func (discardNotifier) Success(string) {}
func (discardNotifier) Error(string)   {}
