package backend

import (
	"context"
	"net/http"
)

const (
	pathToken         = "token/"
	pathTokenRefresh  = "token/refresh/"
	pathCurrentUser   = "users/me/"
	pathStudentMe     = "students/me/"
	pathResetRequest  = "password-reset/"
	pathResetConfirm  = "password-reset/confirm/"
	pathCertVerifyFmt = "certificates/verify/%s/"
)

// ObtainToken exchanges credentials for an access/refresh pair.
func (c *Client) ObtainToken(ctx context.Context, username, password string) (TokenPair, error) {
	var pair TokenPair
	body := map[string]string{"username": username, "password": password}
	if err := c.do(WithoutToken(ctx), http.MethodPost, pathToken, nil, body, &pair); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// RefreshToken trades a refresh token for a new pair. Backends that do not
// rotate refresh tokens answer with an access token only; the old refresh
// token is kept in that case.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (TokenPair, error) {
	var pair TokenPair
	body := map[string]string{"refresh": refresh}
	if err := c.do(WithoutToken(ctx), http.MethodPost, pathTokenRefresh, nil, body, &pair); err != nil {
		return TokenPair{}, err
	}
	if pair.Refresh == "" {
		pair.Refresh = refresh
	}
	return pair, nil
}

// CurrentUser returns the profile owning the bearer token in ctx.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, pathCurrentUser, nil, nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// StudentDetails returns the student record of the current user.
func (c *Client) StudentDetails(ctx context.Context) (StudentDetails, error) {
	var d StudentDetails
	if err := c.do(ctx, http.MethodGet, pathStudentMe, nil, nil, &d); err != nil {
		return StudentDetails{}, err
	}
	return d, nil
}

// RequestPasswordReset asks the backend to mail a reset link to email.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(WithoutToken(ctx), http.MethodPost, pathResetRequest, nil, map[string]string{"email": email}, nil)
}

// ConfirmPasswordReset sets a new password using the uid/token pair from the link.
func (c *Client) ConfirmPasswordReset(ctx context.Context, uid, token, password string) error {
	body := map[string]string{"uid": uid, "token": token, "new_password": password}
	return c.do(WithoutToken(ctx), http.MethodPost, pathResetConfirm, nil, body, nil)
}
