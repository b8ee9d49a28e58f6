package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// VerifyCertificate looks a verification code up on the public endpoint.
func (c *Client) VerifyCertificate(ctx context.Context, code string) (Certificate, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Certificate{}, &APIError{Status: http.StatusBadRequest, Message: "verification code is required"}
	}
	if strings.ContainsAny(code, "/?#") {
		return Certificate{}, &APIError{Status: http.StatusBadRequest, Message: "verification code is malformed"}
	}
	var cert Certificate
	path := fmt.Sprintf(pathCertVerifyFmt, code)
	if err := c.do(WithoutToken(ctx), http.MethodGet, path, nil, nil, &cert); err != nil {
		return Certificate{}, err
	}
	return cert, nil
}
