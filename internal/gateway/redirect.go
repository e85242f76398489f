package gateway

import (
	"errors"
	"net/url"
	"strings"
)

// RedirectKind distinguishes the two ways a payer comes back from approval.
type RedirectKind string

const (
	RedirectReturn RedirectKind = "return"
	RedirectCancel RedirectKind = "cancel"
)

var (
	// ErrUnrecognizedRedirect is returned for URLs that are neither the
	// return nor the cancel callback.
	ErrUnrecognizedRedirect = errors.New("gateway: unrecognized redirect url")
	// ErrMissingToken is returned when a callback carries no order token.
	ErrMissingToken = errors.New("gateway: redirect url has no token")
)

// Redirect is a parsed approval callback.
type Redirect struct {
	Kind    RedirectKind
	Token   string
	PayerID string
}

// ParseRedirect classifies a callback URL by its trailing path,
// `payment/return` or `payment/cancel`. Custom app schemes put the first
// segment in the host (app://payment/return), so host and path are joined.
func ParseRedirect(raw string) (Redirect, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Redirect{}, ErrUnrecognizedRedirect
	}

	route := strings.Trim(u.Path, "/")
	if u.Scheme != "http" && u.Scheme != "https" && u.Host != "" {
		route = strings.Trim(u.Host+"/"+route, "/")
	}

	var redirect Redirect
	switch {
	case route == "payment/return" || strings.HasSuffix(route, "/payment/return"):
		redirect.Kind = RedirectReturn
	case route == "payment/cancel" || strings.HasSuffix(route, "/payment/cancel"):
		redirect.Kind = RedirectCancel
	default:
		return Redirect{}, ErrUnrecognizedRedirect
	}

	query := u.Query()
	redirect.Token = query.Get("token")
	redirect.PayerID = query.Get("PayerID")
	if redirect.Token == "" {
		return redirect, ErrMissingToken
	}
	return redirect, nil
}
