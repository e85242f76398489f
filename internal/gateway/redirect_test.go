package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedirect(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		kind  RedirectKind
		token string
		err   error
	}{
		{"app scheme return", "com.managercourt.app://payment/return?token=ORDER-1&PayerID=P1", RedirectReturn, "ORDER-1", nil},
		{"app scheme cancel", "com.managercourt.app://payment/cancel?token=ORDER-1", RedirectCancel, "ORDER-1", nil},
		{"https return", "https://courts.example/payment/return?token=ORDER-2", RedirectReturn, "ORDER-2", nil},
		{"nested https path", "https://courts.example/app/payment/cancel?token=ORDER-3", RedirectCancel, "ORDER-3", nil},
		{"missing token", "com.managercourt.app://payment/return", RedirectReturn, "", ErrMissingToken},
		{"unknown path", "com.managercourt.app://payment/other?token=ORDER-1", "", "", ErrUnrecognizedRedirect},
		{"checkout page", "https://www.sandbox.paypal.com/checkoutnow?token=ORDER-1", "", "", ErrUnrecognizedRedirect},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			redirect, err := ParseRedirect(tc.raw)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.kind, redirect.Kind)
			assert.Equal(t, tc.token, redirect.Token)
		})
	}

	redirect, err := ParseRedirect("com.managercourt.app://payment/return?token=ORDER-1&PayerID=P1")
	require.NoError(t, err)
	assert.Equal(t, "P1", redirect.PayerID)
}
