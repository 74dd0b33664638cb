package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token%d","token_type":"bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenIsCached(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	c := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL})

	tok, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token1", tok.AccessToken)

	req := httptest.NewRequest(http.MethodGet, "http://model.local", nil)
	require.NoError(t, c.SetAuthHeader(context.Background(), req))
	assert.Equal(t, "Bearer token1", req.Header.Get("Authorization"))
	assert.EqualValues(t, 1, calls.Load())
}

func TestForceRefresh(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	c := NewClientCred(Conf{TokenURL: srv.URL})

	_, err := c.Token(context.Background())
	require.NoError(t, err)
	tok, err := c.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token2", tok.AccessToken)
}

func TestTokenError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := NewClientCred(Conf{TokenURL: srv.URL})
	_, err := c.Token(context.Background())
	assert.ErrorContains(t, err, "failed to get token")
	assert.False(t, Conf{}.Enabled())
}
