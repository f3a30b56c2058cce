package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nutrilog/sessiond/factor"
	"github.com/nutrilog/sessiond/identity"
	"github.com/nutrilog/sessiond/logger"
	"github.com/nutrilog/sessiond/login"
	"github.com/nutrilog/sessiond/principal"
	"github.com/nutrilog/sessiond/revocation"
	"github.com/nutrilog/sessiond/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "test@example.com"
	testPassword = "s3cret-pass"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logger.NewNopLogger()

	store := principal.NewInmemStore()
	revoker := revocation.NewService(revocation.NewInmemStore(), nil, log)

	issuerConfig := token.DefaultIssuerConfig()
	issuerConfig.SigningKey = []byte("test-signing-key")
	issuer, err := token.NewIssuer(issuerConfig, revoker, log)
	require.NoError(t, err)

	pending, err := factor.NewPendingStore(log, nil)
	require.NoError(t, err)
	t.Cleanup(pending.Close)

	cache, err := identity.NewCache(store, log, nil)
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	notifier := identity.NewNotifier(cache, log)
	registry := principal.NewRegistry(store, notifier, log)

	require.NoError(t, registry.Register(context.Background(), &principal.Principal{
		ID:          "user-1",
		Email:       testEmail,
		Tier:        "premium",
		Permissions: []string{"food.log"},
		Verified:    true,
	}, testPassword))

	auth := login.NewAuthenticator(registry, pending, issuer, revoker, factor.NewTOTPVerifier(), nil, log)

	server := httptest.NewServer(Handler(&HandlerProperties{
		Authenticator: auth,
		Issuer:        issuer,
		Cache:         cache,
		Logger:        log,
	}))
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func doLogin(t *testing.T, server *httptest.Server) tokenResponse {
	t.Helper()
	resp := postJSON(t, server.URL+"/v1/auth/login", map[string]string{
		"email":    testEmail,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body tokenResponse
	decodeBody(t, resp, &body)
	require.NotEmpty(t, body.AccessToken)
	require.NotEmpty(t, body.RefreshToken)
	return body
}

func TestLoginEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("success", func(t *testing.T) {
		doLogin(t, server)
	})

	t.Run("bad password", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/v1/auth/login", map[string]string{
			"email":    testEmail,
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var body errorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, msgInvalidCredentials, body.Error)
	})

	t.Run("unknown account uses the same message", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/v1/auth/login", map[string]string{
			"email":    "nobody@example.com",
			"password": testPassword,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var body errorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, msgInvalidCredentials, body.Error)
	})

	t.Run("missing fields", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/v1/auth/login", map[string]string{"email": testEmail})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown json field", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/v1/auth/login", map[string]string{
			"email": testEmail, "password": testPassword, "extra": "x",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestFactorEndpointWithoutSession(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/v1/auth/factor", map[string]string{
		"principal_id": "user-1",
		"code":         "123456",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body errorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, msgSessionExpired, body.Error)
}

func TestRefreshEndpoint(t *testing.T) {
	server := newTestServer(t)
	tokens := doLogin(t, server)

	resp := postJSON(t, server.URL+"/v1/auth/refresh", map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rotated tokenResponse
	decodeBody(t, resp, &rotated)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// The old refresh credential no longer works.
	resp = postJSON(t, server.URL+"/v1/auth/refresh", map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutEndpoint(t *testing.T) {
	server := newTestServer(t)
	tokens := doLogin(t, server)

	resp := postJSON(t, server.URL+"/v1/auth/logout", map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestIdentityEndpoint(t *testing.T) {
	server := newTestServer(t)
	tokens := doLogin(t, server)

	get := func(principalID, bearer string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, server.URL+"/v1/identity/"+principalID, nil)
		require.NoError(t, err)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("no credential", func(t *testing.T) {
		resp := get("user-1", "")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage credential", func(t *testing.T) {
		resp := get("user-1", "garbage")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("someone else's identity", func(t *testing.T) {
		resp := get("user-2", tokens.AccessToken)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("own identity", func(t *testing.T) {
		resp := get("user-1", tokens.AccessToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			PrincipalID string   `json:"principal_id"`
			Tier        string   `json:"tier"`
			Permissions []string `json:"permissions"`
		}
		decodeBody(t, resp, &body)
		assert.Equal(t, "user-1", body.PrincipalID)
		assert.Equal(t, "premium", body.Tier)
		assert.Contains(t, body.Permissions, "food.log")
	})
}

func TestLogoutAllEndpoint(t *testing.T) {
	server := newTestServer(t)
	tokens := doLogin(t, server)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/v1/auth/logout-all", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]int
	decodeBody(t, resp, &body)
	assert.Equal(t, 2, body["revoked"])

	// Everything minted by the login, the presented access credential
	// included, is now dead.
	resp = postJSON(t, server.URL+"/v1/auth/refresh", map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t)
	doLogin(t, server)

	resp, err := http.Get(server.URL + "/v1/sys/metrics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]map[string]int64
	decodeBody(t, resp, &body)
	assert.Contains(t, body, "token")
	assert.Contains(t, body, "identity")
	assert.Equal(t, int64(2), body["token"]["tokens_issued"])
}
