package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certpilot/certpilot/models"
	"github.com/certpilot/certpilot/pki"
)

const loginPage = `<html><body><form>` +
	`<input type="hidden" name="__RequestVerificationToken" value="anti-forgery-token" />` +
	`</form></body></html>`

func testJWT(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
		"sub": "ops@example.com",
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(loginFormPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(loginPage))
	})
	mux.HandleFunc(LoginPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anti-forgery-token", r.Header.Get("RequestVerificationToken"))
		_, _ = w.Write([]byte(`"` + testJWT(t) + `"`))
	})
	for path, handler := range handlers {
		mux.HandleFunc(path, handler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func jsonHandler(t *testing.T, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", ApplicationJson)
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient("ops@example.com", "password", "", WithBaseURL(server.URL))
	require.NoError(t, err)
	return c
}

func TestNewClientLogsIn(t *testing.T) {
	server := newTestServer(t, nil)
	c := newTestClient(t, server)
	assert.NotEmpty(t, c.currentToken)
}

func TestNewClientRejectsBadLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(loginFormPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(loginPage))
	})
	mux.HandleFunc(LoginPath, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	_, err := NewClient("ops@example.com", "wrong", "", WithBaseURL(server.URL))
	require.Error(t, err)
	var codeErr *UnexpectedResponseCodeError
	require.ErrorAs(t, err, &codeErr)
	assert.Equal(t, http.StatusUnauthorized, codeErr.Code)
}

// loginCountingServer issues a token with the given lifetime on the first
// login and hour-long tokens afterwards.
func loginCountingServer(t *testing.T, firstLifetime time.Duration, logins *int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(loginFormPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(loginPage))
	})
	mux.HandleFunc(LoginPath, func(w http.ResponseWriter, r *http.Request) {
		*logins++
		lifetime := time.Hour
		if *logins == 1 {
			lifetime = firstLifetime
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(lifetime).Unix(),
		}).SignedString([]byte("test-key"))
		require.NoError(t, err)
		_, _ = w.Write([]byte(`"` + token + `"`))
	})
	mux.HandleFunc(RegisterAccountPath, jsonHandler(t, models.Registration{ID: "acct-1"}))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestExpiredSessionIsRenewedBeforeRequest(t *testing.T) {
	logins := 0
	server := loginCountingServer(t, -time.Minute, &logins)

	c, err := NewClient("ops@example.com", "password", "", WithBaseURL(server.URL))
	require.NoError(t, err)
	require.Equal(t, 1, logins)

	reg, err := c.Register("ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", reg.ID)
	assert.Equal(t, 2, logins)
}

func TestRefreshIntervalRenewsBeforeExpiry(t *testing.T) {
	logins := 0
	server := loginCountingServer(t, 30*time.Minute, &logins)

	c, err := NewClient("ops@example.com", "password", "",
		WithBaseURL(server.URL), WithRefreshInterval(45*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, logins)

	// The token is still valid but expires inside the refresh window.
	_, err = c.Register("ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, logins)
}

func TestValidSessionIsNotRenewed(t *testing.T) {
	logins := 0
	server := loginCountingServer(t, time.Hour, &logins)

	c, err := NewClient("ops@example.com", "password", "", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = c.Register("ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, logins)
}

func TestRegister(t *testing.T) {
	want := models.Registration{
		ID:        "acct-1",
		Contacts:  []string{"ops@example.com"},
		Agreement: "https://ca.example.com/tos",
		Location:  "https://ca.example.com/acct/1",
	}
	server := newTestServer(t, map[string]http.HandlerFunc{
		RegisterAccountPath: jsonHandler(t, want),
	})
	c := newTestClient(t, server)

	reg, err := c.Register("ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, &want, reg)
}

func TestRegisterRejectsNonJSONResponse(t *testing.T) {
	server := newTestServer(t, map[string]http.HandlerFunc{
		RegisterAccountPath: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		},
	})
	c := newTestClient(t, server)

	_, err := c.Register("ops@example.com")
	require.Error(t, err)
	var ctErr *UnexpectedResponseContentTypeError
	assert.ErrorAs(t, err, &ctErr)
}

func TestNewAuthorization(t *testing.T) {
	want := models.Authorization{
		Domain: "example.com",
		Status: models.StatusPending,
		Challenges: []models.Challenge{
			{Type: "http", Token: "tok-1", Instructions: "serve the token"},
		},
	}
	server := newTestServer(t, map[string]http.HandlerFunc{
		NewAuthorizationPath: jsonHandler(t, want),
	})
	c := newTestClient(t, server)

	authz, err := c.NewAuthorization("example.com")
	require.NoError(t, err)
	assert.Equal(t, &want, authz)
}

func TestFinalizeChallenge(t *testing.T) {
	server := newTestServer(t, map[string]http.HandlerFunc{
		FinalizeChallengePath: jsonHandler(t, models.FinalizeResponse{Status: "valid"}),
	})
	c := newTestClient(t, server)

	status, err := c.FinalizeChallenge("example.com", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "valid", status)
}

func TestRequestCertificate(t *testing.T) {
	var gotReq models.CertificateRequest
	server := newTestServer(t, map[string]http.HandlerFunc{
		RequestCertificatePath: func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			w.Header().Set("Content-Type", ApplicationJson)
			_ = json.NewEncoder(w).Encode(models.CertificateResponse{
				Certificate:       "leaf-pem\n",
				IssuerCertificate: "issuer-pem\n",
			})
		},
	})
	c := newTestClient(t, server)

	kp, err := pki.Generator{Type: "EC256"}.GenerateKeyPair()
	require.NoError(t, err)
	csr, err := pki.Encoder{}.Encode("example.com", kp)
	require.NoError(t, err)

	cert, err := c.RequestCertificate("example.com", csr)
	require.NoError(t, err)
	assert.Equal(t, "leaf-pem\nissuer-pem\n", string(cert))
	assert.Equal(t, "example.com", gotReq.Domain)
	assert.Contains(t, gotReq.CSR, "BEGIN CERTIFICATE REQUEST")
}

func TestRequestCertificateRejectsMalformedCSR(t *testing.T) {
	server := newTestServer(t, nil)
	c := newTestClient(t, server)

	_, err := c.RequestCertificate("example.com", []byte("garbage"))
	require.Error(t, err)
}
