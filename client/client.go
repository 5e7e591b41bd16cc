package client

import (
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultBaseURL = "https://ca.example.com"

	LoginPath     = "/api/User/Login"
	LoginPathTotp = "/api/User/Login2FA"

	RegisterAccountPath = "/api/Account/Register"
	UpdateAccountPath   = "/api/Account/Update"

	NewAuthorizationPath  = "/api/Authorization/New"
	FinalizeChallengePath = "/api/Authorization/Finalize"

	RequestCertificatePath = "/api/Certificate/Request"

	ApplicationJson = "application/json"
)

// Client talks to the CA's management API. A session token is obtained at
// construction and refreshed when the JWT is about to expire.
type Client struct {
	client          *resty.Client
	currentToken    string
	baseURL         string
	debug           bool
	insecure        bool
	timeout         time.Duration
	user            string
	password        string
	totp            string
	refreshInterval time.Duration
	loginLock       sync.RWMutex
}

type Option func(*Client)

type UnexpectedResponseContentTypeError struct {
	ContentType string
}

func (e *UnexpectedResponseContentTypeError) Error() string {
	return fmt.Sprintf("unexpected response content type: %s", e.ContentType)
}

type UnexpectedResponseCodeError struct {
	Code int
	Body []byte
}

func (e *UnexpectedResponseCodeError) Error() string {
	return fmt.Sprintf("unexpected response code %d: %s", e.Code, string(e.Body))
}

func NewClient(user, password, totpSeed string, options ...Option) (*Client, error) {
	c := Client{baseURL: DefaultBaseURL}
	for _, option := range options {
		option(&c)
	}
	err := c.prepareClient(user, password, totpSeed, false)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithInsecureTLS disables transport certificate validation for this client
// only. There is deliberately no process-wide toggle.
func WithInsecureTLS(insecure bool) Option {
	return func(c *Client) {
		c.insecure = insecure
	}
}

// WithTimeout bounds every request made by this client. Expiry surfaces as
// an ordinary transport error on the call that hit it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithRefreshInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.refreshInterval = interval
	}
}

func (c *Client) SessionRefresh(force bool) error {
	return c.prepareClient(c.user, c.password, c.totp, force)
}

func (c *Client) newResty() *resty.Client {
	r := resty.New()
	if c.insecure {
		r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	if c.timeout > 0 {
		r.SetTimeout(c.timeout)
	}
	return r
}

func (c *Client) prepareClient(user, password, totpSeed string, force bool) error {
	c.loginLock.Lock()
	defer c.loginLock.Unlock()
	renew := false
	if c.currentToken != "" {
		token, _, err := jwt.NewParser().ParseUnverified(c.currentToken, jwt.MapClaims{})
		if err != nil {
			return err
		}
		exp, err := token.Claims.GetExpirationTime()
		if err != nil {
			return err
		}
		if exp.Before(time.Now()) || exp.Before(time.Now().Add(c.refreshInterval)) {
			renew = true
			slog.Info("Session token expired or about to expire, renewing")
		}
	}
	c.user = user
	c.password = password
	c.totp = totpSeed
	if c.client == nil || c.currentToken == "" || renew || force {
		return c.login(user, password, totpSeed)
	}
	return nil
}

func (c *Client) login(user, password, totpSeed string) error {
	r := c.newResty()
	verificationToken, err := getVerificationToken(r, c.baseURL)
	if err != nil {
		return err
	}

	body := map[string]string{"email": user, "password": password}
	path := LoginPath
	if totpSeed != "" {
		code, err := totp.GenerateCode(totpSeed, time.Now())
		if err != nil {
			return err
		}
		body["token"] = code
		path = LoginPathTotp
	}

	resp, err := r.
		R().SetHeaderVerbatim("RequestVerificationToken", verificationToken).
		SetHeader("Content-Type", ApplicationJson).
		SetBody(body).
		Post(c.baseURL + path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &UnexpectedResponseCodeError{Code: resp.StatusCode(), Body: resp.Body()}
	}

	tokenResp := strings.Trim(resp.String(), "\"")
	token, _, err := jwt.NewParser().ParseUnverified(tokenResp, jwt.MapClaims{})
	if err != nil {
		return err
	}
	c.currentToken = tokenResp

	r = r.SetHeaders(map[string]string{"Authorization": c.currentToken})
	verificationToken, err = getVerificationToken(r, c.baseURL)
	if err != nil {
		return err
	}
	c.client = r.SetHeaderVerbatim("RequestVerificationToken", verificationToken).SetDebug(c.debug)

	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return err
	}
	slog.Info("Logged in", slog.String("user", user), slog.Time("exp", exp.Time))
	return nil
}

func checkJSON(resp *resty.Response) error {
	if resp.IsError() {
		return &UnexpectedResponseCodeError{Code: resp.StatusCode(), Body: resp.Body()}
	}
	if !strings.Contains(resp.Header().Get("Content-Type"), ApplicationJson) {
		return &UnexpectedResponseContentTypeError{ContentType: resp.Header().Get("Content-Type")}
	}
	return nil
}
