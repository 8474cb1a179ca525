// Package auth talks to the zinc control plane. Start is fire-and-forget:
// the HTTP round trip runs on its own goroutine and the outcome is posted
// back onto the session's notification looper.
package auth

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/import-yuefeng/vpn-libraries/pkg/config"
	"github.com/import-yuefeng/vpn-libraries/pkg/looper"
	"github.com/import-yuefeng/vpn-libraries/pkg/status"
)

// Handlers is the capability set the session installs to observe auth
// outcomes. Both callbacks run on the notification looper.
type Handlers struct {
	AuthSuccessful func(isRekey bool)
	AuthFailure    func(s *status.Status)
}

type authRequest struct {
	ServiceType string `json:"service_type"`
	OAuthToken  string `json:"oauth_token,omitempty"`
	BlindToken  string `json:"blind_token,omitempty"`
}

type Client struct {
	cfg        config.KryptonConfig
	httpClient *http.Client
	looper     *looper.Looper

	// publicValue supplies the session public value bound into blind tokens.
	publicValue func() string
	// oauthToken fetches the platform OAuth token attached to requests.
	oauthToken func() (string, error)

	mu         sync.Mutex
	handlers   Handlers
	response   *AuthAndSignResponse
	signingKey *ecdsa.PrivateKey
	stopped    bool
}

func NewClient(cfg config.KryptonConfig, httpClient *http.Client, lp *looper.Looper) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		looper:     lp,
	}
}

func (c *Client) RegisterHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

// SetPublicValueFunc installs the source of the session public value used
// when blind signing is enabled.
func (c *Client) SetPublicValueFunc(f func() string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publicValue = f
}

// SetOAuthTokenFunc installs the platform OAuth token source.
func (c *Client) SetOAuthTokenFunc(f func() (string, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.oauthToken = f
}

// Start begins an auth flow. The result arrives through the registered
// handlers; Start itself never blocks on the network.
func (c *Client) Start(isRekey bool) {
	go c.authenticate(isRekey)
}

func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

// AuthResponse returns the last successful response, nil before the first
// success. The returned value is shared and must not be mutated.
func (c *Client) AuthResponse() *AuthAndSignResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response
}

func (c *Client) authenticate(isRekey bool) {
	c.mu.Lock()
	publicValue := c.publicValue
	oauthToken := c.oauthToken
	c.mu.Unlock()

	request := authRequest{ServiceType: c.cfg.ServiceType}
	if oauthToken != nil {
		token, err := oauthToken()
		if err != nil {
			c.fail(status.Internal(fmt.Sprintf("fetch oauth token: %v", err)))
			return
		}
		request.OAuthToken = token
	}
	if c.cfg.EnableBlindSigning {
		value := ""
		if publicValue != nil {
			value = publicValue()
		}
		token, err := c.blindToken(value)
		if err != nil {
			c.fail(status.Internal(fmt.Sprintf("mint blind token: %v", err)))
			return
		}
		request.BlindToken = token
	}

	requestBytes, err := json.Marshal(request)
	if err != nil {
		c.fail(status.Internal(fmt.Sprintf("marshal auth request: %v", err)))
		return
	}

	slog.Debug("auth: requesting auth and sign",
		slog.String("url", c.cfg.ZincURL), slog.Bool("is_rekey", isRekey))

	resp, err := c.httpClient.Post(c.cfg.ZincURL, "application/json", bytes.NewReader(requestBytes))
	if err != nil {
		c.fail(status.Unavailable(fmt.Sprintf("auth request failed: %v", err)))
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.fail(status.Internal(fmt.Sprintf("read auth response: %v", err)))
		return
	}

	if resp.StatusCode != http.StatusOK {
		c.fail(httpStatus(resp.StatusCode, body))
		return
	}

	response, err := DecodeAuthAndSignResponse(body)
	if err != nil {
		c.fail(status.Internal(err.Error()))
		return
	}

	c.mu.Lock()
	c.response = response
	handlers := c.handlers
	stopped := c.stopped
	c.mu.Unlock()
	if stopped || handlers.AuthSuccessful == nil {
		return
	}
	c.looper.Post(func() { handlers.AuthSuccessful(isRekey) })
}

func (c *Client) fail(s *status.Status) {
	slog.Warn("auth: failure", slog.String("status", s.String()))

	c.mu.Lock()
	handlers := c.handlers
	stopped := c.stopped
	c.mu.Unlock()
	if stopped || handlers.AuthFailure == nil {
		return
	}
	c.looper.Post(func() { handlers.AuthFailure(s) })
}

func httpStatus(code int, body []byte) *status.Status {
	message := http.StatusText(code)
	if len(body) > 0 {
		message = string(body)
	}
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return status.PermissionDenied(message)
	case http.StatusNotFound:
		return status.NotFound(message)
	default:
		return status.Internal(message)
	}
}
