// Package egress contacts the brass control plane to obtain the egress
// endpoint and key material for a session.
package egress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/import-yuefeng/vpn-libraries/pkg/auth"
	"github.com/import-yuefeng/vpn-libraries/pkg/cryptoutil"
	"github.com/import-yuefeng/vpn-libraries/pkg/looper"
	"github.com/import-yuefeng/vpn-libraries/pkg/status"
)

// Handlers is the capability set the session installs to observe egress
// outcomes. Both callbacks run on the notification looper.
type Handlers struct {
	EgressAvailable   func(isRekey bool)
	EgressUnavailable func(s *status.Status)
}

// PpnDataplaneRequestParams bundles the client side of a PPN add-egress
// request.
type PpnDataplaneRequestParams struct {
	ClientPublicValue   string
	ClientNonce         string
	Suite               cryptoutil.CryptoSuite
	DownlinkSpi         uint32
	BlindTokenSignature string
	IsRekey             bool
}

type bridgeRequestWire struct {
	AuthToken string `json:"auth_token"`
}

type ppnRequestWire struct {
	Ppn ppnRequestBody `json:"ppn"`
}

type ppnRequestBody struct {
	ClientPublicValue   string `json:"client_public_value"`
	ClientNonce         string `json:"client_nonce"`
	Suite               string `json:"suite"`
	DownlinkSpi         uint32 `json:"downlink_spi"`
	BlindTokenSignature string `json:"blind_token_signature,omitempty"`
	Rekey               bool   `json:"rekey,omitempty"`
}

type Manager struct {
	url        string
	httpClient *http.Client
	looper     *looper.Looper

	mu       sync.Mutex
	handlers Handlers
	details  *AddEgressResponse
	stopped  bool
}

func NewManager(url string, httpClient *http.Client, lp *looper.Looper) *Manager {
	return &Manager{
		url:        url,
		httpClient: httpClient,
		looper:     lp,
	}
}

func (m *Manager) RegisterHandlers(h Handlers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = h
}

// GetEgressNodeForBridge requests an egress node using the bridge control
// plane. The request is dispatched asynchronously; the outcome arrives
// through the registered handlers.
func (m *Manager) GetEgressNodeForBridge(authResponse *auth.AuthAndSignResponse) *status.Status {
	if authResponse == nil {
		return status.InvalidArgument("no auth response")
	}
	body, err := json.Marshal(bridgeRequestWire{AuthToken: authResponse.JwtToken})
	if err != nil {
		return status.Internal(fmt.Sprintf("marshal add-egress request: %v", err))
	}
	go m.addEgress(body, false)
	return nil
}

// GetEgressNodeForPpnIpSec requests an egress node using the PPN control
// plane dialect.
func (m *Manager) GetEgressNodeForPpnIpSec(params PpnDataplaneRequestParams) *status.Status {
	if params.ClientPublicValue == "" {
		return status.InvalidArgument("no client public value")
	}
	body, err := json.Marshal(ppnRequestWire{Ppn: ppnRequestBody{
		ClientPublicValue:   params.ClientPublicValue,
		ClientNonce:         params.ClientNonce,
		Suite:               params.Suite.String(),
		DownlinkSpi:         params.DownlinkSpi,
		BlindTokenSignature: params.BlindTokenSignature,
		Rekey:               params.IsRekey,
	}})
	if err != nil {
		return status.Internal(fmt.Sprintf("marshal add-egress request: %v", err))
	}
	go m.addEgress(body, params.IsRekey)
	return nil
}

// GetEgressSessionDetails returns the most recently stored response.
func (m *Manager) GetEgressSessionDetails() (*AddEgressResponse, *status.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.details == nil {
		return nil, status.NotFound("no egress session details")
	}
	return m.details, nil
}

func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *Manager) addEgress(requestBody []byte, isRekey bool) {
	slog.Debug("egress: requesting egress node",
		slog.String("url", m.url), slog.Bool("is_rekey", isRekey))

	resp, err := m.httpClient.Post(m.url, "application/json", bytes.NewReader(requestBody))
	if err != nil {
		m.fail(status.Unavailable(fmt.Sprintf("add-egress request failed: %v", err)))
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		m.fail(status.Internal(fmt.Sprintf("read add-egress response: %v", err)))
		return
	}
	if resp.StatusCode != http.StatusOK {
		message := http.StatusText(resp.StatusCode)
		if len(body) > 0 {
			message = string(body)
		}
		if resp.StatusCode == http.StatusNotFound {
			m.fail(status.NotFound(message))
		} else {
			m.fail(status.Internal(message))
		}
		return
	}

	details, err := DecodeAddEgressResponse(body)
	if err != nil {
		m.fail(status.Internal(err.Error()))
		return
	}

	m.mu.Lock()
	m.details = details
	handlers := m.handlers
	stopped := m.stopped
	m.mu.Unlock()
	if stopped || handlers.EgressAvailable == nil {
		return
	}
	m.looper.Post(func() { handlers.EgressAvailable(isRekey) })
}

func (m *Manager) fail(s *status.Status) {
	slog.Warn("egress: failure", slog.String("status", s.String()))

	m.mu.Lock()
	handlers := m.handlers
	stopped := m.stopped
	m.mu.Unlock()
	if stopped || handlers.EgressUnavailable == nil {
		return
	}
	m.looper.Post(func() { handlers.EgressUnavailable(s) })
}
