// Package krypton owns the session lifecycle. A session that hits a
// control-plane or data-plane dead end is torn down and a fresh one is
// started after a delay; the embedder keeps a single handle across
// restarts.
package krypton

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/import-yuefeng/vpn-libraries/pkg/auth"
	"github.com/import-yuefeng/vpn-libraries/pkg/config"
	"github.com/import-yuefeng/vpn-libraries/pkg/datapath"
	"github.com/import-yuefeng/vpn-libraries/pkg/egress"
	"github.com/import-yuefeng/vpn-libraries/pkg/looper"
	"github.com/import-yuefeng/vpn-libraries/pkg/netinfo"
	"github.com/import-yuefeng/vpn-libraries/pkg/session"
	"github.com/import-yuefeng/vpn-libraries/pkg/status"
	"github.com/import-yuefeng/vpn-libraries/pkg/timers"
	"github.com/import-yuefeng/vpn-libraries/pkg/vpnservice"
)

// OAuth supplies the platform account token attached to auth requests.
type OAuth interface {
	GetOAuthToken() (string, error)
}

type reconnectorState int

const (
	reconnectorIdle reconnectorState = iota
	reconnectorConnecting
	reconnectorConnected
	reconnectorWaitingToReconnect
	reconnectorPermanentFailure
	reconnectorStopped
)

func (s reconnectorState) String() string {
	switch s {
	case reconnectorIdle:
		return "Idle"
	case reconnectorConnecting:
		return "Connecting"
	case reconnectorConnected:
		return "Connected"
	case reconnectorWaitingToReconnect:
		return "WaitingToReconnect"
	case reconnectorPermanentFailure:
		return "PermanentFailure"
	case reconnectorStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

type ReconnectorDebugInfo struct {
	State                          string `json:"state"`
	SessionRestartCounter          uint32 `json:"session_restart_counter"`
	SuccessiveControlPlaneFailures uint32 `json:"successive_control_plane_failures"`
	SuccessiveDataPlaneFailures    uint32 `json:"successive_data_plane_failures"`
}

type DebugInfo struct {
	ZincURL     string `json:"zinc_url"`
	BrassURL    string `json:"brass_url"`
	ServiceType string `json:"service_type"`

	Reconnector ReconnectorDebugInfo `json:"reconnector"`
	Session     session.DebugInfo    `json:"session"`
}

// Telemetry is a collect-and-reset snapshot of lifecycle counters.
type Telemetry struct {
	ControlPlaneFailures uint32 `json:"control_plane_failures"`
	DataPlaneFailures    uint32 `json:"data_plane_failures"`
	SessionRestarts      uint32 `json:"session_restarts"`
}

type Krypton struct {
	cfg          config.KryptonConfig
	httpClient   *http.Client
	oauth        OAuth
	newDatapath  func() datapath.Interface
	vpnService   vpnservice.Interface
	timerManager *timers.Manager
	looper       *looper.Looper

	mu           sync.Mutex
	notification session.NotificationInterface
	session      *session.Session
	lastNetwork  *netinfo.NetworkInfo

	state            reconnectorState
	reconnectTimerID int

	// sessionRestarts is cumulative for the debug surface; the telemetry
	// counters below reset on collection.
	sessionRestarts                uint32
	successiveControlPlaneFailures uint32
	successiveDataPlaneFailures    uint32

	telemetryControlPlaneFailures uint32
	telemetryDataPlaneFailures    uint32
	telemetrySessionRestarts      uint32
}

// New wires the orchestrator. Each session gets its own auth client,
// egress manager and datapath (hence the factory); the VPN service, timer
// manager and looper are shared across restarts.
func New(cfg config.KryptonConfig, httpClient *http.Client, oauth OAuth,
	newDatapath func() datapath.Interface, vpnService vpnservice.Interface,
	timerManager *timers.Manager, lp *looper.Looper) *Krypton {
	return &Krypton{
		cfg:              cfg,
		httpClient:       httpClient,
		oauth:            oauth,
		newDatapath:      newDatapath,
		vpnService:       vpnService,
		timerManager:     timerManager,
		looper:           lp,
		state:            reconnectorIdle,
		reconnectTimerID: -1,
	}
}

// RegisterNotificationHandler installs the embedder callbacks. Must be
// called before Start.
func (k *Krypton) RegisterNotificationHandler(n session.NotificationInterface) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.notification = n
}

func (k *Krypton) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == reconnectorStopped {
		return fmt.Errorf("krypton is stopped")
	}
	if k.session != nil {
		return fmt.Errorf("krypton already started")
	}
	return k.startSessionLocked()
}

func (k *Krypton) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == reconnectorStopped {
		return
	}
	slog.Info("krypton: stopping", slog.String("state", k.state.String()))

	k.cancelReconnectTimerLocked()
	if k.session != nil {
		k.session.Stop()
	}
	k.state = reconnectorStopped
}

// SetNetwork records the platform network and forwards it to the current
// session. The network survives restarts: every fresh session is pointed
// at it again.
func (k *Krypton) SetNetwork(network *netinfo.NetworkInfo) error {
	k.mu.Lock()
	k.lastNetwork = network
	sess := k.session
	k.mu.Unlock()

	if sess == nil {
		return nil
	}
	if err := sess.SetNetwork(network); err != nil {
		// Either the session has halted and the restart re-applies the
		// network, or the switch failed and the session's datapath
		// reattempts have taken over.
		slog.Debug("krypton: network switch deferred to next session", slog.Any("err", err))
	}
	return nil
}

func (k *Krypton) GetDebugInfo(d *DebugInfo) {
	k.mu.Lock()
	sess := k.session
	d.ZincURL = k.cfg.ZincURL
	d.BrassURL = k.cfg.BrassURL
	d.ServiceType = k.cfg.ServiceType
	d.Reconnector = ReconnectorDebugInfo{
		State:                          k.state.String(),
		SessionRestartCounter:          k.sessionRestarts,
		SuccessiveControlPlaneFailures: k.successiveControlPlaneFailures,
		SuccessiveDataPlaneFailures:    k.successiveDataPlaneFailures,
	}
	k.mu.Unlock()

	if sess != nil {
		sess.GetDebugInfo(&d.Session)
	}
}

// CollectTelemetry snapshots and resets the lifecycle counters.
func (k *Krypton) CollectTelemetry(t *Telemetry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t.ControlPlaneFailures = k.telemetryControlPlaneFailures
	t.DataPlaneFailures = k.telemetryDataPlaneFailures
	t.SessionRestarts = k.telemetrySessionRestarts
	k.telemetryControlPlaneFailures = 0
	k.telemetryDataPlaneFailures = 0
	k.telemetrySessionRestarts = 0
}

// startSessionLocked builds a session with fresh collaborators and starts
// it. Every call counts as a restart.
func (k *Krypton) startSessionLocked() error {
	authClient := auth.NewClient(k.cfg, k.httpClient, k.looper)
	egressManager := egress.NewManager(k.cfg.BrassURL, k.httpClient, k.looper)

	sess, err := session.New(k.cfg, authClient, egressManager, k.newDatapath(),
		k.vpnService, k.timerManager, k.looper, nil)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	authClient.RegisterHandlers(auth.Handlers{
		AuthSuccessful: sess.AuthSuccessful,
		AuthFailure:    sess.AuthFailure,
	})
	authClient.SetPublicValueFunc(sess.CryptoPublicValue)
	if k.oauth != nil {
		authClient.SetOAuthTokenFunc(k.oauth.GetOAuthToken)
	}
	egressManager.RegisterHandlers(egress.Handlers{
		EgressAvailable:   sess.EgressAvailable,
		EgressUnavailable: sess.EgressUnavailable,
	})
	sess.RegisterNotificationHandler(k)

	k.session = sess
	k.sessionRestarts++
	k.telemetrySessionRestarts++
	k.state = reconnectorConnecting
	slog.Info("krypton: session starting", slog.Int("restart", int(k.sessionRestarts)))

	sess.Start()
	if k.lastNetwork != nil {
		if err := sess.SetNetwork(k.lastNetwork); err != nil {
			slog.Warn("krypton: failed to apply network to new session", slog.Any("err", err))
		}
	}
	return nil
}

func (k *Krypton) scheduleRestartLocked() {
	if k.state == reconnectorStopped || k.state == reconnectorPermanentFailure {
		return
	}
	if k.reconnectTimerID != -1 {
		return
	}
	id, err := k.timerManager.StartTimer(k.cfg.GetSessionRestartDelay(), k.reconnectTimerExpired)
	if err != nil {
		slog.Error("krypton: failed to start reconnect timer", slog.Any("err", err))
		return
	}
	k.reconnectTimerID = id
	k.state = reconnectorWaitingToReconnect
	slog.Info("krypton: session restart scheduled")
}

func (k *Krypton) reconnectTimerExpired() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.reconnectTimerID = -1
	if k.state != reconnectorWaitingToReconnect {
		return
	}

	if k.session != nil {
		k.session.Stop()
		k.session = nil
	}
	if err := k.startSessionLocked(); err != nil {
		slog.Error("krypton: session restart failed", slog.Any("err", err))
		k.scheduleRestartLocked()
	}
}

func (k *Krypton) cancelReconnectTimerLocked() {
	if k.reconnectTimerID != -1 {
		k.timerManager.CancelTimer(k.reconnectTimerID)
		k.reconnectTimerID = -1
	}
}

// Krypton observes its session and forwards every event to the embedder.

func (k *Krypton) ControlPlaneConnected() {
	k.mu.Lock()
	k.successiveControlPlaneFailures = 0
	n := k.notification
	k.mu.Unlock()
	if n != nil {
		n.ControlPlaneConnected()
	}
}

func (k *Krypton) StatusUpdated() {
	k.mu.Lock()
	n := k.notification
	k.mu.Unlock()
	if n != nil {
		n.StatusUpdated()
	}
}

func (k *Krypton) ControlPlaneDisconnected(s *status.Status) {
	k.mu.Lock()
	k.successiveControlPlaneFailures++
	k.telemetryControlPlaneFailures++
	k.scheduleRestartLocked()
	n := k.notification
	k.mu.Unlock()
	if n != nil {
		n.ControlPlaneDisconnected(s)
	}
}

func (k *Krypton) PermanentFailure(s *status.Status) {
	k.mu.Lock()
	k.telemetryControlPlaneFailures++
	k.cancelReconnectTimerLocked()
	k.state = reconnectorPermanentFailure
	n := k.notification
	k.mu.Unlock()
	if n != nil {
		n.PermanentFailure(s)
	}
}

func (k *Krypton) DatapathConnected() {
	k.mu.Lock()
	k.successiveDataPlaneFailures = 0
	k.state = reconnectorConnected
	n := k.notification
	k.mu.Unlock()
	if n != nil {
		n.DatapathConnected()
	}
}

func (k *Krypton) DatapathDisconnected(network *netinfo.NetworkInfo, s *status.Status) {
	k.mu.Lock()
	k.successiveDataPlaneFailures++
	k.telemetryDataPlaneFailures++
	k.scheduleRestartLocked()
	n := k.notification
	k.mu.Unlock()
	if n != nil {
		n.DatapathDisconnected(network, s)
	}
}
