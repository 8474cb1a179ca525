// Package session drives the VPN from idle through authentication, egress
// negotiation and dataplane establishment, and keeps it alive across
// network switches, transient datapath failures and periodic rekeys.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/grpc/codes"

	"github.com/import-yuefeng/vpn-libraries/pkg/auth"
	"github.com/import-yuefeng/vpn-libraries/pkg/config"
	"github.com/import-yuefeng/vpn-libraries/pkg/cryptoutil"
	"github.com/import-yuefeng/vpn-libraries/pkg/datapath"
	"github.com/import-yuefeng/vpn-libraries/pkg/egress"
	"github.com/import-yuefeng/vpn-libraries/pkg/looper"
	"github.com/import-yuefeng/vpn-libraries/pkg/netinfo"
	"github.com/import-yuefeng/vpn-libraries/pkg/pipe"
	"github.com/import-yuefeng/vpn-libraries/pkg/status"
	"github.com/import-yuefeng/vpn-libraries/pkg/timers"
	"github.com/import-yuefeng/vpn-libraries/pkg/vpnservice"
)

// MaxReattempts bounds the datapath reconnect schedule: two attempts on
// the primary IPv6 endpoint, then two on the primary IPv4 endpoint.
const MaxReattempts = 4

// Authenticator is the session's view of the auth client.
type Authenticator interface {
	Start(isRekey bool)
	Stop()
	AuthResponse() *auth.AuthAndSignResponse
}

// EgressProvider is the session's view of the egress manager.
type EgressProvider interface {
	GetEgressNodeForBridge(authResponse *auth.AuthAndSignResponse) *status.Status
	GetEgressNodeForPpnIpSec(params egress.PpnDataplaneRequestParams) *status.Status
	GetEgressSessionDetails() (*egress.AddEgressResponse, *status.Status)
	Stop()
}

// The fixed resolvers pushed into every tunnel.
var tunnelDNSAddresses = []netinfo.IPRange{
	{Family: netinfo.IPv4, IPRange: "8.8.8.8", Prefix: 32},
	{Family: netinfo.IPv4, IPRange: "8.8.8.4", Prefix: 32},
	{Family: netinfo.IPv6, IPRange: "2001:4860:4860::8888", Prefix: 128},
	{Family: netinfo.IPv6, IPRange: "2001:4860:4860::8844", Prefix: 128},
}

type Session struct {
	cfg config.KryptonConfig

	authenticator Authenticator
	egressManager EgressProvider
	datapath      datapath.Interface
	vpnService    vpnservice.Interface
	timerManager  *timers.Manager
	looper        *looper.Looper

	mu           sync.Mutex
	notification NotificationInterface

	state        State
	latestStatus *status.Status

	crypto *cryptoutil.SessionCrypto
	// rekeyCrypto is the fresh keypair for an in-flight rekey; it replaces
	// crypto once the datapath accepts the new material.
	rekeyCrypto *cryptoutil.SessionCrypto
	suite       cryptoutil.CryptoSuite

	activeNetworkInfo *netinfo.NetworkInfo
	activeTunPipe     *pipe.PacketPipe
	activeNetworkPipe *pipe.PacketPipe

	// pendingNetworkSwitch marks a SetNetwork that arrived before the
	// control plane came up; it is applied once the datapath starts.
	pendingNetworkSwitch bool

	// endpointSchedule holds one endpoint per reattempt slot.
	endpointSchedule []string
	reattemptCount   int
	reattemptTimerID int
	rekeyTimerID     int

	successfulRekeys     uint32
	networkSwitches      uint32
	controlPlaneFailures uint32
	dataPlaneFailures    uint32
}

// New wires a session to its collaborators. network is the platform
// network active at construction, if known; it counts as the first switch.
func New(cfg config.KryptonConfig, authenticator Authenticator, egressManager EgressProvider,
	dp datapath.Interface, vpnService vpnservice.Interface, timerManager *timers.Manager,
	lp *looper.Looper, network *netinfo.NetworkInfo) (*Session, error) {
	crypto, err := cryptoutil.NewSessionCrypto()
	if err != nil {
		return nil, fmt.Errorf("create session crypto: %w", err)
	}

	s := &Session{
		cfg:               cfg,
		authenticator:     authenticator,
		egressManager:     egressManager,
		datapath:          dp,
		vpnService:        vpnService,
		timerManager:      timerManager,
		looper:            lp,
		state:             StateInitialized,
		crypto:            crypto,
		suite:             cryptoutil.SuiteAES128GCM,
		activeNetworkInfo: network,
		reattemptTimerID:  -1,
		rekeyTimerID:      -1,
		networkSwitches:   1,
	}

	// Datapath events arrive on the datapath's own goroutines; they are
	// posted onto the looper like the auth and egress outcomes.
	dp.RegisterNotificationHandler(datapath.Handlers{
		DatapathEstablished: func() { lp.Post(s.DatapathEstablished) },
		DatapathFailed: func(st *status.Status, networkFd int) {
			lp.Post(func() { s.DatapathFailed(st, networkFd) })
		},
		DatapathPermanentFailure: func(st *status.Status) {
			lp.Post(func() { s.DatapathPermanentFailure(st) })
		},
	})
	return s, nil
}

// RegisterNotificationHandler installs the embedder callbacks. Must be
// called before Start.
func (s *Session) RegisterNotificationHandler(n NotificationInterface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notification = n
}

// SetCryptoSuite overrides the dataplane cipher suite. Must be called
// before Start.
func (s *Session) SetCryptoSuite(suite cryptoutil.CryptoSuite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suite = suite
}

// Start begins the control-plane flow.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitialized {
		slog.Warn("session: start ignored", slog.String("state", s.state.String()))
		return
	}
	slog.Info("session: starting", slog.String("service_type", s.cfg.ServiceType))
	s.looper.Post(func() { s.authenticator.Start(false) })
}

// Stop quiesces the session: timers cancelled, collaborators stopped,
// pipes released.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	slog.Info("session: stopping", slog.String("state", s.state.String()))

	s.cancelReattemptTimerLocked()
	if s.rekeyTimerID != -1 {
		s.timerManager.CancelTimer(s.rekeyTimerID)
		s.rekeyTimerID = -1
	}

	s.datapath.Stop()
	s.authenticator.Stop()
	s.egressManager.Stop()

	if s.activeNetworkPipe != nil {
		_ = s.activeNetworkPipe.Close()
		s.activeNetworkPipe = nil
	}
	if s.activeTunPipe != nil {
		_ = s.activeTunPipe.Close()
		s.activeTunPipe = nil
	}

	if s.state != StatePermanentError {
		s.state = StateStopped
	}
}

// AuthSuccessful is invoked by the auth client on the notification looper.
func (s *Session) AuthSuccessful(isRekey bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haltedLocked() {
		return
	}
	slog.Info("session: auth successful", slog.Bool("is_rekey", isRekey))

	var st *status.Status
	if s.cfg.BridgeOverPpn || s.cfg.IpSecDatapath {
		st = s.egressManager.GetEgressNodeForPpnIpSec(s.ppnParamsLocked(isRekey))
	} else {
		st = s.egressManager.GetEgressNodeForBridge(s.authenticator.AuthResponse())
	}
	if !st.OK() {
		s.controlPlaneFailedLocked(st)
	}
}

// AuthFailure is invoked by the auth client on the notification looper.
func (s *Session) AuthFailure(st *status.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haltedLocked() {
		return
	}

	if st.Code() == codes.PermissionDenied {
		slog.Error("session: permanent auth failure", slog.String("status", st.String()))
		s.latestStatus = st
		s.state = StatePermanentError
		s.controlPlaneFailures++
		metricControlPlaneFailures.Inc()
		s.notifyLocked(func(n NotificationInterface) { n.PermanentFailure(st) })
		return
	}
	s.controlPlaneFailedLocked(st)
}

// EgressAvailable is invoked by the egress manager on the notification
// looper once session details are stored.
func (s *Session) EgressAvailable(isRekey bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haltedLocked() {
		return
	}

	details, st := s.egressManager.GetEgressSessionDetails()
	if !st.OK() {
		s.controlPlaneFailedLocked(st)
		return
	}

	if isRekey {
		s.finishRekeyLocked(details)
		return
	}

	s.state = StateEgressSessionCreated
	s.endpointSchedule = buildReattemptSchedule(details)
	s.startRekeyTimerLocked()

	if s.cfg.BridgeOverPpn || s.cfg.IpSecDatapath {
		if err := s.crypto.SetRemoteKeyMaterial(details.EgressPointPublicValue(), details.ServerNonce()); err != nil {
			s.controlPlaneFailedLocked(status.Internal(fmt.Sprintf("bind egress key material: %v", err)))
			return
		}
	}

	s.state = StateControlPlaneConnected
	s.notifyLocked(func(n NotificationInterface) { n.ControlPlaneConnected() })

	st = s.datapath.Start(details, s.bridgeParamsLocked(details), s.suite)
	if !st.OK() {
		s.controlPlaneFailedLocked(st)
		return
	}
	s.state = StateConnected
	s.latestStatus = nil
	slog.Info("session: control plane connected",
		slog.Int("session_id", int(details.UplinkSPI())))

	if s.pendingNetworkSwitch {
		s.pendingNetworkSwitch = false
		if st := s.applyNetworkLocked(nil); !st.OK() {
			s.datapathFailedLocked(st, -1)
		}
	}
}

// EgressUnavailable is invoked by the egress manager when an asynchronous
// add-egress request fails.
func (s *Session) EgressUnavailable(st *status.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haltedLocked() {
		return
	}
	s.controlPlaneFailedLocked(st)
}

// SetNetwork informs the session of the current platform network. A nil
// network parks the datapath while keeping the tunnel device.
func (s *Session) SetNetwork(network *netinfo.NetworkInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haltedLocked() {
		return fmt.Errorf("session is in state %s", s.state)
	}

	s.networkSwitches++
	metricNetworkSwitches.Inc()
	s.resetReattemptsLocked()
	s.activeNetworkInfo = network

	if s.state != StateConnected {
		s.pendingNetworkSwitch = true
		slog.Info("session: network switch deferred until control plane connects")
		return nil
	}

	st := s.applyNetworkLocked(nil)
	if !st.OK() {
		s.datapathFailedLocked(st, -1)
	}
	return st.Err()
}

// DoRekey re-runs auth and egress with fresh key material. On success the
// datapath swaps keys in place; the tunnel is not recreated.
func (s *Session) DoRekey() {
	s.mu.Lock()
	if s.haltedLocked() {
		s.mu.Unlock()
		return
	}
	crypto, err := cryptoutil.NewSessionCrypto()
	if err != nil {
		slog.Error("session: rekey skipped", slog.Any("err", err))
		s.mu.Unlock()
		return
	}
	s.rekeyCrypto = crypto
	slog.Info("session: starting rekey")
	lp := s.looper
	s.mu.Unlock()

	lp.Post(func() { s.authenticator.Start(true) })
}

// DatapathEstablished is invoked by the datapath once traffic flows.
func (s *Session) DatapathEstablished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		slog.Debug("session: datapath established ignored",
			slog.String("state", s.state.String()))
		return
	}
	s.resetReattemptsLocked()
	s.latestStatus = nil
	slog.Info("session: datapath connected")
	s.notifyLocked(func(n NotificationInterface) { n.DatapathConnected() })
}

// DatapathFailed is invoked by the datapath on a transient failure.
func (s *Session) DatapathFailed(st *status.Status, networkFd int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haltedLocked() {
		return
	}
	s.dataPlaneFailures++
	metricDataPlaneFailures.Inc()
	s.datapathFailedLocked(st, networkFd)
}

// DatapathPermanentFailure is invoked by the datapath when retrying cannot
// help.
func (s *Session) DatapathPermanentFailure(st *status.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haltedLocked() {
		return
	}
	s.dataPlaneFailures++
	metricDataPlaneFailures.Inc()
	s.latestStatus = st
	network := s.activeNetworkInfo
	slog.Error("session: datapath permanent failure", slog.String("status", st.String()))
	s.notifyLocked(func(n NotificationInterface) { n.DatapathDisconnected(network, st) })
}

// AttemptDatapathReconnect runs one slot of the reattempt schedule: a new
// protected socket and a single endpoint handed to the datapath.
func (s *Session) AttemptDatapathReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return
	}
	if s.activeNetworkInfo == nil {
		slog.Warn("session: reconnect skipped, no active network")
		return
	}

	index := s.reattemptCount - 1
	if index < 0 {
		index = 0
	}
	if index >= len(s.endpointSchedule) {
		index = len(s.endpointSchedule) - 1
	}
	if index < 0 {
		slog.Warn("session: reconnect skipped, no endpoint candidates")
		return
	}
	endpoint := s.endpointSchedule[index]
	metricDatapathReattempts.Inc()
	slog.Info("session: reattempting datapath",
		slog.Int("attempt", s.reattemptCount), slog.String("endpoint", endpoint))

	if st := s.applyNetworkLocked([]string{endpoint}); !st.OK() {
		s.datapathFailedLocked(st, -1)
	}
}

// GetDebugInfo fills the debug surface.
func (s *Session) GetDebugInfo(d *DebugInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.State = s.state.String()
	d.Status = s.latestStatus.String()
	d.SuccessfulRekeys = s.successfulRekeys
	d.NetworkSwitches = s.networkSwitches
}

// CollectTelemetry snapshots the counters. Failure counters reset on
// collection.
func (s *Session) CollectTelemetry(t *Telemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.SuccessfulRekeys = s.successfulRekeys
	t.NetworkSwitches = s.networkSwitches
	t.ControlPlaneFailures = s.controlPlaneFailures
	t.DataPlaneFailures = s.dataPlaneFailures
	s.controlPlaneFailures = 0
	s.dataPlaneFailures = 0
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LatestStatus() *status.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestStatus
}

// CryptoPublicValue returns the public value of the keypair backing the
// current (or in-flight rekey) auth flow.
func (s *Session) CryptoPublicValue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rekeyCrypto != nil {
		return s.rekeyCrypto.PublicValue()
	}
	return s.crypto.PublicValue()
}

func (s *Session) ActiveNetworkInfo() *netinfo.NetworkInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeNetworkInfo
}

// haltedLocked reports whether events must be ignored: posted tasks may
// still arrive after a terminal transition or Stop.
func (s *Session) haltedLocked() bool {
	switch s.state {
	case StateSessionError, StatePermanentError, StateStopped:
		return true
	default:
		return false
	}
}

func (s *Session) notifyLocked(f func(NotificationInterface)) {
	n := s.notification
	if n == nil {
		return
	}
	s.looper.Post(func() { f(n) })
}

func (s *Session) controlPlaneFailedLocked(st *status.Status) {
	slog.Error("session: control plane failure", slog.String("status", st.String()))
	s.latestStatus = st
	s.state = StateSessionError
	s.controlPlaneFailures++
	metricControlPlaneFailures.Inc()
	s.notifyLocked(func(n NotificationInterface) { n.ControlPlaneDisconnected(st) })
}

func (s *Session) datapathFailedLocked(st *status.Status, networkFd int) {
	if s.reattemptCount < MaxReattempts {
		s.cancelReattemptTimerLocked()
		id, err := s.timerManager.StartTimer(s.cfg.GetReconnectDelay(), s.reattemptTimerExpired)
		if err != nil {
			slog.Error("session: failed to start reattempt timer", slog.Any("err", err))
			return
		}
		s.reattemptTimerID = id
		s.reattemptCount++
		s.latestStatus = st
		slog.Warn("session: datapath failed, reconnect scheduled",
			slog.String("status", st.String()),
			slog.Int("attempt", s.reattemptCount),
			slog.Int("network_fd", networkFd))
		s.notifyLocked(func(n NotificationInterface) { n.StatusUpdated() })
		return
	}

	slog.Error("session: datapath reattempts exhausted", slog.String("status", st.String()))
	s.resetReattemptsLocked()
	s.latestStatus = st
	network := s.activeNetworkInfo
	s.notifyLocked(func(n NotificationInterface) { n.DatapathDisconnected(network, st) })
}

func (s *Session) reattemptTimerExpired() {
	s.mu.Lock()
	s.reattemptTimerID = -1
	s.mu.Unlock()
	s.AttemptDatapathReconnect()
}

func (s *Session) resetReattemptsLocked() {
	s.reattemptCount = 0
	s.cancelReattemptTimerLocked()
}

func (s *Session) cancelReattemptTimerLocked() {
	if s.reattemptTimerID != -1 {
		s.timerManager.CancelTimer(s.reattemptTimerID)
		s.reattemptTimerID = -1
	}
}

func (s *Session) startRekeyTimerLocked() {
	if s.rekeyTimerID != -1 {
		s.timerManager.CancelTimer(s.rekeyTimerID)
		s.rekeyTimerID = -1
	}
	id, err := s.timerManager.StartTimer(s.cfg.GetRekeyInterval(), s.rekeyTimerExpired)
	if err != nil {
		slog.Error("session: failed to start rekey timer", slog.Any("err", err))
		return
	}
	s.rekeyTimerID = id
}

func (s *Session) rekeyTimerExpired() {
	s.mu.Lock()
	s.rekeyTimerID = -1
	s.mu.Unlock()
	s.DoRekey()
}

func (s *Session) ppnParamsLocked(isRekey bool) egress.PpnDataplaneRequestParams {
	crypto := s.crypto
	if isRekey && s.rekeyCrypto != nil {
		crypto = s.rekeyCrypto
	}
	material := crypto.MyKeyMaterial()

	params := egress.PpnDataplaneRequestParams{
		ClientPublicValue: material.PublicValue,
		ClientNonce:       material.Nonce,
		Suite:             s.suite,
		DownlinkSpi:       crypto.DownlinkSPI(),
		IsRekey:           isRekey,
	}
	if s.cfg.EnableBlindSigning {
		if response := s.authenticator.AuthResponse(); response != nil && len(response.BlindedTokenSignatures) > 0 {
			params.BlindTokenSignature = response.BlindedTokenSignatures[0]
		}
	}
	return params
}

func (s *Session) bridgeParamsLocked(details *egress.AddEgressResponse) datapath.BridgeTransformParams {
	params := datapath.BridgeTransformParams{SessionID: details.UplinkSPI()}
	if s.crypto.HasRemoteKeyMaterial() {
		uplink, downlink, err := s.crypto.SessionKeys()
		if err != nil {
			slog.Warn("session: no dataplane keys", slog.Any("err", err))
			return params
		}
		params.UplinkKey = uplink
		params.DownlinkKey = downlink
	}
	return params
}

func (s *Session) finishRekeyLocked(details *egress.AddEgressResponse) {
	crypto := s.rekeyCrypto
	if crypto == nil {
		slog.Warn("session: egress rekey response without pending rekey")
		return
	}
	if err := crypto.SetRemoteKeyMaterial(details.EgressPointPublicValue(), details.ServerNonce()); err != nil {
		s.rekeyCrypto = nil
		s.controlPlaneFailedLocked(status.Internal(fmt.Sprintf("bind rekey key material: %v", err)))
		return
	}

	st := s.datapath.Rekey(crypto.PublicValue(), details.EgressPointPublicValue())
	if !st.OK() {
		slog.Error("session: datapath rekey failed", slog.String("status", st.String()))
		s.rekeyCrypto = nil
		s.latestStatus = st
		s.notifyLocked(func(n NotificationInterface) { n.StatusUpdated() })
		return
	}

	s.crypto = crypto
	s.rekeyCrypto = nil
	s.successfulRekeys++
	metricRekeys.Inc()
	s.startRekeyTimerLocked()
	slog.Info("session: rekey complete", slog.Int("successful_rekeys", int(s.successfulRekeys)))
}

// applyNetworkLocked points the datapath at the active network. A nil
// endpoints slice means the full candidate list; reattempts pass exactly
// one endpoint.
func (s *Session) applyNetworkLocked(endpoints []string) *status.Status {
	details, st := s.egressManager.GetEgressSessionDetails()
	if !st.OK() {
		return st
	}
	if endpoints == nil {
		endpoints = details.EgressPointSockAddrs()
	}
	counter := int(s.networkSwitches)

	if s.activeNetworkInfo == nil {
		slog.Info("session: no active network, parking datapath")
		return s.datapath.SwitchNetwork(details.UplinkSPI(), endpoints, nil, nil, s.activeTunPipe, counter)
	}

	networkPipe, err := s.vpnService.CreateProtectedNetworkSocket(s.activeNetworkInfo)
	if err != nil {
		return status.Internal(fmt.Sprintf("create protected network socket: %v", err))
	}

	if s.activeTunPipe == nil {
		tunnelConfig, cfgErr := buildTunnelConfig(details)
		if cfgErr != nil {
			_ = networkPipe.Close()
			return status.Internal(cfgErr.Error())
		}
		tunPipe, tunErr := s.vpnService.CreateTunnel(tunnelConfig)
		if tunErr != nil {
			_ = networkPipe.Close()
			return status.Internal(fmt.Sprintf("create tunnel: %v", tunErr))
		}
		s.activeTunPipe = tunPipe
	}

	st = s.datapath.SwitchNetwork(details.UplinkSPI(), endpoints, s.activeNetworkInfo,
		networkPipe, s.activeTunPipe, counter)
	if !st.OK() {
		_ = networkPipe.Close()
		return st
	}

	// The previous socket is released only after the datapath holds the
	// replacement.
	if s.activeNetworkPipe != nil {
		_ = s.activeNetworkPipe.Close()
	}
	s.activeNetworkPipe = networkPipe
	return nil
}

// buildReattemptSchedule maps reattempt slots to endpoints: the primary
// IPv6 candidate twice, then the primary IPv4 candidate twice. A missing
// family falls back to the other one.
func buildReattemptSchedule(details *egress.AddEgressResponse) []string {
	v6 := details.IPv6SockAddrs()
	v4 := details.IPv4SockAddrs()

	var primary6, primary4 string
	switch {
	case len(v6) > 0 && len(v4) > 0:
		primary6, primary4 = v6[0], v4[0]
	case len(v6) > 0:
		primary6, primary4 = v6[0], v6[0]
	case len(v4) > 0:
		primary6, primary4 = v4[0], v4[0]
	default:
		return nil
	}
	return []string{primary6, primary6, primary4, primary4}
}

func buildTunnelConfig(details *egress.AddEgressResponse) (*netinfo.TunnelConfig, error) {
	tunnelConfig := &netinfo.TunnelConfig{
		TunnelDNSAddresses: tunnelDNSAddresses,
	}
	for _, privateIP := range details.UserPrivateIPs() {
		if privateIP.IPv4Range != "" {
			ipRange, err := parseIPRange(privateIP.IPv4Range, netinfo.IPv4)
			if err != nil {
				return nil, err
			}
			tunnelConfig.TunnelIPAddresses = append(tunnelConfig.TunnelIPAddresses, ipRange)
		}
		if privateIP.IPv6Range != "" {
			ipRange, err := parseIPRange(privateIP.IPv6Range, netinfo.IPv6)
			if err != nil {
				return nil, err
			}
			tunnelConfig.TunnelIPAddresses = append(tunnelConfig.TunnelIPAddresses, ipRange)
		}
	}
	return tunnelConfig, nil
}

func parseIPRange(cidr string, family netinfo.IPFamily) (netinfo.IPRange, error) {
	address, prefixText, ok := strings.Cut(cidr, "/")
	if !ok {
		return netinfo.IPRange{}, fmt.Errorf("invalid user private ip %q", cidr)
	}
	var prefix int
	if _, err := fmt.Sscanf(prefixText, "%d", &prefix); err != nil {
		return netinfo.IPRange{}, fmt.Errorf("invalid prefix in %q: %v", cidr, err)
	}
	return netinfo.IPRange{Family: family, IPRange: address, Prefix: prefix}, nil
}
