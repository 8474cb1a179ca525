package session

import (
	"github.com/import-yuefeng/vpn-libraries/pkg/netinfo"
	"github.com/import-yuefeng/vpn-libraries/pkg/status"
)

type State int

const (
	StateInitialized State = iota
	StateEgressSessionCreated
	StateControlPlaneConnected
	StateConnected
	StateSessionError
	StatePermanentError
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "kInitialized"
	case StateEgressSessionCreated:
		return "kEgressSessionCreated"
	case StateControlPlaneConnected:
		return "kControlPlaneConnected"
	case StateConnected:
		return "kConnected"
	case StateSessionError:
		return "kSessionError"
	case StatePermanentError:
		return "kPermanentError"
	case StateStopped:
		return "kStopped"
	default:
		return "kUnknown"
	}
}

// NotificationInterface is the embedder callback surface. All callbacks
// run on the notification looper.
type NotificationInterface interface {
	ControlPlaneConnected()
	StatusUpdated()
	ControlPlaneDisconnected(s *status.Status)
	PermanentFailure(s *status.Status)
	DatapathConnected()
	DatapathDisconnected(network *netinfo.NetworkInfo, s *status.Status)
}

// DebugInfo is the session's debug surface.
type DebugInfo struct {
	State            string `json:"state"`
	Status           string `json:"status"`
	SuccessfulRekeys uint32 `json:"successful_rekeys"`
	NetworkSwitches  uint32 `json:"network_switches"`
}

// Telemetry is a snapshot of session counters. Failure counters reset on
// collection; the rekey and switch counters are cumulative.
type Telemetry struct {
	SuccessfulRekeys     uint32 `json:"successful_rekeys"`
	NetworkSwitches      uint32 `json:"network_switches"`
	ControlPlaneFailures uint32 `json:"control_plane_failures"`
	DataPlaneFailures    uint32 `json:"data_plane_failures"`
}
