// Package datapath moves packets between the tun device and the egress
// point. The session drives implementations of Interface; outcomes flow
// back through the registered Handlers.
package datapath

import (
	"github.com/import-yuefeng/vpn-libraries/pkg/cryptoutil"
	"github.com/import-yuefeng/vpn-libraries/pkg/egress"
	"github.com/import-yuefeng/vpn-libraries/pkg/netinfo"
	"github.com/import-yuefeng/vpn-libraries/pkg/pipe"
	"github.com/import-yuefeng/vpn-libraries/pkg/status"
)

// Handlers is the capability set the session installs at construction.
// Implementations post these from their own goroutines; the session is
// responsible for serializing them.
type Handlers struct {
	DatapathEstablished      func()
	DatapathFailed           func(s *status.Status, networkFd int)
	DatapathPermanentFailure func(s *status.Status)
}

// BridgeTransformParams carries the key material for the bridge dataplane.
type BridgeTransformParams struct {
	SessionID   uint32
	UplinkKey   []byte
	DownlinkKey []byte
}

type Interface interface {
	RegisterNotificationHandler(h Handlers)

	// Start initializes the dataplane from the egress response. It returns
	// synchronously; packet processing begins on SwitchNetwork.
	Start(response *egress.AddEgressResponse, params BridgeTransformParams, suite cryptoutil.CryptoSuite) *status.Status

	Stop()
	IsRunning() bool

	// SwitchNetwork points the dataplane at a new network. A nil network
	// parks the dataplane without releasing the tun device. The pipes are
	// borrowed; implementations must dup any descriptor they keep past the
	// call.
	SwitchNetwork(sessionID uint32, endpoints []string, network *netinfo.NetworkInfo,
		netPipe, tunPipe *pipe.PacketPipe, counter int) *status.Status

	// Rekey swaps in fresh key material without tearing the tunnel down.
	Rekey(localPublicValue, remotePublicValue string) *status.Status
}
