// Package vpnservice is the platform boundary: it creates the tun device
// the tunnel presents to the host, and protected sockets whose traffic
// bypasses the VPN routes.
package vpnservice

import (
	"github.com/import-yuefeng/vpn-libraries/pkg/netinfo"
	"github.com/import-yuefeng/vpn-libraries/pkg/pipe"
)

type Interface interface {
	// CreateTunnel creates the tun device described by config and returns
	// a pipe owning its descriptor.
	CreateTunnel(config *netinfo.TunnelConfig) (*pipe.PacketPipe, error)

	// CreateProtectedNetworkSocket returns a pipe owning a UDP socket bound
	// to the given network whose traffic is exempt from VPN routing.
	CreateProtectedNetworkSocket(network *netinfo.NetworkInfo) (*pipe.PacketPipe, error)
}
