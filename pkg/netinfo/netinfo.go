// Package netinfo holds the platform network and tunnel descriptions
// exchanged between the session, the datapath and the VPN service.
package netinfo

import (
	"fmt"
	"strings"
)

type NetworkType int

const (
	NetworkTypeUnknown NetworkType = iota
	NetworkTypeCellular
	NetworkTypeWifi
	NetworkTypeEthernet
)

func (t NetworkType) String() string {
	switch t {
	case NetworkTypeCellular:
		return "CELLULAR"
	case NetworkTypeWifi:
		return "WIFI"
	case NetworkTypeEthernet:
		return "ETHERNET"
	default:
		return "UNKNOWN"
	}
}

func ParseNetworkType(s string) (NetworkType, error) {
	switch strings.ToUpper(s) {
	case "CELLULAR":
		return NetworkTypeCellular, nil
	case "WIFI":
		return NetworkTypeWifi, nil
	case "ETHERNET":
		return NetworkTypeEthernet, nil
	case "", "UNKNOWN":
		return NetworkTypeUnknown, nil
	default:
		return NetworkTypeUnknown, fmt.Errorf("unknown network type: %s", s)
	}
}

// NetworkInfo identifies a platform network. NetworkID is zero when the
// platform cannot identify the network.
type NetworkInfo struct {
	NetworkID   uint32      `json:"network_id,omitempty"`
	NetworkType NetworkType `json:"network_type"`
}

func (n *NetworkInfo) Equal(other *NetworkInfo) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.NetworkID == other.NetworkID && n.NetworkType == other.NetworkType
}

type IPFamily int

const (
	IPv4 IPFamily = iota
	IPv6
)

func (f IPFamily) String() string {
	if f == IPv6 {
		return "IPV6"
	}
	return "IPV4"
}

// IPRange is an address plus prefix length, e.g. 10.2.2.123 with prefix 32.
type IPRange struct {
	Family  IPFamily `json:"ip_family"`
	IPRange string   `json:"ip_range"`
	Prefix  int      `json:"prefix"`
}

// TunnelConfig describes the tun device handed to the VPN service.
type TunnelConfig struct {
	TunnelIPAddresses  []IPRange `json:"tunnel_ip_addresses"`
	TunnelDNSAddresses []IPRange `json:"tunnel_dns_addresses"`
	IsMetered          bool      `json:"is_metered"`
}
