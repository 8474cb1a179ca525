package egress

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PrivateIP is one user_private_ip entry from the add-egress response.
// Either range may be empty.
type PrivateIP struct {
	IPv4Range string `json:"ipv4_range,omitempty"`
	IPv6Range string `json:"ipv6_range,omitempty"`
}

type ppnDataplane struct {
	UserPrivateIP          []PrivateIP `json:"user_private_ip"`
	EgressPointSockAddr    []string    `json:"egress_point_sock_addr"`
	EgressPointPublicValue string      `json:"egress_point_public_value"`
	ServerNonce            string      `json:"server_nonce"`
	UplinkSpi              uint32      `json:"uplink_spi"`
	Expiry                 string      `json:"expiry"`
}

type addEgressWire struct {
	PpnDataplane *ppnDataplane `json:"ppn_dataplane"`
}

// AddEgressResponse is the parsed brass add-egress response. Immutable
// once decoded; shared between the session and the datapath.
type AddEgressResponse struct {
	userPrivateIPs []PrivateIP
	sockAddrs      []string
	publicValue    string
	serverNonce    string
	uplinkSPI      uint32
	expiry         time.Time
}

func DecodeAddEgressResponse(body []byte) (*AddEgressResponse, error) {
	var wire addEgressWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode add-egress response: %w", err)
	}
	if wire.PpnDataplane == nil {
		return nil, fmt.Errorf("add-egress response has no ppn_dataplane")
	}
	dataplane := wire.PpnDataplane
	if len(dataplane.EgressPointSockAddr) == 0 {
		return nil, fmt.Errorf("add-egress response has no egress_point_sock_addr")
	}

	expiry, err := time.Parse(time.RFC3339, dataplane.Expiry)
	if err != nil {
		return nil, fmt.Errorf("parse add-egress expiry: %w", err)
	}

	return &AddEgressResponse{
		userPrivateIPs: dataplane.UserPrivateIP,
		sockAddrs:      dataplane.EgressPointSockAddr,
		publicValue:    dataplane.EgressPointPublicValue,
		serverNonce:    dataplane.ServerNonce,
		uplinkSPI:      dataplane.UplinkSpi,
		expiry:         expiry,
	}, nil
}

func (r *AddEgressResponse) UserPrivateIPs() []PrivateIP { return r.userPrivateIPs }

// EgressPointSockAddrs returns the host:port candidates in wire order.
func (r *AddEgressResponse) EgressPointSockAddrs() []string { return r.sockAddrs }

func (r *AddEgressResponse) EgressPointPublicValue() string { return r.publicValue }

func (r *AddEgressResponse) ServerNonce() string { return r.serverNonce }

func (r *AddEgressResponse) UplinkSPI() uint32 { return r.uplinkSPI }

func (r *AddEgressResponse) Expiry() time.Time { return r.expiry }

// IPv6SockAddrs returns the candidates with a bracketed IPv6 host.
func (r *AddEgressResponse) IPv6SockAddrs() []string {
	var addrs []string
	for _, addr := range r.sockAddrs {
		if strings.Contains(addr, "[") {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

func (r *AddEgressResponse) IPv4SockAddrs() []string {
	var addrs []string
	for _, addr := range r.sockAddrs {
		if !strings.Contains(addr, "[") {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}
