//go:build linux

package vpnservice

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/import-yuefeng/vpn-libraries/pkg/netinfo"
	"github.com/import-yuefeng/vpn-libraries/pkg/pipe"
)

// LinuxVpnService implements Interface with a /dev/net/tun device and
// SO_MARK-protected sockets. Routing rules that exempt the fwmark are the
// embedder's responsibility.
type LinuxVpnService struct {
	tunName string
	fwmark  uint32
}

func NewLinuxVpnService(tunName string, fwmark uint32) *LinuxVpnService {
	return &LinuxVpnService{tunName: tunName, fwmark: fwmark}
}

func (s *LinuxVpnService) CreateTunnel(config *netinfo.TunnelConfig) (*pipe.PacketPipe, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/net/tun: %w", err)
	}

	ifr, err := unix.NewIfreq(s.tunName)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tun name %q: %w", s.tunName, err)
	}
	ifr.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("create tun device %s: %w", s.tunName, err)
	}

	if err := s.configureTun(config); err != nil {
		unix.Close(fd)
		return nil, err
	}

	slog.Info("vpnservice: tun device created", slog.String("name", s.tunName))
	return pipe.NewFdPipe(fd), nil
}

func (s *LinuxVpnService) configureTun(config *netinfo.TunnelConfig) error {
	link, err := netlink.LinkByName(s.tunName)
	if err != nil {
		return fmt.Errorf("get tun link: %w", err)
	}

	for _, addr := range config.TunnelIPAddresses {
		ip := net.ParseIP(addr.IPRange)
		if ip == nil {
			return fmt.Errorf("invalid tunnel address: %s", addr.IPRange)
		}
		bits := 32
		if addr.Family == netinfo.IPv6 {
			bits = 128
		}
		nlAddr := &netlink.Addr{IPNet: &net.IPNet{
			IP:   ip,
			Mask: net.CIDRMask(addr.Prefix, bits),
		}}
		if err := netlink.AddrAdd(link, nlAddr); err != nil {
			return fmt.Errorf("add tunnel address %s/%d: %w", addr.IPRange, addr.Prefix, err)
		}
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("set tun link up: %w", err)
	}
	return nil
}

// CreateProtectedNetworkSocket returns a dual-stack UDP socket carrying the
// protect fwmark. The socket is not bound to a particular interface; the
// network info is only logged.
func (s *LinuxVpnService) CreateProtectedNetworkSocket(network *netinfo.NetworkInfo) (*pipe.PacketPipe, error) {
	if network == nil {
		return nil, fmt.Errorf("no network info")
	}

	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("create network socket: %w", err)
	}
	// Dual-stack socket, the egress may be v4 or v6.
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("clear v6only: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, int(s.fwmark)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set protect mark: %w", err)
	}

	slog.Debug("vpnservice: protected socket created",
		slog.String("network_type", network.NetworkType.String()),
		slog.Int("network_id", int(network.NetworkID)))
	return pipe.NewFdPipe(fd), nil
}
