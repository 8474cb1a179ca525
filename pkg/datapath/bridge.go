package datapath

import (
	"crypto/cipher"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/import-yuefeng/vpn-libraries/pkg/cryptoutil"
	"github.com/import-yuefeng/vpn-libraries/pkg/egress"
	"github.com/import-yuefeng/vpn-libraries/pkg/netinfo"
	"github.com/import-yuefeng/vpn-libraries/pkg/pipe"
	"github.com/import-yuefeng/vpn-libraries/pkg/status"
)

const bridgeMTU = 1500

// BridgeDatapath implements the bridge dataplane: tun frames sealed with
// per-direction keys and carried over UDP to the egress point.
type BridgeDatapath struct {
	mu sync.Mutex

	handlers Handlers
	suite    cryptoutil.CryptoSuite

	running   bool
	sessionID uint32
	endpoints []string

	uplink   cipher.AEAD
	downlink cipher.AEAD

	// Owned dups of the borrowed pipes handed over in SwitchNetwork.
	tunFile *os.File
	conn    *net.UDPConn

	networkFd   int
	generation  uint64
	established atomic.Bool
	sendCounter atomic.Uint64
}

func NewBridgeDatapath() *BridgeDatapath {
	return &BridgeDatapath{networkFd: -1}
}

func (d *BridgeDatapath) RegisterNotificationHandler(h Handlers) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = h
}

func (d *BridgeDatapath) Start(response *egress.AddEgressResponse, params BridgeTransformParams, suite cryptoutil.CryptoSuite) *status.Status {
	if response == nil {
		return status.InvalidArgument("no egress response")
	}

	uplink, err := newAEAD(params.UplinkKey)
	if err != nil {
		return status.InvalidArgument(fmt.Sprintf("uplink key: %v", err))
	}
	downlink, err := newAEAD(params.DownlinkKey)
	if err != nil {
		return status.InvalidArgument(fmt.Sprintf("downlink key: %v", err))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.suite = suite
	d.sessionID = params.SessionID
	d.endpoints = response.EgressPointSockAddrs()
	d.uplink = uplink
	d.downlink = downlink
	d.running = true

	slog.Info("datapath: started",
		slog.Int("endpoints", len(d.endpoints)), slog.String("suite", suite.String()))
	return nil
}

func (d *BridgeDatapath) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.generation++
	d.closeLocked()
}

func (d *BridgeDatapath) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *BridgeDatapath) SwitchNetwork(sessionID uint32, endpoints []string, network *netinfo.NetworkInfo,
	netPipe, tunPipe *pipe.PacketPipe, counter int) *status.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return status.Internal("datapath is not running")
	}

	d.sessionID = sessionID
	if len(endpoints) > 0 {
		d.endpoints = endpoints
	}
	d.generation++
	d.established.Store(false)

	if network == nil {
		// No network: park the dataplane, keep the tun device.
		if d.conn != nil {
			_ = d.conn.Close()
			d.conn = nil
		}
		d.networkFd = -1
		slog.Info("datapath: parked, no active network", slog.Int("counter", counter))
		return nil
	}

	if netPipe == nil || tunPipe == nil {
		return status.InvalidArgument("missing network or tun pipe")
	}

	if d.tunFile == nil {
		tunFd, err := tunPipe.Fd()
		if err != nil {
			return status.Internal(fmt.Sprintf("tun pipe: %v", err))
		}
		dupFd, err := unix.Dup(tunFd)
		if err != nil {
			return status.Internal(fmt.Sprintf("dup tun fd: %v", err))
		}
		d.tunFile = os.NewFile(uintptr(dupFd), "krypton-tun")
	}

	netFd, err := netPipe.Fd()
	if err != nil {
		return status.Internal(fmt.Sprintf("network pipe: %v", err))
	}
	conn, err := connectEgress(netFd, d.endpoints)
	if err != nil {
		return status.Unavailable(err.Error())
	}

	if d.conn != nil {
		_ = d.conn.Close()
	}
	d.conn = conn
	d.networkFd = netFd

	generation := d.generation
	go d.uplinkLoop(d.tunFile, conn, generation)
	go d.downlinkLoop(d.tunFile, conn, generation)
	go d.sendProbe(conn)

	slog.Info("datapath: switched network",
		slog.String("network_type", network.NetworkType.String()),
		slog.String("endpoint", conn.RemoteAddr().String()),
		slog.Int("counter", counter))
	return nil
}

func (d *BridgeDatapath) Rekey(localPublicValue, remotePublicValue string) *status.Status {
	d.mu.Lock()
	conn := d.conn
	uplink := d.uplink
	d.mu.Unlock()
	if uplink == nil {
		return status.Internal("datapath is not keyed")
	}

	// Announce the fresh public values inline, in a rekey frame sealed
	// under the current uplink key; the tunnel is not recreated. The
	// datapath keeps the uplink and downlink keys it was started with: it
	// does not derive or install new ones.
	payload := []byte(localPublicValue + "\x00" + remotePublicValue)
	if conn != nil {
		frame := sealFrame(uplink, frameRekey, d.sendCounter.Add(1), payload)
		if _, err := conn.Write(frame); err != nil {
			return status.Unavailable(fmt.Sprintf("send rekey frame: %v", err))
		}
	}
	slog.Info("datapath: rekey announced")
	return nil
}

// connectEgress binds a UDP socket on the protected descriptor's network
// and connects it to the first usable endpoint.
func connectEgress(networkFd int, endpoints []string) (*net.UDPConn, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no egress endpoints")
	}

	dupFd, err := unix.Dup(networkFd)
	if err != nil {
		return nil, fmt.Errorf("dup network fd: %w", err)
	}
	file := os.NewFile(uintptr(dupFd), "krypton-net")
	defer file.Close()

	packetConn, err := net.FilePacketConn(file)
	if err != nil {
		return nil, fmt.Errorf("wrap network socket: %w", err)
	}
	udpConn, ok := packetConn.(*net.UDPConn)
	if !ok {
		_ = packetConn.Close()
		return nil, fmt.Errorf("network socket is not UDP")
	}

	var lastErr error
	for _, endpoint := range endpoints {
		addr, err := net.ResolveUDPAddr("udp", endpoint)
		if err != nil {
			lastErr = fmt.Errorf("resolve egress endpoint %s: %w", endpoint, err)
			continue
		}
		// Connect filters inbound traffic to the selected egress.
		rawConn, err := udpConn.SyscallConn()
		if err != nil {
			lastErr = err
			continue
		}
		var connectErr error
		err = rawConn.Control(func(fd uintptr) {
			connectErr = unix.Connect(int(fd), sockaddrFromUDP(addr))
		})
		if err == nil && connectErr == nil {
			return udpConn, nil
		}
		if connectErr != nil {
			lastErr = fmt.Errorf("connect %s: %w", endpoint, connectErr)
		} else {
			lastErr = err
		}
	}
	_ = udpConn.Close()
	return nil, fmt.Errorf("no usable egress endpoint: %w", lastErr)
}

func sockaddrFromUDP(addr *net.UDPAddr) unix.Sockaddr {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return sa
}

func (d *BridgeDatapath) sendProbe(conn *net.UDPConn) {
	d.mu.Lock()
	uplink := d.uplink
	d.mu.Unlock()

	frame := sealFrame(uplink, frameProbe, d.sendCounter.Add(1), nil)
	if _, err := conn.Write(frame); err != nil {
		slog.Warn("datapath: probe send failed", slog.Any("err", err))
	}
}

func (d *BridgeDatapath) uplinkLoop(tun *os.File, conn *net.UDPConn, generation uint64) {
	buffer := make([]byte, bridgeMTU)
	for {
		n, err := tun.Read(buffer)
		if err != nil {
			d.loopFailed(generation, fmt.Sprintf("tun read: %v", err))
			return
		}

		d.mu.Lock()
		uplink := d.uplink
		d.mu.Unlock()

		frame := sealFrame(uplink, frameData, d.sendCounter.Add(1), buffer[:n])
		if _, err := conn.Write(frame); err != nil {
			d.loopFailed(generation, fmt.Sprintf("egress write: %v", err))
			return
		}
	}
}

func (d *BridgeDatapath) downlinkLoop(tun *os.File, conn *net.UDPConn, generation uint64) {
	buffer := make([]byte, bridgeMTU+frameHeaderLength+64)
	for {
		n, err := conn.Read(buffer)
		if err != nil {
			d.loopFailed(generation, fmt.Sprintf("egress read: %v", err))
			return
		}

		d.mu.Lock()
		downlink := d.downlink
		handlers := d.handlers
		d.mu.Unlock()

		frameType, payload, err := openFrame(downlink, buffer[:n])
		if err != nil {
			slog.Debug("datapath: dropping invalid frame", slog.Any("err", err))
			continue
		}

		if !d.established.Load() {
			d.established.Store(true)
			if handlers.DatapathEstablished != nil {
				handlers.DatapathEstablished()
			}
		}

		if frameType != frameData || len(payload) == 0 {
			continue
		}
		if _, err := tun.Write(payload); err != nil {
			d.loopFailed(generation, fmt.Sprintf("tun write: %v", err))
			return
		}
	}
}

// loopFailed reports a loop error once per generation; stale generations
// went away with a deliberate switch or stop.
func (d *BridgeDatapath) loopFailed(generation uint64, message string) {
	d.mu.Lock()
	stale := generation != d.generation || !d.running
	handlers := d.handlers
	networkFd := d.networkFd
	d.mu.Unlock()
	if stale {
		return
	}
	if handlers.DatapathFailed != nil {
		handlers.DatapathFailed(status.Internal(message), networkFd)
	}
}

func (d *BridgeDatapath) closeLocked() {
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
	if d.tunFile != nil {
		_ = d.tunFile.Close()
		d.tunFile = nil
	}
	d.networkFd = -1
}
