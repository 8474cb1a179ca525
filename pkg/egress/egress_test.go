package egress

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/import-yuefeng/vpn-libraries/pkg/auth"
	"github.com/import-yuefeng/vpn-libraries/pkg/looper"
	"github.com/import-yuefeng/vpn-libraries/pkg/status"
)

const fakeAddEgressBody = `{
  "ppn_dataplane": {
    "user_private_ip": [{
      "ipv4_range": "10.2.2.123/32",
      "ipv6_range": "fec2:0001::3/64"
    }],
    "egress_point_sock_addr": ["64.9.240.165:2153", "[2604:ca00:f001:4::5]:2153"],
    "egress_point_public_value": "a22j+91TxHtS5qa625KCD5ybsyzPR1wkTDWHV2qSQQc=",
    "server_nonce": "Uzt2lEzyvZYzjLAP3E+dAA==",
    "uplink_spi": 1234,
    "expiry": "2020-08-07T01:06:13+00:00"
  }
}`

func TestDecodeAddEgressResponse(t *testing.T) {
	response, err := DecodeAddEgressResponse([]byte(fakeAddEgressBody))
	require.NoError(t, err)

	require.Equal(t, []string{"64.9.240.165:2153", "[2604:ca00:f001:4::5]:2153"},
		response.EgressPointSockAddrs())
	require.Equal(t, []string{"[2604:ca00:f001:4::5]:2153"}, response.IPv6SockAddrs())
	require.Equal(t, []string{"64.9.240.165:2153"}, response.IPv4SockAddrs())
	require.Equal(t, uint32(1234), response.UplinkSPI())
	require.Equal(t, "a22j+91TxHtS5qa625KCD5ybsyzPR1wkTDWHV2qSQQc=", response.EgressPointPublicValue())
	require.Equal(t, "Uzt2lEzyvZYzjLAP3E+dAA==", response.ServerNonce())

	require.Len(t, response.UserPrivateIPs(), 1)
	require.Equal(t, "10.2.2.123/32", response.UserPrivateIPs()[0].IPv4Range)
	require.Equal(t, "fec2:0001::3/64", response.UserPrivateIPs()[0].IPv6Range)

	expiry, err := time.Parse(time.RFC3339, "2020-08-07T01:06:13+00:00")
	require.NoError(t, err)
	require.True(t, response.Expiry().Equal(expiry))
}

func TestDecodeRejectsMissingDataplane(t *testing.T) {
	_, err := DecodeAddEgressResponse([]byte(`{}`))
	require.Error(t, err)
}

func TestDecodeRejectsMissingEndpoints(t *testing.T) {
	_, err := DecodeAddEgressResponse([]byte(`{"ppn_dataplane": {"expiry": "2020-08-07T01:06:13+00:00"}}`))
	require.Error(t, err)
}

type egressRecorder struct {
	mu        sync.Mutex
	available []bool
	failures  []*status.Status
}

func (r *egressRecorder) handlers() Handlers {
	return Handlers{
		EgressAvailable: func(isRekey bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.available = append(r.available, isRekey)
		},
		EgressUnavailable: func(s *status.Status) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.failures = append(r.failures, s)
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestGetEgressNodeForBridge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fakeAddEgressBody))
	}))
	defer server.Close()

	lp := looper.New("egress test")
	defer lp.Stop()

	manager := NewManager(server.URL, server.Client(), lp)
	recorder := &egressRecorder{}
	manager.RegisterHandlers(recorder.handlers())

	st := manager.GetEgressNodeForBridge(&auth.AuthAndSignResponse{JwtToken: "some_token"})
	require.True(t, st.OK())

	waitFor(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		return len(recorder.available) == 1
	})
	require.False(t, recorder.available[0])

	details, st := manager.GetEgressSessionDetails()
	require.True(t, st.OK())
	require.Equal(t, uint32(1234), details.UplinkSPI())
}

func TestGetEgressNodeForBridgeRejectsNilAuth(t *testing.T) {
	lp := looper.New("egress test")
	defer lp.Stop()

	manager := NewManager("http://brass.invalid", http.DefaultClient, lp)
	st := manager.GetEgressNodeForBridge(nil)
	require.Equal(t, codes.InvalidArgument, st.Code())
}

func TestAddEgressFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Add Egress Failure", http.StatusNotFound)
	}))
	defer server.Close()

	lp := looper.New("egress test")
	defer lp.Stop()

	manager := NewManager(server.URL, server.Client(), lp)
	recorder := &egressRecorder{}
	manager.RegisterHandlers(recorder.handlers())

	st := manager.GetEgressNodeForBridge(&auth.AuthAndSignResponse{JwtToken: "some_token"})
	require.True(t, st.OK())

	waitFor(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		return len(recorder.failures) == 1
	})
	require.Equal(t, codes.NotFound, recorder.failures[0].Code())

	_, st = manager.GetEgressSessionDetails()
	require.False(t, st.OK())
}

func TestGetEgressNodeForPpnIpSec(t *testing.T) {
	var gotBody ppnRequestWire
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeJSONBody(t, r, &gotBody)
		_, _ = w.Write([]byte(fakeAddEgressBody))
	}))
	defer server.Close()

	lp := looper.New("egress test")
	defer lp.Stop()

	manager := NewManager(server.URL, server.Client(), lp)
	recorder := &egressRecorder{}
	manager.RegisterHandlers(recorder.handlers())

	st := manager.GetEgressNodeForPpnIpSec(PpnDataplaneRequestParams{
		ClientPublicValue: "client-public",
		ClientNonce:       "client-nonce",
		DownlinkSpi:       4321,
		IsRekey:           true,
	})
	require.True(t, st.OK())

	waitFor(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		return len(recorder.available) == 1
	})
	require.True(t, recorder.available[0])
	require.Equal(t, "client-public", gotBody.Ppn.ClientPublicValue)
	require.Equal(t, uint32(4321), gotBody.Ppn.DownlinkSpi)
	require.True(t, gotBody.Ppn.Rekey)
}

func decodeJSONBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r.Body).Decode(v))
}
