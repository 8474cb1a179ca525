package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/henvic/httpretty"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/import-yuefeng/vpn-libraries/pkg/config"
	"github.com/import-yuefeng/vpn-libraries/pkg/datapath"
	"github.com/import-yuefeng/vpn-libraries/pkg/krypton"
	"github.com/import-yuefeng/vpn-libraries/pkg/logging"
	"github.com/import-yuefeng/vpn-libraries/pkg/looper"
	"github.com/import-yuefeng/vpn-libraries/pkg/netinfo"
	"github.com/import-yuefeng/vpn-libraries/pkg/status"
	"github.com/import-yuefeng/vpn-libraries/pkg/timers"
	"github.com/import-yuefeng/vpn-libraries/pkg/vpnservice"
)

var (
	app = kingpin.New("krypton", "Client-side VPN tunnel.")

	commandStart    = app.Command("start", "Start the tunnel")
	flagConfig      = commandStart.Flag("config", "Path to the configuration file").Required().ExistingFile()
	flagNetworkType = commandStart.Flag("network-type", "Initial network type (cellular, wifi, ethernet)").Default("wifi").String()
	flagNetworkID   = commandStart.Flag("network-id", "Initial network id").Default("0").Uint32()
)

func main() {
	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case commandStart.FullCommand():
		actionStart(*flagConfig, *flagNetworkType, *flagNetworkID)
	}
}

// staticOAuth serves a token from the configuration; platform embedders
// plug in a live account token source instead.
type staticOAuth struct {
	token string
}

func (o *staticOAuth) GetOAuthToken() (string, error) {
	return o.token, nil
}

func actionStart(configPath, networkTypeText string, networkID uint32) {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("error loading configuration", slog.Any("err", err))
		os.Exit(1)
		return
	}

	logging.Init(cfg.Logging)

	networkType, err := netinfo.ParseNetworkType(networkTypeText)
	if err != nil {
		slog.Error("invalid network type", slog.Any("err", err))
		os.Exit(1)
		return
	}

	httpClient := http.DefaultClient
	if cfg.Krypton.DebugHTTP {
		httpLogger := &httpretty.Logger{
			Time:           true,
			TLS:            true,
			RequestHeader:  true,
			RequestBody:    true,
			ResponseHeader: true,
			ResponseBody:   true,
			Formatters:     []httpretty.Formatter{&httpretty.JSONFormatter{}},
		}
		httpClient = &http.Client{
			Transport: httpLogger.RoundTripper(http.DefaultTransport),
		}
	}

	notificationThread := looper.New("krypton notification")
	defer notificationThread.Stop()

	systemTimer := timers.NewSystemTimer()
	timerManager := timers.NewManager(systemTimer)
	systemTimer.SetExpiredFunc(timerManager.TimerExpired)

	var oauth krypton.OAuth
	if cfg.Krypton.OAuthToken != "" {
		oauth = &staticOAuth{token: cfg.Krypton.OAuthToken}
	}

	vpnService := vpnservice.NewLinuxVpnService(cfg.Krypton.GetTunName(), cfg.Krypton.GetProtectFwmark())
	k := krypton.New(cfg.Krypton, httpClient, oauth,
		func() datapath.Interface { return datapath.NewBridgeDatapath() },
		vpnService, timerManager, notificationThread)
	k.RegisterNotificationHandler(&loggingNotification{})

	if cfg.MetricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				slog.Error("metrics listener failed", slog.Any("err", err))
			}
		}()
	}

	if err := k.Start(); err != nil {
		slog.Error("error starting krypton", slog.Any("err", err))
		os.Exit(1)
		return
	}
	if err := k.SetNetwork(&netinfo.NetworkInfo{
		NetworkID:   networkID,
		NetworkType: networkType,
	}); err != nil {
		slog.Error("error setting initial network", slog.Any("err", err))
	}

	slog.Info("started")

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	k.Stop()

	var debugInfo krypton.DebugInfo
	k.GetDebugInfo(&debugInfo)
	slog.Info("stopped",
		slog.String("reconnector_state", debugInfo.Reconnector.State),
		slog.Int("session_restarts", int(debugInfo.Reconnector.SessionRestartCounter)),
		slog.String("session_state", debugInfo.Session.State),
		slog.Int("successful_rekeys", int(debugInfo.Session.SuccessfulRekeys)),
		slog.Int("network_switches", int(debugInfo.Session.NetworkSwitches)))
}

// loggingNotification reports lifecycle events to the log; a platform
// embedder would surface them to the UI instead.
type loggingNotification struct{}

func (n *loggingNotification) ControlPlaneConnected() {
	slog.Info("control plane connected")
}

func (n *loggingNotification) StatusUpdated() {
	slog.Debug("session status updated")
}

func (n *loggingNotification) ControlPlaneDisconnected(s *status.Status) {
	slog.Warn("control plane disconnected", slog.String("status", s.String()))
}

func (n *loggingNotification) PermanentFailure(s *status.Status) {
	slog.Error("permanent failure", slog.String("status", s.String()))
}

func (n *loggingNotification) DatapathConnected() {
	slog.Info("datapath connected")
}

func (n *loggingNotification) DatapathDisconnected(network *netinfo.NetworkInfo, s *status.Status) {
	networkName := "none"
	if network != nil {
		networkName = network.NetworkType.String()
	}
	slog.Warn("datapath disconnected",
		slog.String("network", networkName), slog.String("status", s.String()))
}
