package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRekeys = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "krypton",
		Subsystem: "session",
		Name:      "rekeys_total",
		Help:      "Successful rekeys.",
	})
	metricNetworkSwitches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "krypton",
		Subsystem: "session",
		Name:      "network_switches_total",
		Help:      "Accepted network switches.",
	})
	metricDatapathReattempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "krypton",
		Subsystem: "session",
		Name:      "datapath_reattempts_total",
		Help:      "Datapath reconnect attempts after transient failures.",
	})
	metricControlPlaneFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "krypton",
		Subsystem: "session",
		Name:      "control_plane_failures_total",
		Help:      "Auth and egress control-plane failures.",
	})
	metricDataPlaneFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "krypton",
		Subsystem: "session",
		Name:      "data_plane_failures_total",
		Help:      "Datapath failures reported to the session.",
	})
)
