package receiver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksReadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtlmux_iq_blocks_read_total",
		Help: "IQ blocks read from the rtl_tcp data stream.",
	}, []string{"receiver"})

	emptyReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtlmux_empty_reads_total",
		Help: "Reads that returned no data and degraded to wait-and-retry.",
	}, []string{"receiver"})

	signalPower = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rtlmux_signal_power_dbfs",
		Help: "Aggregate block power of the raw IQ stream in dBFS.",
	}, []string{"receiver"})

	gateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtlmux_gate_transitions_total",
		Help: "Channel gate transitions by direction.",
	}, []string{"receiver", "channel", "state"})

	processingFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtlmux_channel_faults_total",
		Help: "Per-block channel processing faults caught by the fan-out.",
	}, []string{"receiver", "channel"})

	audioWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtlmux_audio_write_errors_total",
		Help: "Audio sink write failures.",
	}, []string{"receiver", "channel"})
)
