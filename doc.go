/*
RTLMUX is a multichannel FM squelch scanner for rtl_tcp SDR servers. It
maintains one connection per configured receiver, discriminates the IQ
stream, and gates audio through per-channel squelch and tone detection.

Command-line Flags:

	-c, --config="rtlmux.yaml"

Sets the service configuration file.

	--log-level=""

Overrides the configured log level: debug, info, warn or error. Defaults to
the configured value, or info.

	--metrics=""

Overrides the configured prometheus listen address.

Any flag not given on the command line may be set through the environment
as RTLMUX_<NAME>, e.g. RTLMUX_CONFIG or RTLMUX_LOG_LEVEL.

Configuration:

The configuration file is yaml. Each receiver names an rtl_tcp server and
either an initial preset to activate or a list of channels to start:

	log_level: info
	metrics: ":9090"

	events:
	  format: json
	  file: events.log

	mqtt:
	  broker: tcp://localhost:1883
	  prefix: rtlmux

	receivers:
	  - name: base
	    host: 127.0.0.1
	    port: 1234
	    gain_db: 28.0
	    presets: presets.yaml
	    preset: marine16

	  - name: trunk
	    host: 127.0.0.1
	    port: 1235
	    dispatch: parallel
	    channels:
	      - id: fire-dispatch
	        freq: 453212500
	        squelch_db: -45
	        tone: {type: ctcss, hz: 123.0}
	        sink: "pipe:/tmp/fire.pcm"

Channel sinks are "null", "pipe:<path>" for 16-bit little-endian PCM to a
fifo, or "portaudio" for the default output device. Gate transitions are
written to the event log and, when a broker is configured, published over
mqtt as <prefix>/channel_opened and <prefix>/channel_closed.

Connections that fail or are lost retry with exponential backoff until the
process is interrupted.
*/
package main
