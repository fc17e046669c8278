// RTLMUX - A multichannel FM squelch scanner for rtl_tcp SDR servers.
// Copyright (C) 2026 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/bemasher/rtlmux/event"
	"github.com/bemasher/rtlmux/eventlog"
	"github.com/bemasher/rtlmux/preset"
	"github.com/bemasher/rtlmux/receiver"
)

var (
	buildDate  string // date -u '+%Y-%m-%d'
	commitHash string // git rev-parse HEAD
)

func main() {
	flag.Parse()
	EnvOverride()

	if *version {
		fmt.Println("Build Date:", buildDate)
		fmt.Println("Commit:", commitHash)
		os.Exit(0)
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("load configuration")
	}
	if err := SetupLogging(cfg); err != nil {
		log.WithError(err).Fatal("setup logging")
	}

	bus := event.NewBus()

	if err := setupEventLog(cfg.Events, bus); err != nil {
		log.WithError(err).Fatal("setup event log")
	}

	if cfg.MQTT.Broker != "" {
		bridge, err := event.NewMQTTBridge(cfg.MQTT.Broker, "rtlmux", cfg.MQTT.Prefix)
		if err != nil {
			log.WithError(err).Fatal("connect mqtt broker")
		}
		bridge.Attach(bus)
		defer bridge.Close()
	}

	if cfg.Metrics != "" {
		go serveMetrics(cfg.Metrics)
	}

	stop := make(chan struct{})

	var wg sync.WaitGroup
	for _, rc := range cfg.Receivers {
		wg.Add(1)
		go func(rc ReceiverConfig) {
			defer wg.Done()
			runReceiver(rc, bus, stop)
		}(rc)
	}

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	<-sigint

	log.Info("shutting down")
	close(stop)
	wg.Wait()
}

func setupEventLog(cfg EventsConfig, bus *event.Bus) error {
	out := os.Stdout
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		out = f
	}

	enc, err := eventlog.NewEncoder(cfg.Format, out)
	if err != nil {
		return err
	}
	eventlog.NewLogger(enc).Attach(bus)
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics listener failed")
	}
}

// runReceiver owns one receiver's lifecycle: connect, start the configured
// channels, and reconnect with backoff whenever the stream is lost. Exits
// only on shutdown.
func runReceiver(rc ReceiverConfig, bus *event.Bus, stop <-chan struct{}) {
	logger := log.WithField("receiver", rc.Name)

	dispatch, err := rc.DispatchPolicy()
	if err != nil {
		logger.WithError(err).Error("receiver misconfigured")
		return
	}

	cfg := receiver.Config{
		Name:          rc.Name,
		Host:          rc.Host,
		Port:          rc.Port,
		GainDB:        rc.GainDB,
		SampleRate:    rc.SampleRate,
		Dispatch:      dispatch,
		SpectrumEvery: rc.SpectrumEvery,
	}
	if rc.Presets != "" {
		cfg.Store = preset.NewFileStore(rc.Presets)
	}

	r, err := receiver.New(cfg, bus)
	if err != nil {
		logger.WithError(err).Error("receiver misconfigured")
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	for {
		if err := r.Connect(); err != nil {
			wait := bo.NextBackOff()
			logger.WithError(err).WithField("retry_in", wait).Warn("connect failed")
			select {
			case <-stop:
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		if err := startChannels(r, rc); err != nil {
			logger.WithError(err).Error("start channels")
		}

		select {
		case <-stop:
			r.Disconnect()
			return
		case <-r.Done():
			// Lost stream. The receiver already stopped its loop; release
			// what remains and dial again.
			r.Disconnect()
			select {
			case <-stop:
				return
			case <-time.After(bo.NextBackOff()):
			}
		}
	}
}

// startChannels applies the receiver's configured starting state: either an
// exclusive preset activation or an explicit channel list.
func startChannels(r *receiver.Receiver, rc ReceiverConfig) error {
	if rc.Preset != "" {
		return r.SetChannel(rc.Preset)
	}

	for _, cc := range rc.Channels {
		tone, err := cc.Tone.Spec()
		if err != nil {
			return err
		}
		_, err = r.AddChannel(receiver.ChannelConfig{
			ID:           cc.ID,
			Frequency:    cc.Frequency,
			SquelchDB:    cc.SquelchDB,
			HysteresisDB: cc.HysteresisDB,
			Tone:         tone,
			Sink:         cc.Sink,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
