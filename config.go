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
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bemasher/rtlmux/gate"
	"github.com/bemasher/rtlmux/receiver"
)

// ToneConfig selects the tone gate for a channel. Leave zeroed for carrier
// squelch only.
type ToneConfig struct {
	Type string  `yaml:"type"` // none, ctcss or dcs
	Hz   float64 `yaml:"hz"`
	Code string  `yaml:"code"`
}

func (tc ToneConfig) Spec() (gate.ToneSpec, error) {
	switch strings.ToLower(tc.Type) {
	case "", "none":
		return gate.None(), nil
	case "ctcss", "pl":
		if tc.Hz <= 0 {
			return gate.ToneSpec{}, errors.New("ctcss tone requires hz")
		}
		return gate.CTCSS(tc.Hz), nil
	case "dcs", "dpl":
		if tc.Code == "" {
			return gate.ToneSpec{}, errors.New("dcs tone requires code")
		}
		return gate.DCS(tc.Code), nil
	}
	return gate.ToneSpec{}, errors.Errorf("unknown tone type: %q", tc.Type)
}

// ChannelConfig declares a channel started when its receiver connects.
type ChannelConfig struct {
	ID           string     `yaml:"id"`
	Frequency    uint32     `yaml:"freq"`
	SquelchDB    float64    `yaml:"squelch_db"`
	HysteresisDB float64    `yaml:"hysteresis_db"`
	Tone         ToneConfig `yaml:"tone"`
	Sink         string     `yaml:"sink"`
}

// ReceiverConfig declares one rtl_tcp connection and what to do with it.
type ReceiverConfig struct {
	Name       string  `yaml:"name"`
	Host       string  `yaml:"host"`
	Port       int     `yaml:"port"`
	GainDB     float64 `yaml:"gain_db"`
	SampleRate int     `yaml:"sample_rate"`

	// Dispatch is sequential or parallel.
	Dispatch string `yaml:"dispatch"`

	// SpectrumEvery publishes a spectrum event every n blocks, 0 disables.
	SpectrumEvery int `yaml:"spectrum_every"`

	// Presets names a yaml preset file usable with the preset activation
	// operations.
	Presets string `yaml:"presets"`

	// Preset activates one named preset exclusively on connect.
	Preset string `yaml:"preset"`

	// Channels starts explicit channels on connect.
	Channels []ChannelConfig `yaml:"channels"`
}

func (rc ReceiverConfig) DispatchPolicy() (receiver.DispatchPolicy, error) {
	switch strings.ToLower(rc.Dispatch) {
	case "", "sequential":
		return receiver.DispatchSequential, nil
	case "parallel":
		return receiver.DispatchParallel, nil
	}
	return 0, errors.Errorf("unknown dispatch policy: %q", rc.Dispatch)
}

type EventsConfig struct {
	Format string `yaml:"format"` // plain, csv or json
	File   string `yaml:"file"`   // empty or "-" for stdout
}

type MQTTConfig struct {
	Broker string `yaml:"broker"`
	Prefix string `yaml:"prefix"`
}

// Config is the top-level service configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Metrics is the prometheus listen address, empty disables.
	Metrics string `yaml:"metrics"`

	Events EventsConfig `yaml:"events"`
	MQTT   MQTTConfig   `yaml:"mqtt"`

	Receivers []ReceiverConfig `yaml:"receivers"`
}

var (
	configFile = flag.StringP("config", "c", "rtlmux.yaml", "service configuration file")
	logLevel   = flag.String("log-level", "", "override configured log level: debug, info, warn or error")
	metrics    = flag.String("metrics", "", "override configured prometheus listen address")
	version    = flag.Bool("version", false, "display build date and commit hash")
)

// EnvOverride applies RTLMUX_* environment variables to any flag not set
// on the command line.
func EnvOverride() {
	flag.VisitAll(func(f *flag.Flag) {
		if f.Changed {
			return
		}
		envName := "RTLMUX_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		flagValue := os.Getenv(envName)
		if flagValue == "" {
			return
		}
		if err := flag.Set(f.Name, flagValue); err != nil {
			log.WithFields(log.Fields{
				"env":  envName,
				"flag": f.Name,
			}).WithError(err).Warn("environment override failed")
		}
	})
}

// LoadConfig reads the yaml configuration file. Flags win over file
// values; the caller has already parsed them.
func LoadConfig() (cfg Config, err error) {
	raw, err := os.ReadFile(*configFile)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err = yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}

	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *metrics != "" {
		cfg.Metrics = *metrics
	}

	if len(cfg.Receivers) == 0 {
		return cfg, errors.New("no receivers configured")
	}
	seen := make(map[string]bool)
	for idx, rc := range cfg.Receivers {
		if rc.Name == "" {
			return cfg, errors.Errorf("receiver %d: name required", idx)
		}
		if seen[rc.Name] {
			return cfg, errors.Errorf("receiver %q declared twice", rc.Name)
		}
		seen[rc.Name] = true
		if rc.Host == "" || rc.Port == 0 {
			return cfg, errors.Errorf("receiver %q: host and port required", rc.Name)
		}
	}

	return cfg, nil
}

// SetupLogging applies the configured level to the process-wide logger.
func SetupLogging(cfg Config) error {
	log.SetOutput(os.Stderr)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "parse log level")
	}
	log.SetLevel(level)
	return nil
}
