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

// Package eventlog renders gate activity as a line-oriented log in plain,
// csv or json form.
package eventlog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/bemasher/rtlmux/event"
)

// Record is one gate transition.
type Record struct {
	Time      time.Time `json:"time"`
	Receiver  string    `json:"receiver"`
	Channel   string    `json:"channel"`
	State     string    `json:"state"`
	Frequency uint32    `json:"freq"`
}

// Record produces the fields making up a csv record.
func (r Record) Record() []string {
	return []string{
		r.Time.Format(time.RFC3339),
		r.Receiver,
		r.Channel,
		r.State,
		fmt.Sprintf("%d", r.Frequency),
	}
}

func (r Record) String() string {
	return fmt.Sprintf("%s %s/%s %s freq:%d",
		r.Time.Format(time.RFC3339), r.Receiver, r.Channel, r.State, r.Frequency,
	)
}

// Recorder produces a list of fields making up a record.
type Recorder interface {
	Record() []string
}

// An Encoder serializes records to an output stream. json.Encoder satisfies
// it directly.
type Encoder interface {
	Encode(interface{}) error
}

// CSVEncoder writes csv records to an output stream.
type CSVEncoder struct {
	w *csv.Writer
}

func NewCSVEncoder(w io.Writer) *CSVEncoder {
	return &CSVEncoder{w: csv.NewWriter(w)}
}

// Encode writes a csv record representing v to the stream. Value given must
// implement the Recorder interface.
func (enc *CSVEncoder) Encode(v interface{}) (err error) {
	defer func() {
		if err, _ = recover().(error); err != nil {
			err = xerrors.Errorf("recovered: %w", err)
		}
	}()

	err = enc.w.Write(v.(Recorder).Record())
	enc.w.Flush()

	return nil
}

// PlainEncoder writes records using their String method.
type PlainEncoder struct {
	w io.Writer
}

func NewPlainEncoder(w io.Writer) *PlainEncoder {
	return &PlainEncoder{w: w}
}

func (enc *PlainEncoder) Encode(v interface{}) error {
	_, err := fmt.Fprintln(enc.w, v)
	return err
}

// NewEncoder selects an encoder by format name: plain, csv or json.
func NewEncoder(format string, w io.Writer) (Encoder, error) {
	switch strings.ToLower(format) {
	case "", "plain":
		return NewPlainEncoder(w), nil
	case "csv":
		return NewCSVEncoder(w), nil
	case "json":
		return json.NewEncoder(w), nil
	}
	return nil, xerrors.Errorf("unknown event log format: %q", format)
}

// A Logger records channel open and close events published on a bus.
type Logger struct {
	mu  sync.Mutex
	enc Encoder
}

func NewLogger(enc Encoder) *Logger {
	return &Logger{enc: enc}
}

// Attach subscribes the logger to gate transitions on bus.
func (l *Logger) Attach(bus *event.Bus) {
	bus.Subscribe(event.ChannelOpened, l.handle)
	bus.Subscribe(event.ChannelClosed, l.handle)
}

func (l *Logger) handle(name string, data event.Payload) {
	rec := Record{
		Time:  time.Now(),
		State: "closed",
	}
	if name == event.ChannelOpened {
		rec.State = "open"
	}
	rec.Receiver, _ = data["receiver"].(string)
	rec.Channel, _ = data["channel"].(string)
	rec.Frequency, _ = data["freq"].(uint32)

	l.mu.Lock()
	defer l.mu.Unlock()
	// Errors here cannot reach the channel that published the event; an
	// unwritable log is not a reason to gate audio.
	l.enc.Encode(rec)
}
