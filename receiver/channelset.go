package receiver

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/bemasher/rtlmux/preset"
)

// ErrUnknownPreset is the warning result for activating a preset name the
// store does not know.
var ErrUnknownPreset = errors.New("unknown preset")

// ChannelSet holds a receiver's named preset records and persists changes
// through its Store.
type ChannelSet struct {
	store preset.Store

	mu      sync.Mutex
	presets map[string]preset.Preset
}

func NewChannelSet(store preset.Store) (*ChannelSet, error) {
	presets, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &ChannelSet{store: store, presets: presets}, nil
}

// Get looks up a preset by name.
func (cs *ChannelSet) Get(name string) (preset.Preset, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	p, ok := cs.presets[name]
	return p, ok
}

// Add stores a preset under name, replacing any existing record, and
// persists the set.
func (cs *ChannelSet) Add(name string, p preset.Preset) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.presets[name] = p
	return cs.store.Save(cs.presets)
}

// Remove deletes a preset by name and persists the set. Removing an absent
// name is a no-op.
func (cs *ChannelSet) Remove(name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.presets[name]; !ok {
		return nil
	}
	delete(cs.presets, name)
	return cs.store.Save(cs.presets)
}

// Names lists preset names, sorted.
func (cs *ChannelSet) Names() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]string, 0, len(cs.presets))
	for name := range cs.presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetChannel is the exclusive activation path: stop every active channel,
// release their sinks, then retune and start one channel built from the
// named preset. An unknown name is a warning, not a failure mode; the
// receiver keeps its current channels.
func (r *Receiver) SetChannel(name string) error {
	if r.presets == nil {
		return errors.New("no preset store configured")
	}

	p, ok := r.presets.Get(name)
	if !ok {
		r.log.WithField("preset", name).Warn("no such channel preset")
		return ErrUnknownPreset
	}

	tone, err := p.Tone()
	if err != nil {
		return errors.Wrapf(err, "preset %s", name)
	}

	r.mu.Lock()
	old := r.takeChannelsLocked()
	r.mu.Unlock()
	for _, ch := range old {
		ch.Stop()
	}

	_, err = r.AddChannel(ChannelConfig{
		ID:           name,
		Frequency:    p.Frequency,
		SquelchDB:    p.SquelchDB,
		HysteresisDB: p.HysteresisDB(),
		Tone:         tone,
		Sink:         p.Sink,
	})
	if err != nil {
		return errors.Wrapf(err, "activate preset %s", name)
	}

	r.log.WithFields(log.Fields{
		"preset": name,
		"freq":   p.Frequency,
	}).Info("tuned to preset")
	return nil
}
