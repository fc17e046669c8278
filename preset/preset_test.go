package preset

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bemasher/rtlmux/gate"
)

func TestToneResolution(t *testing.T) {
	spec, err := Preset{}.Tone()
	require.NoError(t, err)
	assert.Equal(t, gate.None(), spec)

	spec, err = Preset{ToneType: "none"}.Tone()
	require.NoError(t, err)
	assert.Equal(t, gate.None(), spec)

	spec, err = Preset{ToneType: "CTCSS", ToneValue: 127.3}.Tone()
	require.NoError(t, err)
	assert.Equal(t, gate.CTCSS(127.3), spec)

	spec, err = Preset{ToneType: "pl", ToneValue: 100}.Tone()
	require.NoError(t, err)
	assert.Equal(t, gate.AnalogTone, spec.Type)

	spec, err = Preset{ToneType: "dcs", ToneCode: "023"}.Tone()
	require.NoError(t, err)
	assert.Equal(t, gate.DCS("023"), spec)

	_, err = Preset{ToneType: "ctcss"}.Tone()
	assert.Error(t, err, "ctcss without a value")

	_, err = Preset{ToneType: "dcs"}.Tone()
	assert.Error(t, err, "dcs without a code")

	_, err = Preset{ToneType: "warble"}.Tone()
	assert.Error(t, err)
}

func TestHysteresisDefault(t *testing.T) {
	assert.Equal(t, gate.DefaultHysteresisDB, Preset{}.HysteresisDB())
	assert.Equal(t, 3.5, Preset{Hysteresis: 3.5}.HysteresisDB())
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	fs := NewFileStore(path)

	// Missing file loads as empty.
	presets, err := fs.Load()
	require.NoError(t, err)
	assert.Empty(t, presets)

	presets["marine16"] = Preset{
		Frequency: 156800000,
		SquelchDB: -50,
		Sink:      "pipe:/tmp/marine16",
	}
	presets["fire-dispatch"] = Preset{
		Frequency: 154190000,
		SquelchDB: -45,
		ToneType:  "ctcss",
		ToneValue: 127.3,
	}
	require.NoError(t, fs.Save(presets))

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, presets, loaded)
}

func TestMemStore(t *testing.T) {
	ms := &MemStore{Presets: map[string]Preset{
		"wx": {Frequency: 162550000, SquelchDB: -60},
	}}

	loaded, err := ms.Load()
	require.NoError(t, err)

	// Load returns a copy; mutating it must not touch the store.
	loaded["wx"] = Preset{Frequency: 1}
	again, err := ms.Load()
	require.NoError(t, err)
	assert.Equal(t, uint32(162550000), again["wx"].Frequency)
}
