package preset

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileStore persists presets as a YAML map keyed by preset name.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the preset file. A missing file is an empty store, not an
// error.
func (fs *FileStore) Load() (map[string]Preset, error) {
	raw, err := os.ReadFile(fs.Path)
	if os.IsNotExist(err) {
		return map[string]Preset{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read presets %s", fs.Path)
	}

	presets := make(map[string]Preset)
	if err := yaml.Unmarshal(raw, &presets); err != nil {
		return nil, errors.Wrapf(err, "parse presets %s", fs.Path)
	}
	return presets, nil
}

func (fs *FileStore) Save(presets map[string]Preset) error {
	raw, err := yaml.Marshal(presets)
	if err != nil {
		return errors.Wrap(err, "encode presets")
	}
	if err := os.WriteFile(fs.Path, raw, 0o644); err != nil {
		return errors.Wrapf(err, "write presets %s", fs.Path)
	}
	return nil
}

// MemStore is an in-memory Store for tests and ephemeral configurations.
type MemStore struct {
	Presets map[string]Preset
}

func (ms *MemStore) Load() (map[string]Preset, error) {
	out := make(map[string]Preset, len(ms.Presets))
	for name, p := range ms.Presets {
		out[name] = p
	}
	return out, nil
}

func (ms *MemStore) Save(presets map[string]Preset) error {
	ms.Presets = make(map[string]Preset, len(presets))
	for name, p := range presets {
		ms.Presets[name] = p
	}
	return nil
}
