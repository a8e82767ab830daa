// Package presets loads the named size, clip and font-size shortcuts.
package presets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlshot/internal/render"
)

// MaxFileSize caps the preset file read at startup.
const MaxFileSize = 1 << 20

// Table is the read-only preset table. JSON files parse as YAML.
type Table struct {
	Sizes     map[string]render.Size `json:"sizes" yaml:"sizes"`
	Clips     map[string]render.Clip `json:"clips" yaml:"clips"`
	FontSizes map[string]any         `json:"fontSizes" yaml:"fontSizes"`

	// doc is the file as loaded, minus rejected entries. It is what clients
	// see, unknown keys included.
	doc      map[string]any
	rejected []string
}

// MarshalJSON encodes the loaded document, falling back to the typed fields
// for tables that were not parsed from a file.
func (t *Table) MarshalJSON() ([]byte, error) {
	if t.doc != nil {
		return json.Marshal(t.doc)
	}
	return json.Marshal(struct {
		Sizes     map[string]render.Size `json:"sizes"`
		Clips     map[string]render.Clip `json:"clips"`
		FontSizes map[string]any         `json:"fontSizes"`
	}{t.Sizes, t.Clips, t.FontSizes})
}

// Rejected lists entries dropped during Parse, as "sizes.name" or "clips.name".
func (t *Table) Rejected() []string {
	return t.rejected
}

// Empty returns a table with no entries.
func Empty() *Table {
	return &Table{
		Sizes:     map[string]render.Size{},
		Clips:     map[string]render.Clip{},
		FontSizes: map[string]any{},
	}
}

// Size implements render.PresetLookup.
func (t *Table) Size(name string) (render.Size, bool) {
	if t == nil {
		return render.Size{}, false
	}
	s, ok := t.Sizes[name]
	return s, ok
}

// Clip implements render.PresetLookup.
func (t *Table) Clip(name string) (render.Clip, bool) {
	if t == nil {
		return render.Clip{}, false
	}
	c, ok := t.Clips[name]
	return c, ok
}

// SizeNames lists size presets in sorted order.
func (t *Table) SizeNames() []string {
	names := make([]string, 0, len(t.Sizes))
	for name := range t.Sizes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse decodes a preset document. Entries with non-positive dimensions are
// dropped and reported by Rejected; only a malformed document is an error.
func Parse(data []byte) (*Table, error) {
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("preset file exceeds %d bytes", MaxFileSize)
	}
	table := Empty()
	if len(data) == 0 {
		return table, nil
	}
	if err := yaml.Unmarshal(data, table); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	if table.Sizes == nil {
		table.Sizes = map[string]render.Size{}
	}
	if table.Clips == nil {
		table.Clips = map[string]render.Clip{}
	}
	if table.FontSizes == nil {
		table.FontSizes = map[string]any{}
	}
	if err := yaml.Unmarshal(data, &table.doc); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	if table.doc == nil {
		table.doc = map[string]any{}
	}

	for name, s := range table.Sizes {
		if s.Width <= 0 || s.Height <= 0 {
			table.reject("sizes", name)
			delete(table.Sizes, name)
		}
	}
	for name, c := range table.Clips {
		if c.Width <= 0 || c.Height <= 0 || c.X < 0 || c.Y < 0 {
			table.reject("clips", name)
			delete(table.Clips, name)
		}
	}
	sort.Strings(table.rejected)
	return table, nil
}

func (t *Table) reject(section, name string) {
	t.rejected = append(t.rejected, section+"."+name)
	if entries, ok := t.doc[section].(map[string]any); ok {
		delete(entries, name)
	}
}

// Load reads the preset file at path. A missing or unreadable file yields an
// empty table and a warning; startup never fails on presets.
func Load(path string, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path.
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("preset file not found; using empty presets", zap.String("path", path))
		} else {
			logger.Warn("read presets; using empty presets", zap.String("path", path), zap.Error(err))
		}
		return Empty()
	}
	table, err := Parse(data)
	if err != nil {
		logger.Warn("invalid presets; using empty presets", zap.String("path", path), zap.Error(err))
		return Empty()
	}
	for _, entry := range table.Rejected() {
		logger.Warn("preset rejected: dimensions must be positive", zap.String("path", path), zap.String("entry", entry))
	}
	logger.Info("presets loaded",
		zap.String("path", path),
		zap.Int("sizes", len(table.Sizes)),
		zap.Int("clips", len(table.Clips)),
		zap.Int("font_sizes", len(table.FontSizes)),
	)
	return table
}
