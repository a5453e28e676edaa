package config

import (
	"fmt"
	"os"
)

// macroFile is the document written by ExportMacros: a version and the
// macros array, nothing else.
type macroFile struct {
	Version int               `toml:"version" json:"version" yaml:"version"`
	Macros  []MacroDefinition `toml:"macros" json:"macros" yaml:"macros"`
}

// ExportMacros writes macros to a standalone file. The format follows the
// file extension and defaults to TOML.
func ExportMacros(macros []MacroDefinition, path string) error {
	data, err := encode(macroFile{Version: Version, Macros: macros}, formatOf(path))
	if err != nil {
		return fmt.Errorf("encode macros: %w", err)
	}
	return writeAtomic(path, data)
}

// ImportMacros reads the macros array from a config or export file,
// de-duplicated by name within the file. The current config is untouched.
func ImportMacros(path string) ([]MacroDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read macros: %w", err)
	}

	var doc macroFile
	if err := decode(data, formatOf(path), &doc); err != nil {
		return nil, err
	}
	return DedupeMacros(doc.Macros), nil
}

// DedupeMacros removes macros whose name was already seen, keeping the
// first occurrence.
func DedupeMacros(macros []MacroDefinition) []MacroDefinition {
	seen := make(map[string]struct{}, len(macros))
	out := make([]MacroDefinition, 0, len(macros))
	for _, m := range macros {
		if _, dup := seen[m.Name]; dup {
			continue
		}
		seen[m.Name] = struct{}{}
		out = append(out, m)
	}
	return out
}

// MergeImported appends imported macros whose names are not already in
// existing. It returns the merged list and the names that were skipped.
func MergeImported(existing, imported []MacroDefinition) ([]MacroDefinition, []string) {
	names := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		names[m.Name] = struct{}{}
	}

	merged := append([]MacroDefinition{}, existing...)
	var skipped []string
	for _, m := range imported {
		if _, dup := names[m.Name]; dup {
			skipped = append(skipped, m.Name)
			continue
		}
		names[m.Name] = struct{}{}
		merged = append(merged, m)
	}
	return merged, skipped
}
