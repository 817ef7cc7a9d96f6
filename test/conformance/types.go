// Package conformance loads and runs the GameboyCPUTests v2 JSON format
// (one file per opcode, an array of {name, initial, final, cycles} records)
// against this repo's own CPU, per the documented "CPU test format" external
// interface.
package conformance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// State is the register/memory snapshot shape shared by a test record's
// "initial" and "final" fields.
type State struct {
	PC  uint16   `json:"pc"`
	SP  uint16   `json:"sp"`
	A   uint8    `json:"a"`
	B   uint8    `json:"b"`
	C   uint8    `json:"c"`
	D   uint8    `json:"d"`
	E   uint8    `json:"e"`
	F   uint8    `json:"f"`
	H   uint8    `json:"h"`
	L   uint8    `json:"l"`
	IME *uint8   `json:"ime,omitempty"`
	IE  *uint8   `json:"ie,omitempty"`
	RAM [][2]int `json:"ram,omitempty"`
}

// TestCase is a single record: run one instruction starting from Initial and
// expect the machine to match Final afterward.
type TestCase struct {
	Name    string            `json:"name"`
	Initial State             `json:"initial"`
	Final   State             `json:"final"`
	Cycles  []json.RawMessage `json:"cycles,omitempty"`
}

// LoadTestFile parses a single per-opcode JSON file (a bare JSON array of
// TestCase records).
func LoadTestFile(path string) ([]TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conformance: reading %s: %w", path, err)
	}

	var cases []TestCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("conformance: parsing %s: %w", path, err)
	}
	return cases, nil
}

// LoadTestDir parses every *.json file in dir, keyed by file name (without
// extension), sorted for deterministic iteration.
func LoadTestDir(dir string) (map[string][]TestCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("conformance: reading dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make(map[string][]TestCase, len(names))
	for _, name := range names {
		cases, err := LoadTestFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out[name[:len(name)-len(filepath.Ext(name))]] = cases
	}
	return out, nil
}
