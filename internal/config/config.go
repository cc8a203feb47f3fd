// Copyright (c) 2024 LevelGraph Go Contributors
//
// Permission is hereby granted, free of charge, to any person
// obtaining a copy of this software and associated documentation
// files (the "Software"), to deal in the Software without
// restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the
// Software is furnished to do so, subject to the following
// conditions:
//
// The above copyright notice and this permission notice shall be
// included in all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

// Package config loads the construction parameters of §6 from a YAML file,
// so a fixture or a CLI invocation can hand the whole parameter set to
// vecsim.New in one shot instead of a long WithX option chain (§2.3).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a construction-parameter file: field names
// match §6's parameter list exactly, lower_snake_case per the YAML
// convention the rest of the ecosystem uses for this.
type File struct {
	Dim             int     `yaml:"dim"`
	Metric          string  `yaml:"metric"`           // "l2", "ip", or "cosine"
	Multi           bool    `yaml:"multi"`
	InitialCapacity int     `yaml:"initial_capacity"`
	BlockSize       int     `yaml:"block_size"`
	M               int     `yaml:"m"`
	EfConstruction  int     `yaml:"ef_construction"`
	EfRuntime       int     `yaml:"ef_runtime"`
	Epsilon         float64 `yaml:"epsilon"`
	RandomSeed      int64   `yaml:"random_seed"`

	// Tiered, when true, builds a tiered.Controller (flat buffer + HNSW +
	// job pipeline) instead of a bare HNSW index (§4.10/§4.11).
	Tiered bool `yaml:"tiered"`
	Workers int `yaml:"workers"` // tiered job pool size; 0 lets the caller default it
}

// Load parses a construction-parameter file from path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: load: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, nil
}

// MetricValue maps File.Metric's string form to distance.Metric's int
// encoding (0=l2, 1=ip, 2=cosine), matching internal/distance's iota order.
// Returns an error for any unrecognized string rather than silently
// defaulting (§7: no silent fallback across a config boundary).
func (f File) MetricValue() (int, error) {
	switch f.Metric {
	case "", "l2":
		return 0, nil
	case "ip":
		return 1, nil
	case "cosine":
		return 2, nil
	default:
		return 0, fmt.Errorf("config: unknown metric %q", f.Metric)
	}
}
