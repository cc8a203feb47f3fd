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

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vecsim-go/vecsim/internal/config"
	"github.com/vecsim-go/vecsim/vecsim"
)

// vectorRow is one parsed line of a vectors file: "label,v1,v2,...,vn".
type vectorRow struct {
	label  int64
	vector []float32
}

// loadVectors parses a vectors file. Blank lines and lines starting with
// '#' are skipped.
func loadVectors(path string) ([]vectorRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vecsimctl: open vectors: %w", err)
	}
	defer f.Close()

	var rows []vectorRow
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			return nil, fmt.Errorf("vecsimctl: vectors line %d: need label and at least one component", lineNo)
		}
		label, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("vecsimctl: vectors line %d: label: %w", lineNo, err)
		}
		vec := make([]float32, len(fields)-1)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
			if err != nil {
				return nil, fmt.Errorf("vecsimctl: vectors line %d: component %d: %w", lineNo, i, err)
			}
			vec[i] = float32(v)
		}
		rows = append(rows, vectorRow{label: label, vector: vec})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vecsimctl: read vectors: %w", err)
	}
	return rows, nil
}

// buildIndex loads the construction-parameter config and the vectors file,
// and returns a freshly populated vecsim.Index.
func buildIndex() (*vecsim.Index, error) {
	f, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	opts, err := vecsim.FromConfigFile(f)
	if err != nil {
		return nil, err
	}
	idx, err := vecsim.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("vecsimctl: build index: %w", err)
	}
	rows, err := loadVectors(vectorsPath)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := idx.Add(row.vector, row.label); err != nil {
			return nil, fmt.Errorf("vecsimctl: add label %d: %w", row.label, err)
		}
	}
	return idx, nil
}

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build an in-memory index and print its Info",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := buildIndex()
			if err != nil {
				return err
			}
			defer idx.Close()
			printInfo(idx.Info())
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Build an in-memory index and print its Info (alias of build)",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := buildIndex()
			if err != nil {
				return err
			}
			defer idx.Close()
			printInfo(idx.Info())
			return nil
		},
	}
}

func printInfo(i vecsim.Info) {
	if i.Tiered {
		fmt.Printf("algorithm:      %s (tiered)\n", i.Algorithm)
		fmt.Printf("memory:         %s\n", humanize.Bytes(uint64(i.MemoryBytes)))
		fmt.Printf("pending writes: %s\n", humanize.Comma(int64(i.PendingWrites)))
		return
	}
	fmt.Printf("algorithm:       %s\n", i.Algorithm)
	fmt.Printf("dim:             %d\n", i.Dim)
	fmt.Printf("m:               %d\n", i.M)
	fmt.Printf("ef_construction: %d\n", i.EfConstruction)
	fmt.Printf("ef_runtime:      %d\n", i.EfRuntime)
	fmt.Printf("count:           %s\n", humanize.Comma(int64(i.Count)))
	fmt.Printf("live:            %s\n", humanize.Comma(int64(i.Live)))
	fmt.Printf("marked_deleted:  %s\n", humanize.Comma(int64(i.MarkedDeleted)))
	fmt.Printf("max_level:       %d\n", i.MaxLevel)
}
