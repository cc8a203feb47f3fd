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

// Command vecsimctl drives a vecsim.Index from the command line: build an
// index from a vector file and a YAML construction-parameter file (§2.3),
// then run top-K or range queries against it, or print its Info. It
// replaces the teacher's flag-based cmd/levelgraph with a cobra command
// tree, the CLI layout two of the five pack repos independently converge
// on.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	vectorsPath string
)

func main() {
	root := &cobra.Command{
		Use:   "vecsimctl",
		Short: "Build and query an in-memory vecsim index",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "construction-parameter YAML file (required)")
	root.PersistentFlags().StringVar(&vectorsPath, "vectors", "", "vector file to load (required)")
	_ = root.MarkPersistentFlagRequired("config")
	_ = root.MarkPersistentFlagRequired("vectors")

	root.AddCommand(newBuildCmd(), newQueryCmd(), newRangeCmd(), newInfoCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
