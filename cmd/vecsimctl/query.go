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
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vecsim-go/vecsim/vecsim"
)

func parseQueryVector(s string) ([]float32, error) {
	fields := strings.Split(s, ",")
	vec := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return nil, fmt.Errorf("vecsimctl: query vector component %d: %w", i, err)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

func printResults(results []vecsim.Result, status vecsim.StatusCode) {
	if status == vecsim.TimedOut {
		fmt.Println("# partial result: timed out")
	}
	for _, r := range results {
		fmt.Printf("%d\t%.6f\t%.6f\n", r.Label, r.Distance, r.Score)
	}
}

func newQueryCmd() *cobra.Command {
	var queryVec string
	var k int
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Build an in-memory index and run a top-K query against it",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQueryVector(queryVec)
			if err != nil {
				return err
			}
			idx, err := buildIndex()
			if err != nil {
				return err
			}
			defer idx.Close()
			results, status, err := idx.TopK(q, k)
			if err != nil {
				return err
			}
			printResults(results, status)
			return nil
		},
	}
	cmd.Flags().StringVar(&queryVec, "query", "", "comma-separated query vector (required)")
	cmd.Flags().IntVar(&k, "k", 10, "number of results")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func newRangeCmd() *cobra.Command {
	var queryVec string
	var radius float64
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Build an in-memory index and run a radius query against it",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQueryVector(queryVec)
			if err != nil {
				return err
			}
			idx, err := buildIndex()
			if err != nil {
				return err
			}
			defer idx.Close()
			results, status, err := idx.Range(q, float32(radius))
			if err != nil {
				return err
			}
			printResults(results, status)
			return nil
		},
	}
	cmd.Flags().StringVar(&queryVec, "query", "", "comma-separated query vector (required)")
	cmd.Flags().Float64Var(&radius, "radius", 1.0, "search radius")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
