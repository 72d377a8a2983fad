// Command uicasim is a demo harness around the uica core: it builds a
// synthetic instruction stream from a built-in pattern, runs the
// simulator, and prints (or dumps as JSON) the resulting throughput,
// per-instruction table, and bottleneck classification.
//
// Decoding real binaries and sourcing a production instruction table are
// explicitly out of the core's scope (spec.md §1); this binary exists to
// exercise the core's public interface end-to-end, the way a teacher repo
// ships a small runnable demo alongside its library.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/go-uica/uica"
	"github.com/go-uica/uica/internal/fixture"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "uicasim",
		Short: "Cycle-level out-of-order pipeline throughput simulator demo",
	}

	rootCmd.AddCommand(newRunCmd(), newBenchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var march string
	var pattern string
	var length int
	var format string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one built-in pattern and print its throughput report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(march, pattern, length)
			if err != nil {
				return err
			}

			sim, err := uica.New(cfg)
			if err != nil {
				return fmt.Errorf("uicasim: %w", err)
			}
			result := sim.Run()

			return writeResult(os.Stdout, pattern, result, format)
		},
	}
	cmd.Flags().StringVar(&march, "march", "genericwide", "built-in microarchitecture: genericwide or narrow2")
	cmd.Flags().StringVar(&pattern, "pattern", string(fixture.DepChain), "built-in instruction pattern")
	cmd.Flags().IntVar(&length, "length", 8, "number of dynamic instructions in the loop body")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}

func newBenchCmd() *cobra.Command {
	var march string
	var length int
	var format string

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run every built-in pattern and print a throughput summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			type row struct {
				Pattern string  `json:"pattern"`
				TP      float64 `json:"tp"`
			}
			var rows []row

			for _, p := range fixture.All {
				cfg, err := buildConfig(march, string(p), length)
				if err != nil {
					return err
				}
				sim, err := uica.New(cfg)
				if err != nil {
					return fmt.Errorf("uicasim: %w", err)
				}
				result := sim.Run()
				rows = append(rows, row{Pattern: string(p), TP: result.TP})
			}

			if format == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "pattern\tcycles/iter")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%.3f\n", r.Pattern, r.TP)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&march, "march", "genericwide", "built-in microarchitecture: genericwide or narrow2")
	cmd.Flags().IntVar(&length, "length", 8, "number of dynamic instructions in the loop body")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}

func buildConfig(march, pattern string, length int) (uica.Config, error) {
	var mcfg uica.MicroArchConfig
	switch march {
	case "genericwide", "":
		mcfg = fixture.Generic()
	case "narrow2":
		mcfg = fixture.Narrow()
	default:
		return uica.Config{}, fmt.Errorf("uicasim: unknown --march %q (want genericwide or narrow2)", march)
	}

	program, err := fixture.Build(fixture.Pattern(pattern), length, len(mcfg.AllPorts))
	if err != nil {
		return uica.Config{}, err
	}

	return uica.Config{MicroArch: mcfg, Program: program}, nil
}

func writeResult(w *os.File, pattern string, result uica.Result, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(w, "pattern: %s\n", pattern)
	fmt.Fprintf(w, "TP: %.3f cycles/iteration\n", result.TP)
	fmt.Fprintf(w, "rounds simulated: %d (%d cycles)\n", result.Rounds, result.Cycles)
	fmt.Fprintf(w, "bottlenecks: ")
	for i, b := range result.Bottlenecks {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprint(w, b.Label)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "asm\tissued\texecuted\tnote")
	for _, ir := range result.Instructions {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", ir.Asm, ir.Issued, ir.Executed, ir.Note)
	}
	return tw.Flush()
}
