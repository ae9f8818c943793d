package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/go-bpf/verifier/pkg/batch"
	"github.com/go-bpf/verifier/pkg/loader"
	"github.com/go-bpf/verifier/pkg/verifier"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bpfcheck",
		Short: "Static verifier for small-instruction-set bytecode programs",
	}

	var logLevel int
	rootCmd.PersistentFlags().IntVarP(&logLevel, "verbose", "v", 0, "verification log trace level (0-2)")

	rootCmd.AddCommand(
		newCheckCmd(&logLevel),
		newDisasmCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("bpfcheck failed")
		os.Exit(1)
	}
}

func newCheckCmd(logLevel *int) *cobra.Command {
	var batch bool
	var workers int

	cmd := &cobra.Command{
		Use:   "check <fixture.yaml>",
		Short: "Verify one program, or every fixture in a directory with --batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch {
				return runBatch(args[0], workers, *logLevel)
			}
			return runSingle(args[0], *logLevel)
		},
	}
	cmd.Flags().BoolVar(&batch, "batch", false, "treat the argument as a directory and verify every fixture in it concurrently")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size for --batch (default: number of CPUs)")
	return cmd
}

func runSingle(path string, logLevel int) error {
	prog, err := loader.LoadFile(path)
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	a := verifier.NewAnalyzer(logLevel)
	result, err := a.Check(prog)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return fmt.Errorf("verification failed")
	}

	fmt.Print(result.Log)
	fmt.Println()
	fmt.Printf("accepted: %d states explored, max stack depth %d bytes\n", result.StatesSeen, result.MaxStackDepth)
	return nil
}

func runBatch(dir string, workers int, logLevel int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".yaml" || filepath.Ext(e.Name()) == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	pool := &batch.WorkerPool{Workers: workers, LogLevel: logLevel}
	table := pool.RunDir(paths)

	for _, v := range table.Verdicts() {
		if v.Accepted {
			logrus.WithField("fixture", v.Fixture).Info("accepted")
		} else {
			logrus.WithField("fixture", v.Fixture).WithError(v.Err).Warn("rejected")
		}
	}

	accepted, rejected := table.Summary()
	fmt.Printf("%d accepted, %d rejected, %d total\n", accepted, rejected, table.Len())
	if rejected > 0 {
		return fmt.Errorf("%d fixtures rejected", rejected)
	}
	return nil
}

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <fixture.yaml>",
		Short: "Decode and pretty-print a fixture's instruction stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := loader.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("loading %s: %w", args[0], err)
			}
			for i, ins := range prog.Insns {
				fmt.Printf("%4d: %s\n", i, ins.String())
			}
			return nil
		},
	}
}
