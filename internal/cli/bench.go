package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mgpai22/fasttester"
	"github.com/mgpai22/fasttester/memengine"
)

var (
	benchEngine     string
	benchIterations int
)

// benchCmd represents the bench command
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark transfers through the in-process harness",
	Long: `Seed two accounts and run a loop of System program transfers between them
through the harness, then print the throughput.

Examples:
    fasttester bench
    fasttester bench --iterations 10000
    fasttester bench --engine ./engine.wasm`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("engine") {
			cfg.Bench.Engine = benchEngine
		}
		if cmd.Flags().Changed("iterations") {
			cfg.Bench.Iterations = benchIterations
		}
		report, err := runBench(cmd.Context(), cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), report.Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().StringVarP(&benchEngine, "engine", "e", EngineMemory, `engine to use: "memory" or a path to the engine WASM module`)
	benchCmd.Flags().IntVarP(&benchIterations, "iterations", "n", 1000, "number of transfers to run")
}

// harnessConfig selects the engine named by the bench configuration.
func harnessConfig(c *Config) fasttester.HarnessConfig {
	if c.Bench.Engine == EngineMemory {
		return fasttester.HarnessConfig{
			EngineFactory: memengine.Factory(memengine.WithLogger(logger)),
			Logger:        logger,
		}
	}
	path := c.Bench.Engine
	return fasttester.HarnessConfig{
		EngineWasmFile: &path,
		Logger:         logger,
	}
}

// transferAmount is the amount moved by iteration i. Amounts grow by one
// lamport per iteration so that no two transfers between the same accounts
// sign to the same bytes under one blockhash.
func transferAmount(b BenchConfig, i int) uint64 {
	return b.Lamports + uint64(i)
}

// requiredFunding is the sum of every transferAmount plus feePerTx for each transaction.
func requiredFunding(b BenchConfig, feePerTx uint64) (uint64, error) {
	n := big.NewInt(int64(b.Iterations))
	total := new(big.Int).Mul(n, new(big.Int).SetUint64(b.Lamports))

	// 0 + 1 + ... + (n-1)
	steps := new(big.Int).Mul(n, new(big.Int).Sub(n, big.NewInt(1)))
	total.Add(total, steps.Rsh(steps, 1))

	total.Add(total, new(big.Int).Mul(n, new(big.Int).SetUint64(feePerTx)))
	return fasttester.U64FromBig(total)
}

// checkFunding reports whether funding covers every transfer and its fee.
func checkFunding(b BenchConfig, feePerTx uint64) error {
	need, err := requiredFunding(b, feePerTx)
	if err != nil {
		return fmt.Errorf("%d transfers from %d lamports: %w", b.Iterations, b.Lamports, err)
	}
	if need > b.Funding {
		return fmt.Errorf("funding of %d lamports cannot cover %d transfers needing %d", b.Funding, b.Iterations, need)
	}
	return nil
}

func runBench(ctx context.Context, c *Config, progress io.Writer) (*Report, error) {
	if err := checkFunding(c.Bench, 0); err != nil {
		return nil, err
	}
	want, err := requiredFunding(c.Bench, 0)
	if err != nil {
		return nil, err
	}

	alice, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate sender: %w", err)
	}
	bob := solana.NewWallet().PublicKey()

	report := &Report{Name: "harness transfers", Engine: c.Bench.Engine, Iterations: c.Bench.Iterations}
	err = fasttester.WithHarness(ctx, harnessConfig(c), func(h *fasttester.Harness) error {
		if err := h.SetAccount(ctx, fasttester.AccountRecord{
			Address:  alice.PublicKey(),
			Lamports: c.Bench.Funding,
		}); err != nil {
			return fmt.Errorf("seed sender: %w", err)
		}

		elapsed, err := runLoop(ctx, c.Bench.Iterations, progress, "transfers", func(ctx context.Context, i int) error {
			ix := system.NewTransferInstruction(transferAmount(c.Bench, i), alice.PublicKey(), bob).Build()
			return h.Process(ctx, ix, alice)
		})
		if err != nil {
			return err
		}
		report.Elapsed = elapsed

		acc, err := h.Account(ctx, bob)
		if errors.Is(err, fasttester.ErrIntrospectionUnsupported) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read recipient: %w", err)
		}
		if acc.Lamports != want {
			return fmt.Errorf("recipient holds %d lamports, want %d", acc.Lamports, want)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("harness bench finished",
		zap.String("engine", report.Engine),
		zap.Int("iterations", report.Iterations),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}
