package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mgpai22/fasttester"
	"github.com/mgpai22/fasttester/internal/baseline"
)

var (
	validatorRPCURL     string
	validatorIterations int
)

// validatorCmd represents the validator-bench command
var validatorCmd = &cobra.Command{
	Use:   "validator-bench",
	Short: "Benchmark the same transfers against a live validator",
	Long: `Fund two accounts on a running validator and run the transfer loop of
"fasttester bench" over JSON-RPC, waiting for each transfer to confirm.

Examples:
    fasttester validator-bench
    fasttester validator-bench --rpc-url http://127.0.0.1:8899 --iterations 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("rpc-url") {
			cfg.RPC.URL = validatorRPCURL
		}
		if cmd.Flags().Changed("iterations") {
			cfg.Bench.Iterations = validatorIterations
		}
		report, err := runValidatorBench(cmd.Context(), cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), report.Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validatorCmd)

	validatorCmd.Flags().StringVar(&validatorRPCURL, "rpc-url", "http://127.0.0.1:8899", "validator JSON-RPC endpoint")
	validatorCmd.Flags().IntVarP(&validatorIterations, "iterations", "n", 100, "number of transfers to run")
}

// validatorFeePerTx is the fee a default validator charges for a single-signature transaction.
const validatorFeePerTx uint64 = 5000

func runValidatorBench(ctx context.Context, c *Config, progress io.Writer) (*Report, error) {
	if err := checkFunding(c.Bench, validatorFeePerTx); err != nil {
		return nil, err
	}

	client := baseline.New(baseline.Config{
		RPCURL:       c.RPC.URL,
		Commitment:   rpc.CommitmentType(c.RPC.Commitment),
		PollInterval: c.RPC.PollInterval,
	}, logger)

	healthCtx, cancel := context.WithTimeout(ctx, c.RPC.HealthTimeout)
	defer cancel()
	if err := client.WaitHealthy(healthCtx); err != nil {
		return nil, err
	}

	alice := solana.NewWallet().PrivateKey
	bob := solana.NewWallet().PublicKey()
	if err := client.Fund(ctx, c.Bench.Funding, alice.PublicKey(), bob); err != nil {
		return nil, fmt.Errorf("fund accounts: %w", err)
	}

	elapsed, err := runLoop(ctx, c.Bench.Iterations, progress, "transfers", func(ctx context.Context, i int) error {
		_, err := client.Transfer(ctx, alice, bob, transferAmount(c.Bench, i))
		return err
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		Name:       "validator transfers",
		Engine:     c.RPC.URL,
		Iterations: c.Bench.Iterations,
		Elapsed:    elapsed,
	}
	logger.Info("validator bench finished",
		zap.String("rpc", c.RPC.URL),
		zap.Int("iterations", report.Iterations),
		zap.Duration("elapsed", report.Elapsed),
		zap.Float64("sol_funded", float64(c.Bench.Funding)/float64(fasttester.LamportsPerSOL)),
	)
	return report, nil
}
