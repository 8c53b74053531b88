// Package baseline drives the same transfer workload as the harness against a
// live validator over JSON-RPC, so the two can be compared.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mgpai22/fasttester"
)

// ErrTransactionFailed is returned when a confirmed transaction carries an error.
var ErrTransactionFailed = errors.New("baseline: transaction failed")

// Config configures a Client.
type Config struct {
	RPCURL       string
	Commitment   rpc.CommitmentType
	PollInterval time.Duration
}

// Client submits transfers to a validator and waits for their confirmation.
type Client struct {
	rpc          *rpc.Client
	commitment   rpc.CommitmentType
	pollInterval time.Duration
	logger       *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.RPCURL == "" {
		cfg.RPCURL = rpc.LocalNet_RPC
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		rpc:          rpc.New(cfg.RPCURL),
		commitment:   cfg.Commitment,
		pollInterval: cfg.PollInterval,
		logger:       logger,
	}
}

// WaitHealthy polls the node's health endpoint until it reports ok or ctx ends.
func (c *Client) WaitHealthy(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.rpc.GetHealth(ctx)
		if err == nil && status == rpc.HealthOk {
			return nil
		}
		c.logger.Debug("validator not healthy yet", zap.String("status", status), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for validator: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Fund airdrops lamports to every key in parallel and waits until each airdrop is confirmed.
func (c *Client) Fund(ctx context.Context, lamports uint64, keys ...solana.PublicKey) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		g.Go(func() error {
			sig, err := c.rpc.RequestAirdrop(gctx, key, lamports, c.commitment)
			if err != nil {
				return fmt.Errorf("airdrop to %s: %w", key, err)
			}
			return c.Confirm(gctx, sig)
		})
	}
	return g.Wait()
}

// Transfer sends lamports from one account to another and waits for confirmation.
func (c *Client) Transfer(ctx context.Context, from solana.PrivateKey, to solana.PublicKey, lamports uint64) (solana.Signature, error) {
	recent, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, from.PublicKey(), to).Build()},
		recent.Value.Blockhash,
		solana.TransactionPayer(from.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("serialize message: %w", err)
	}
	sigs, err := fasttester.SignMessage(msg, []solana.PrivateKey{from})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}
	tx.Signatures = sigs

	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, c.Confirm(ctx, sig)
}

// Confirm polls the signature status until it reaches the client's commitment.
func (c *Client) Confirm(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			return fmt.Errorf("signature status %s: %w", sig, err)
		}
		if len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, sig, status.Err)
			}
			if reached(status.ConfirmationStatus, c.commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirming %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Balance returns the lamports held by key.
func (c *Client) Balance(ctx context.Context, key solana.PublicKey) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, key, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", key, err)
	}
	return out.Value, nil
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return want != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return want == rpc.CommitmentProcessed
	}
	return false
}
