// Package chain provides ChainSubmitter implementations used to attach an
// externally verifiable transaction id to a trade before the ledger records
// it.
package chain

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

// SimulatedConfig configures a Simulated submitter.
type SimulatedConfig struct {
	// Network is mixed into every transaction hash so ids from different
	// networks never collide.
	Network string
	// RequireWallet rejects anonymous trades.
	RequireWallet bool
}

// Simulated confirms every well-formed trade immediately. The transaction
// id is the keccak256 hash of the trade intent and a submission nonce.
type Simulated struct {
	network       string
	requireWallet bool
	nonce         atomic.Uint64
}

// NewSimulated creates a Simulated submitter.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	return &Simulated{network: cfg.Network, requireWallet: cfg.RequireWallet}
}

// Name returns "simulated".
func (s *Simulated) Name() string { return "simulated" }

// SubmitTrade validates the wallet and returns a 0x-prefixed transaction
// hash. Rejections wrap domain.ErrChainRejected.
func (s *Simulated) SubmitTrade(ctx context.Context, intent domain.TradeIntent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("chain: submit: %w", err)
	}

	wallet := ""
	if intent.WalletAddress != nil {
		wallet = *intent.WalletAddress
	}
	switch {
	case wallet == "" && s.requireWallet:
		return "", fmt.Errorf("chain: submit: wallet address required: %w", domain.ErrChainRejected)
	case wallet != "" && !common.IsHexAddress(wallet):
		return "", fmt.Errorf("chain: submit: invalid wallet address %q: %w", wallet, domain.ErrChainRejected)
	}

	n := s.nonce.Add(1)
	hash := ethcrypto.Keccak256Hash(
		[]byte(s.network),
		[]byte(intent.MarketID),
		[]byte(strconv.Itoa(intent.OutcomeIndex)),
		[]byte(intent.Amount.String()),
		[]byte(wallet),
		[]byte(strconv.FormatUint(n, 10)),
	)
	return hash.Hex(), nil
}

// Compile-time interface check.
var _ domain.ChainSubmitter = (*Simulated)(nil)
