// Package broadcast abstracts blockchain submission and confirmation.
//
// Writing a ledger row never implies settlement: a broadcaster returns a tx
// hash for a pending submission and the Watcher flips rows to confirmed or
// failed later.
package broadcast

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"

	"chainpay/internal/domain"
)

// Request describes one transfer to submit on-chain.
type Request struct {
	Chain       domain.Chain
	Network     domain.Network
	FromAddress string
	ToAddress   string
	Amount      decimal.Decimal
}

// Broadcaster submits a transfer and returns the chain tx hash. The transfer
// is pending until a confirmation check reports otherwise.
type Broadcaster interface {
	Broadcast(ctx context.Context, req Request) (string, error)
	CheckConfirmation(ctx context.Context, chain domain.Chain, network domain.Network, txHash string) (bool, error)
}

// Simulated is a development broadcaster that fabricates chain-shaped tx
// hashes and confirms everything on first check. Real chain connectors
// implement the same interface.
type Simulated struct{}

// NewSimulated builds a Simulated broadcaster.
func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Broadcast(ctx context.Context, req Request) (string, error) {
	if req.ToAddress == "" {
		return "", fmt.Errorf("broadcast: empty destination address")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}
	digest := hex.EncodeToString(buf)

	switch req.Chain {
	case domain.ChainEthereum, domain.ChainStarknet:
		return "0x" + digest, nil
	default:
		return digest, nil
	}
}

func (s *Simulated) CheckConfirmation(ctx context.Context, chain domain.Chain, network domain.Network, txHash string) (bool, error) {
	return txHash != "", nil
}
