// Package treasury resolves platform fee-collection wallets per chain/network.
package treasury

import (
	"strings"

	"chainpay/internal/domain"
	"chainpay/pkg/config"
	"chainpay/pkg/errors"
)

// Directory is a pure config lookup from (chain, network) to the treasury
// address. It has no side effects and must be consulted before any ledger
// write so a missing configuration aborts without partial state.
type Directory struct {
	wallets map[string]string
}

// NewDirectory builds a Directory from injected configuration.
func NewDirectory(cfg config.TreasuryConfig) *Directory {
	wallets := make(map[string]string, len(cfg.Wallets))
	for k, v := range cfg.Wallets {
		wallets[strings.ToLower(k)] = v
	}
	return &Directory{wallets: wallets}
}

func key(chain domain.Chain, network domain.Network) string {
	return strings.ToLower(string(chain)) + ":" + strings.ToLower(string(network))
}

// TreasuryWallet returns the fee-collection address for a chain/network.
func (d *Directory) TreasuryWallet(chain domain.Chain, network domain.Network) (string, error) {
	addr, ok := d.wallets[key(chain, network)]
	if !ok || addr == "" {
		return "", errors.NewConfiguration(
			"treasury."+key(chain, network),
			"no treasury wallet configured for this chain and network",
		)
	}
	return addr, nil
}

// IsConfigured is a pre-flight check for callers that want to fail early.
func (d *Directory) IsConfigured(chain domain.Chain, network domain.Network) bool {
	addr, ok := d.wallets[key(chain, network)]
	return ok && addr != ""
}
