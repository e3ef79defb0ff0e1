package wallet

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"

	"chainpay/internal/domain"
)

// LocalKeyProvider generates development keypairs and seals the private key
// with a secretbox before it ever leaves the provider. Production deployments
// swap in an HSM or custody-service backed implementation of KeyProvider.
type LocalKeyProvider struct {
	sealKey [32]byte
}

// NewLocalKeyProvider builds a provider sealing keys with the given 32-byte
// secret. The secret comes from configuration, not from this package.
func NewLocalKeyProvider(secret []byte) (*LocalKeyProvider, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("key provider secret must be 32 bytes, got %d", len(secret))
	}
	p := &LocalKeyProvider{}
	copy(p.sealKey[:], secret)
	return p, nil
}

func (p *LocalKeyProvider) Generate(ctx context.Context, chain domain.Chain, network domain.Network) (string, string, error) {
	priv := make([]byte, 32)
	if _, err := rand.Read(priv); err != nil {
		return "", "", fmt.Errorf("generate private key: %w", err)
	}

	address, err := deriveAddress(chain, priv)
	if err != nil {
		return "", "", err
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], priv, &nonce, &p.sealKey)

	return address, hex.EncodeToString(sealed), nil
}

// deriveAddress fabricates a chain-shaped address from key bytes. These are
// not real derivations; they only need to satisfy per-chain format checks.
func deriveAddress(chain domain.Chain, priv []byte) (string, error) {
	switch chain {
	case domain.ChainEthereum:
		return "0x" + hex.EncodeToString(priv[:20]), nil
	case domain.ChainStarknet:
		return "0x" + hex.EncodeToString(priv), nil
	case domain.ChainStellar:
		// StrKey layout: 1 version byte + 32 payload bytes + 2 checksum
		// bytes. 35 bytes encode to 56 base32 chars, and the account
		// version byte's high bits make the first char 'G'.
		material := make([]byte, 0, 35)
		material = append(material, 0x30)
		material = append(material, priv...)
		material = append(material, priv[0], priv[1])
		return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(material), nil
	case domain.ChainBitcoin, domain.ChainSolana, domain.ChainPolkadot, domain.ChainTron:
		return encodeBase58(priv), nil
	default:
		return "", fmt.Errorf("unsupported chain %q", chain)
	}
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func encodeBase58(b []byte) string {
	var out []byte
	n := make([]byte, len(b))
	copy(n, b)
	for len(n) > 0 {
		var rem int
		var quot []byte
		for _, c := range n {
			acc := rem*256 + int(c)
			digit := acc / 58
			rem = acc % 58
			if len(quot) > 0 || digit > 0 {
				quot = append(quot, byte(digit))
			}
		}
		out = append([]byte{base58Alphabet[rem]}, out...)
		n = quot
	}
	for _, c := range b {
		if c != 0 {
			break
		}
		out = append([]byte{base58Alphabet[0]}, out...)
	}
	return string(out)
}
