package security

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goliatone/go-paychain/core"
)

const custodySeedBytes = 32

// GenerateSeed returns a fresh 32-byte custody seed as 0x hex.
func GenerateSeed() (string, error) {
	seed := make([]byte, custodySeedBytes)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("security: generate custody seed: %w", err)
	}
	return hexutil.Encode(seed), nil
}

// SealSeed turns a 0x hex custody seed into the envelope stored in
// custody.seed when custody.sealed is true.
func SealSeed(ctx context.Context, provider core.SecretProvider, seedHex string) (string, error) {
	if provider == nil {
		return "", fmt.Errorf("security: secret provider is required")
	}
	raw := strings.TrimSpace(seedHex)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	seed, err := hexutil.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("security: custody seed is invalid hex: %w", err)
	}
	if len(seed) == 0 {
		return "", fmt.Errorf("security: custody seed is required")
	}
	sealed, err := provider.Encrypt(ctx, seed)
	if err != nil {
		return "", err
	}
	return string(sealed), nil
}

// OpenSeed reverses SealSeed and returns the seed as 0x hex.
func OpenSeed(ctx context.Context, provider core.SecretProvider, sealed string) (string, error) {
	if provider == nil {
		return "", fmt.Errorf("security: secret provider is required")
	}
	opened, err := provider.Decrypt(ctx, []byte(strings.TrimSpace(sealed)))
	if err != nil {
		return "", err
	}
	return hexutil.Encode(opened), nil
}
