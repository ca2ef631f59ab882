// Package ethsig recovers the signer address of an EIP-191 personal-message
// signature. It is the only package that touches elliptic-curve code; the
// rest of the gateway treats "recover signer from message + signature" as a
// capability.
package ethsig

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrMalformedSignature = errors.New("ethsig: malformed signature")
	ErrBadRecoveryID      = errors.New("ethsig: invalid recovery id")
)

// RecoverAddress recovers the address that produced sigHex over the EIP-191
// personal-message digest of msg. The signature is 65 bytes r||s||v hex with
// an optional 0x prefix; v may be 0/1 or 27/28.
func RecoverAddress(msg string, sigHex string) (string, error) {
	sig, err := decodeSignature(sigHex)
	if err != nil {
		return "", err
	}

	digest := accounts.TextHash([]byte(msg))
	pubkey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("ethsig: recover failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pubkey).Hex(), nil
}

// SignMessage signs the EIP-191 personal-message digest of msg with key and
// returns the 0x-prefixed 65-byte signature. Used by callers building signed
// envelopes (and by tests).
func SignMessage(msg string, key *ecdsa.PrivateKey) (string, error) {
	digest := accounts.TextHash([]byte(msg))
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return "", fmt.Errorf("ethsig: sign failed: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// SameAddress compares two addresses ignoring EIP-55 checksum casing.
func SameAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// Normalize returns the EIP-55 checksummed form of addr, or an error when
// addr is not a hex address.
func Normalize(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("ethsig: not a hex address: %q", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

func decodeSignature(sigHex string) ([]byte, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(sigHex), "0x")
	sig, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedSignature, len(sig), crypto.SignatureLength)
	}

	// Wallets emit v as 27/28; go-ethereum expects 0/1.
	v := sig[crypto.SignatureLength-1]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, fmt.Errorf("%w: v=%d", ErrBadRecoveryID, sig[crypto.SignatureLength-1])
	}
	out := make([]byte, crypto.SignatureLength)
	copy(out, sig)
	out[crypto.SignatureLength-1] = v
	return out, nil
}
