// Package fair implements the provably-fair crash-point derivation. The
// server commits to a seed (SHA-256 hash published before the round) and
// reveals it at crash so players can recompute the outcome themselves.
package fair

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	"github.com/novaplay-gaming/crash-server/money"
)

var ErrBadSeed = fmt.Errorf("fair: malformed seed")

// hmacSpace is 2^52: the outcome space spanned by the first 13 hex chars of
// the HMAC digest.
const hmacSpace = float64(1 << 52)

// CalculateCrashPoint derives the crash point for one round. Deterministic:
// the same (serverSeed, clientSeed, nonce, houseEdgePercent) always yields
// the same point.
//
// The instant-crash rule uses "h mod floor(100/edge) == 0", which is exact
// only for edge percentages dividing 100. Changing the formula would change
// the payout math and break verification of already-played rounds, so it is
// kept as-is.
func CalculateCrashPoint(serverSeed, clientSeed string, nonce int64, houseEdgePercent float64) (money.CrashPoint, error) {
	if serverSeed == "" {
		return money.CrashPoint{}, ErrBadSeed
	}
	if houseEdgePercent <= 0 || houseEdgePercent >= 100 {
		return money.CrashPoint{}, fmt.Errorf("fair: house edge %v out of range", houseEdgePercent)
	}

	mac := hmac.New(sha512.New, []byte(serverSeed))
	mac.Write([]byte(clientSeed + ":" + strconv.FormatInt(nonce, 10)))
	digest := hex.EncodeToString(mac.Sum(nil))

	h, err := strconv.ParseUint(digest[:13], 16, 64)
	if err != nil {
		return money.CrashPoint{}, fmt.Errorf("fair: parse hmac prefix: %w", err)
	}

	divisor := uint64(math.Floor(100 / houseEdgePercent))
	if h%divisor == 0 {
		return money.NewCrashPoint(1.00)
	}

	hf := float64(h)
	point := math.Floor((100*hmacSpace-hf)/(hmacSpace-hf)) / 100
	if point < 1.00 {
		point = 1.00
	}
	return money.NewCrashPoint(point)
}

// Verify recomputes the crash point from a revealed seed and compares it to
// the claimed value. Used for post-hoc player auditing.
func Verify(serverSeed, clientSeed string, nonce int64, claimed float64, houseEdgePercent float64) bool {
	cp, err := CalculateCrashPoint(serverSeed, clientSeed, nonce, houseEdgePercent)
	if err != nil {
		return false
	}
	return cp.Value() == claimed
}

// HashServerSeed returns the SHA-256 commitment published before the round.
func HashServerSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// GenerateServerSeed returns 32 cryptographically random bytes, hex-encoded.
func GenerateServerSeed() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("fair: generate seed: %w", err)
	}
	return hex.EncodeToString(b), nil
}
