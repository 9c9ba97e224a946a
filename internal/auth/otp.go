package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	// DefaultOTPTTL is how long a verification code stays usable.
	DefaultOTPTTL = 10 * time.Minute

	otpMin = 100000
	otpMax = 999999
)

// OTPGenerator produces six-digit verification codes and their expiry.
//
// Codes come from crypto/rand, so there is no per-process seed and two
// generators never produce the same sequence.
type OTPGenerator struct {
	ttl time.Duration
	now func() time.Time
}

// NewOTPGenerator creates a generator. ttl <= 0 selects DefaultOTPTTL.
func NewOTPGenerator(ttl time.Duration) *OTPGenerator {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	return &OTPGenerator{ttl: ttl, now: time.Now}
}

// Generate returns a code uniform over [100000, 999999] and the instant it
// stops being accepted.
func (g *OTPGenerator) Generate() (string, time.Time, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: generating otp: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64()+otpMin)
	return code, g.now().Add(g.ttl), nil
}
