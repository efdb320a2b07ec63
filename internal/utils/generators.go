package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateBookingReference returns a human-presentable unique reference,
// e.g. BK1724932800123X7Q4M. The bookings table enforces uniqueness; the
// random suffix makes same-millisecond collisions a non-issue in practice.
func GenerateBookingReference() string {
	suffix := make([]byte, 5)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(referenceAlphabet))))
		if err != nil {
			suffix[i] = referenceAlphabet[0]
			continue
		}
		suffix[i] = referenceAlphabet[n.Int64()]
	}
	return fmt.Sprintf("BK%d%s", time.Now().UnixMilli(), suffix)
}
