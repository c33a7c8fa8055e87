package uid

import (
	"context"
	"fmt"
	"math/rand"

	"production-tracker-backend/internal/apperr"
)

// DefaultAttempts bounds the number of candidate barcodes tried per request.
const DefaultAttempts = 200

// Claimer persists code if it is unused. It reports false when the code is already taken.
type Claimer interface {
	ClaimUniqueID(ctx context.Context, code string) (bool, error)
}

// BarcodeGenerator issues fresh V6 barcodes.
type BarcodeGenerator struct {
	claimer  Claimer
	attempts int
	intn     func(n int) int
}

// NewBarcodeGenerator creates a generator that claims codes through c.
func NewBarcodeGenerator(c Claimer) *BarcodeGenerator {
	return &BarcodeGenerator{claimer: c, attempts: DefaultAttempts, intn: rand.Intn}
}

// Next returns a newly claimed 9-digit barcode, or an ExhaustedError when
// every attempt collided with an existing code.
func (g *BarcodeGenerator) Next(ctx context.Context) (string, error) {
	for i := 0; i < g.attempts; i++ {
		code := fmt.Sprintf("%09d", g.intn(1_000_000_000))

		claimed, err := g.claimer.ClaimUniqueID(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to claim barcode %s: %w", code, err)
		}
		if claimed {
			return code, nil
		}
	}
	return "", &apperr.ExhaustedError{Attempts: g.attempts, What: "barcodes"}
}
