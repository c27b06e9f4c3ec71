package engine

import (
	"context"
	"strings"

	"github.com/garcomlabs/garcom/internal/tools"
)

// FixedFeeValidator accepts any non-trivial address with a flat delivery
// fee. It stands in for a real geo/zone service in the REPL and in tests.
type FixedFeeValidator struct {
	Fee        int64 // cents
	ETAMinutes int
}

// Validate implements tools.AddressValidator.
func (v *FixedFeeValidator) Validate(_ context.Context, _ string, address string) (*tools.AddressResult, error) {
	trimmed := strings.TrimSpace(address)
	if len(trimmed) < 10 {
		return &tools.AddressResult{
			Valid:  false,
			Reason: "address is too short, ask for street, number, and district",
		}, nil
	}
	return &tools.AddressResult{
		Valid:            true,
		FormattedAddress: trimmed,
		Fee:              v.Fee,
		ETAMinutes:       v.ETAMinutes,
	}, nil
}
