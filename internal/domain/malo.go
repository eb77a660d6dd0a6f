package domain

import (
	"fmt"
	"unicode"
)

// ValidateMarketLocationNumber checks a market location identifier. Accepted
// forms are the 11-digit MaLo number with a BDEW check digit (see the BDEW
// MaLo-ID application guide, page 7) or the 33-character long-form identifier.
func ValidateMarketLocationNumber(number string) error {
	if len(number) == 33 {
		return nil
	}
	if len(number) != 11 {
		return fmt.Errorf("market location numbers have 11 digits, got %q", number)
	}
	digits := make([]int, len(number))
	for i, r := range number {
		if !unicode.IsDigit(r) {
			return fmt.Errorf("market location number %q must only contain digits", number)
		}
		digits[i] = int(r - '0')
	}
	want := computeCheckDigit(digits[:10])
	if got := digits[10]; got != want {
		return fmt.Errorf("wrong check digit in %q: expected %d, got %d", number, want, got)
	}
	return nil
}

// computeCheckDigit implements the BDEW scheme: odd positions counted once,
// even positions twice, complement to the next multiple of ten.
func computeCheckDigit(digits []int) int {
	sum := 0
	for i, d := range digits {
		if i%2 == 0 {
			sum += d
		} else {
			sum += 2 * d
		}
	}
	d := (10 - sum%10) % 10
	return d
}
