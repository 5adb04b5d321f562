package util

import "fmt"

// FormatPrice renders a price with precision scaled to its magnitude,
// matching the tiers used in outbound notifications.
func FormatPrice(p float64) string {
	switch {
	case p < 0.01:
		return fmt.Sprintf("%.6f", p)
	case p < 1.0:
		return fmt.Sprintf("%.5f", p)
	default:
		return fmt.Sprintf("%.4f", p)
	}
}
