// Package tokens provides the character-division token heuristic shared
// by provider clients that have no exact tokenizer available.
package tokens

// DefaultDivisor is the characters-per-token ratio used when a provider
// documents no better value. Roughly four characters per token holds
// for English text across the wired vendors; the estimate feeds quota
// accounting, so every client states the divisor it uses.
const DefaultDivisor = 4

// Estimate returns ceil(len(text) / divisor). Empty text is zero
// tokens; a non-positive divisor falls back to DefaultDivisor.
func Estimate(text string, divisor int) int {
	if text == "" {
		return 0
	}
	if divisor <= 0 {
		divisor = DefaultDivisor
	}
	return (len(text) + divisor - 1) / divisor
}
