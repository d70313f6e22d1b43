package memory

// EstimateTokens approximates the token count of text as bytes/4. The
// estimate is deliberately coarse and identical across all components
// so region budgets stay comparable. A provider-accurate tokenizer can
// replace this behind the same signature.
func EstimateTokens(text string) int {
	return len(text) / 4
}
