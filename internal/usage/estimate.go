package usage

import "unicode"

// Fixed image token cost per started 100KB block.
const imageTokensPerBlock = 258

// EstimateText provides a rough token estimate.
// Chinese is ~2 chars/token, others ~4 chars/token. Non-empty text is at
// least one token.
func EstimateText(text string) int {
	if text == "" {
		return 0
	}
	var chinese, other int
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			chinese++
			continue
		}
		other++
	}
	n := (chinese+1)/2 + (other+3)/4
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateImage estimates the input token cost of an encoded image of size
// bytes: 258 tokens plus 258 per full 100KB.
func EstimateImage(size int) int {
	if size <= 0 {
		return 0
	}
	kb := size / 1024
	return imageTokensPerBlock + (kb/100)*imageTokensPerBlock
}

// EstimateDocument estimates the input token cost of a binary document. It
// uses the image block heuristic since documents are billed as image input.
func EstimateDocument(size int) int {
	return EstimateImage(size)
}
