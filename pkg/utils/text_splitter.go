package utils

import "unicode"

// SplitText splits text into chunks of at most chunkSize runes, each starting
// overlap runes before the previous chunk ended. A chunk end is pulled back to
// the last whitespace in its final quarter so words are not cut in half.
func SplitText(text string, chunkSize int, overlap int) []string {
	runes := []rune(text)
	if chunkSize <= 0 || len(runes) <= chunkSize {
		return []string{text}
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	var chunks []string
	total := len(runes)
	start := 0
	for start < total {
		end := start + chunkSize
		if end >= total {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		floor := end - chunkSize/4
		for cut := end; cut > floor && cut > start+overlap; cut-- {
			if unicode.IsSpace(runes[cut-1]) {
				end = cut
				break
			}
		}

		chunks = append(chunks, string(runes[start:end]))
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}
