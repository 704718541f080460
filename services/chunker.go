package services

import (
	"strings"
	"unicode/utf8"
)

// sentenceBreaks are tried in order when no paragraph break lands past the
// window midpoint.
var sentenceBreaks = []string{". ", "! ", "? ", "\n"}

// Chunker splits extracted text into overlapping, boundary-aware segments.
// Offsets are byte-based but every cut lands on a rune boundary, so chunks
// of valid UTF-8 input are always valid UTF-8.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker returns a chunker with the given window size and overlap.
// Non-positive or inconsistent values fall back to 1000/200.
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	return Chunker{Size: size, Overlap: overlap}
}

// Split scans left to right. Each window proposes a cut at start+Size, then
// prefers a paragraph break past the midpoint, then a sentence break, then
// the hard boundary. Trimmed-empty segments are dropped. The cursor strictly
// advances because Overlap < Size, so the scan always terminates.
func (c Chunker) Split(text string) []string {
	if len(text) == 0 {
		return nil
	}

	var chunks []string
	start := 0

	for start < len(text) {
		end := start + c.Size

		if end < len(text) {
			// The hard boundary may land inside a multi-byte rune; break
			// candidates are ASCII so any chosen break stays rune-aligned.
			end = runeFloor(text, end)
			if end <= start {
				end = runeCeil(text, start+1)
			}

			mid := start + c.Size/2
			if paraBreak := strings.LastIndex(text[start:end], "\n\n"); paraBreak >= 0 && start+paraBreak > mid {
				end = start + paraBreak + 2
			} else {
				for _, punct := range sentenceBreaks {
					if sentBreak := strings.LastIndex(text[start:end], punct); sentBreak >= 0 && start+sentBreak > mid {
						end = start + sentBreak + len(punct)
						break
					}
				}
			}
		}

		sliceEnd := end
		if sliceEnd > len(text) {
			sliceEnd = len(text)
		}
		if chunk := strings.TrimSpace(text[start:sliceEnd]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end < len(text) {
			next := runeFloor(text, end-c.Overlap)
			if next <= start {
				next = runeCeil(text, start+1)
			}
			start = next
		} else {
			start = end
		}
	}

	return chunks
}

// runeFloor backs i up to the nearest rune start at or before it.
func runeFloor(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeCeil advances i to the nearest rune start at or after it.
func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
