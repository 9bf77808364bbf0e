// Package textmetric counts words and grapheme clusters using Unicode
// segmentation, so the change envelope and status displays agree on
// counts regardless of script.
package textmetric

import (
	"unicode"

	"github.com/rivo/uniseg"
)

// Words returns the number of word segments containing at least one
// letter or digit. Whitespace and punctuation runs do not count.
func Words(s string) int {
	count := 0
	state := -1
	var seg string
	for len(s) > 0 {
		seg, s, state = uniseg.FirstWordInString(s, state)
		if wordLike(seg) {
			count++
		}
	}
	return count
}

func wordLike(seg string) bool {
	for _, r := range seg {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Graphemes returns the number of user-perceived characters.
func Graphemes(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// NextGrapheme returns the rune offset just past the grapheme cluster
// beginning at the given rune offset. Offsets at or past the end come
// back unchanged, clamped to the rune count.
func NextGrapheme(s string, offset int) int {
	pos := 0
	state := -1
	var cluster string
	for len(s) > 0 {
		cluster, s, _, state = uniseg.FirstGraphemeClusterInString(s, state)
		next := pos + len([]rune(cluster))
		if pos >= offset {
			return next
		}
		pos = next
	}
	return pos
}

// PrevGrapheme returns the rune offset of the start of the grapheme
// cluster ending at or spanning the given rune offset, so a backward
// delete removes a whole user-perceived character instead of splitting
// an emoji sequence. Offsets at or before the first cluster return 0;
// offsets past the end clamp to the final cluster.
func PrevGrapheme(s string, offset int) int {
	if offset <= 0 {
		return 0
	}
	start := 0
	pos := 0
	state := -1
	var cluster string
	for len(s) > 0 {
		cluster, s, _, state = uniseg.FirstGraphemeClusterInString(s, state)
		start = pos
		pos += len([]rune(cluster))
		if pos >= offset {
			break
		}
	}
	return start
}
