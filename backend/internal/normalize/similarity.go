package normalize

import "math"

// Ratio is the Ratcliff/Obershelp similarity of a and b in [0, 1]: twice the
// number of matching runes over the total length, where matches are found by
// recursively taking the longest common block. It agrees with
// difflib.SequenceMatcher.ratio for inputs without junk.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingRunes(ra, rb)) / float64(total)
}

func matchingRunes(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	i, j, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingRunes(a[:i], b[:j]) +
		matchingRunes(a[i+size:], b[j+size:])
}

// longestCommonBlock finds the earliest longest common substring.
func longestCommonBlock(a, b []rune) (besti, bestj, bestsize int) {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > bestsize {
					bestsize = cur[j]
					besti = i - cur[j]
					bestj = j - cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return besti, bestj, bestsize
}

// Cosine returns the cosine similarity of two vectors, or 0 when either is
// empty, zero or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
