package keyword

// EditDistance is the rune-level Levenshtein distance between a and b.
func EditDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// nameAccepts reports whether query is close enough to name to resolve to it:
// at most half of the longer string may need editing.
func nameAccepts(query, name string) bool {
	n := len([]rune(name))
	if q := len([]rune(query)); q > n {
		n = q
	}
	limit := n / 2
	if limit < 1 {
		limit = 1
	}
	return EditDistance(query, name) <= limit
}

func min3(a, b, c int) int {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}
