package subtitle

// NoActive marks that no caption has been selected yet.
const NoActive = -1

// ActiveIndex returns the index of the first caption whose closed interval
// [start, end] contains currentTime. Captions with unparseable timestamps
// never match.
//
// When nothing matches, previous is returned unchanged: the last selection
// stays highlighted through gaps between captions.
func ActiveIndex(captions []Caption, currentTime float64, previous int) int {
	for i, c := range captions {
		start, end, ok := c.Interval()
		if !ok {
			continue
		}
		if currentTime >= start && currentTime <= end {
			return i
		}
	}
	return previous
}
