package indexer

import "sort"

// CaptureDowntime implements §8 scenario 5: given the event timestamps
// (seconds) observed within [windowStart, windowEnd], any gap between
// consecutive events (or between a window edge and its nearest event)
// strictly greater than thresholdSeconds counts as one downtime occurrence,
// contributing its full duration to totalDowntime. A cycle containing at
// least one event never contributes, since the gap on either side of that
// event resets to zero there — "cycles containing events count as active."
//
// Events outside [windowStart, windowEnd] are ignored. Using a strict ">"
// comparison (not ">=") avoids the off-by-one of flagging a gap exactly
// equal to the threshold as downtime.
func CaptureDowntime(eventTimestamps []int64, windowStart, windowEnd, thresholdSeconds int64) (totalDowntime int64, occurrences int) {
	events := make([]int64, 0, len(eventTimestamps))
	for _, ts := range eventTimestamps {
		if ts >= windowStart && ts <= windowEnd {
			events = append(events, ts)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })

	mark := func(gapStart, gapEnd int64) {
		gap := gapEnd - gapStart
		if gap > thresholdSeconds {
			totalDowntime += gap
			occurrences++
		}
	}

	prev := windowStart
	for _, ts := range events {
		mark(prev, ts)
		prev = ts
	}
	mark(prev, windowEnd)

	return totalDowntime, occurrences
}
