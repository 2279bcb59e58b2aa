package indexer

import "testing"

func TestCaptureDowntimeScenario(t *testing.T) {
	// §8 scenario 5: events at 900,000 and 970,000 s, threshold = 1 hour
	// (3600s), window 900,000 -> 1,000,000 s.
	total, occurrences := CaptureDowntime([]int64{900_000, 970_000}, 900_000, 1_000_000, 3600)
	if total <= 0 {
		t.Fatalf("expected totalDowntime > 0, got %d", total)
	}
	if occurrences <= 0 {
		t.Fatalf("expected downtimeOccurrences > 0, got %d", occurrences)
	}
}

func TestCaptureDowntimeNoGapsWhenDense(t *testing.T) {
	events := []int64{0, 1000, 2000, 3000, 4000, 5000}
	total, occurrences := CaptureDowntime(events, 0, 5000, 3600)
	if total != 0 || occurrences != 0 {
		t.Fatalf("expected no downtime when every gap is under threshold, got total=%d occurrences=%d", total, occurrences)
	}
}

func TestCaptureDowntimeIgnoresEventsOutsideWindow(t *testing.T) {
	events := []int64{-100, 500_000, 2_000_000}
	total, occurrences := CaptureDowntime(events, 900_000, 1_000_000, 3600)
	// no in-window events at all: the whole window is one downtime gap.
	if occurrences != 1 {
		t.Fatalf("expected exactly one occurrence spanning the whole window, got %d", occurrences)
	}
	if total != 100_000 {
		t.Fatalf("expected total downtime of 100000, got %d", total)
	}
}

func TestCaptureDowntimeGapExactlyAtThresholdIsNotDowntime(t *testing.T) {
	total, occurrences := CaptureDowntime([]int64{0, 3600}, 0, 3600, 3600)
	if total != 0 || occurrences != 0 {
		t.Fatalf("expected a gap exactly at threshold to not count as downtime, got total=%d occurrences=%d", total, occurrences)
	}
}
