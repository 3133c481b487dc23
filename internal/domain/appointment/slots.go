package appointment

import (
	"sort"
	"strings"
	"time"
)

const labelLayout = "15:04"

// SlotStart extracts the start time from a slot label. Labels are either
// "HH:MM" or a range "HH:MM-HH:MM"; the start is returned normalised.
func SlotStart(label string) (string, bool) {
	start, _, _ := strings.Cut(strings.TrimSpace(label), "-")
	t, err := time.Parse(labelLayout, strings.TrimSpace(start))
	if err != nil {
		return "", false
	}
	return t.Format(labelLayout), true
}

// ValidLabel reports whether label is a well formed slot label. A range must
// end after it starts.
func ValidLabel(label string) bool {
	start, end, isRange := strings.Cut(strings.TrimSpace(label), "-")
	s, err := time.Parse(labelLayout, strings.TrimSpace(start))
	if err != nil {
		return false
	}
	if !isRange {
		return true
	}
	e, err := time.Parse(labelLayout, strings.TrimSpace(end))
	return err == nil && e.After(s)
}

// NormalizeLabel returns label in canonical zero-padded form, "09:00" or
// "09:00-09:30".
func NormalizeLabel(label string) (string, bool) {
	if !ValidLabel(label) {
		return "", false
	}
	start, end, isRange := strings.Cut(strings.TrimSpace(label), "-")
	s, _ := SlotStart(start)
	if !isRange {
		return s, true
	}
	e, _ := SlotStart(end)
	return s + "-" + e, true
}

// LabelOf formats the time of day of t the way slot starts are written.
func LabelOf(t time.Time) string {
	return t.Format(labelLayout)
}

// Available returns the labels whose start is not taken by any of booked,
// ordered by start time. Malformed labels and duplicates are dropped.
func Available(labels []string, booked []time.Time) []string {
	taken := make(map[string]bool, len(booked))
	for _, t := range booked {
		taken[LabelOf(t)] = true
	}

	type slot struct{ start, label string }
	seen := make(map[string]bool, len(labels))
	free := make([]slot, 0, len(labels))
	for _, l := range labels {
		start, ok := SlotStart(l)
		if !ok || taken[start] || seen[l] {
			continue
		}
		seen[l] = true
		free = append(free, slot{start: start, label: l})
	}

	sort.SliceStable(free, func(i, j int) bool { return free[i].start < free[j].start })

	out := make([]string, len(free))
	for i, s := range free {
		out[i] = s.label
	}
	return out
}

// Offers reports whether one of labels starts exactly at the time of day of
// at. Only whole-minute instants can match.
func Offers(labels []string, at time.Time) bool {
	if at.Second() != 0 || at.Nanosecond() != 0 {
		return false
	}
	want := LabelOf(at)
	for _, l := range labels {
		if start, ok := SlotStart(l); ok && start == want {
			return true
		}
	}
	return false
}
