package types

// MeetingFact is the per-contact aggregate the staleness rule is
// evaluated over. DaysSinceLast is undefined when MeetingCount is zero.
type MeetingFact struct {
	MeetingCount  int
	DaysSinceLast int
}
