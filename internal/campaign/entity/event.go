package entity

// Severity classifies a Log event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

func (s Severity) String() string {
	return string(s)
}

// EventType is the discriminator of an Event.
type EventType string

const (
	EventTypeLog      EventType = "log"
	EventTypeProgress EventType = "progress"
	EventTypeComplete EventType = "complete"
)

// Event is one element of a dispatch run's ordered output.
type Event interface {
	Type() EventType
}

// Log is a human-readable status line.
type Log struct {
	Message  string
	Severity Severity
}

func (Log) Type() EventType { return EventTypeLog }

// Progress reports the counters after one recipient was processed.
type Progress struct {
	PercentDone  int
	Total        int
	SentCount    int
	FailedCount  int
	PendingCount int
}

func (Progress) Type() EventType { return EventTypeProgress }

// Complete is the last event of a run that iterated every recipient.
type Complete struct {
	SentCount   int
	FailedCount int
}

func (Complete) Type() EventType { return EventTypeComplete }

// Counters tracks per-run outcomes.
type Counters struct {
	Total  int
	Sent   int
	Failed int
}

// Pending returns the recipients not yet attempted.
func (c Counters) Pending() int {
	return c.Total - c.Sent - c.Failed
}

// Progress snapshots c after the recipient at 1-indexed position.
func (c Counters) Progress(position int) Progress {
	percent := 0
	if c.Total > 0 {
		percent = position * 100 / c.Total
	}

	return Progress{
		PercentDone:  percent,
		Total:        c.Total,
		SentCount:    c.Sent,
		FailedCount:  c.Failed,
		PendingCount: c.Pending(),
	}
}

// Complete snapshots c as the terminal event.
func (c Counters) Complete() Complete {
	return Complete{SentCount: c.Sent, FailedCount: c.Failed}
}
