package domain

const (
	EventNameResultCreated = "result.created"
)

// EventResultCreated fires once per finalized session, after the result row
// is durably stored.
type EventResultCreated struct {
	Result TestResult
}

func (EventResultCreated) Name() string { return EventNameResultCreated }
