package recon

import "time"

// ProgressSink receives run progress. Events from the parallel stage are
// delivered concurrently, so implementations must be safe for concurrent use.
type ProgressSink interface {
	OnEvent(ProgressEvent)
}

// ProgressEvent describes a phase transition or technique lifecycle change.
type ProgressEvent struct {
	Phase     Phase
	Profile   string
	Stage     string
	Status    string
	Message   string
	Timestamp time.Time
}

// Progress statuses.
const (
	StatusStart   = "start"
	StatusDone    = "completed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ProgressEvent)

// OnEvent calls f.
func (f ProgressFunc) OnEvent(ev ProgressEvent) { f(ev) }

type emitter struct {
	sink ProgressSink
}

func (e emitter) emit(phase Phase, prof, stage, status, msg string) {
	if e.sink == nil {
		return
	}
	e.sink.OnEvent(ProgressEvent{
		Phase:     phase,
		Profile:   prof,
		Stage:     stage,
		Status:    status,
		Message:   msg,
		Timestamp: time.Now(),
	})
}
