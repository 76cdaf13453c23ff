package stt

import "context"

// Result is one transcription hypothesis from the recognition engine.
// Partial results are ephemeral and superseded by the next result for
// the same span; Final marks a committed segment.
type Result struct {
	Text       string
	Speaker    string
	Start      float64
	Duration   float64
	Confidence float64
	Final      bool
}

// End returns the end timestamp of the result in seconds.
func (r Result) End() float64 {
	return r.Start + r.Duration
}

// LiveSession is one streaming recognition session. Audio frames go in
// via SendAudio; hypotheses come out on Results, which closes once the
// engine has flushed after Stop or on session failure.
type LiveSession interface {
	SendAudio(data []byte) error
	Stop() error
	Results() <-chan Result
	// Err reports the terminal session error, if any, once Results
	// has closed.
	Err() error
}

// Recognition starts live transcription sessions.
type Recognition interface {
	Start(ctx context.Context) (LiveSession, error)
}
