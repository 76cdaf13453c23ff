package call

// Speaker labels as they appear on the wire.
const (
	SpeakerCustomer = "CUSTOMER"
	SpeakerAgent    = "AGENT"
)

// DefaultWindowSeconds is the context window span used for calls that
// have no persisted override.
const DefaultWindowSeconds = 15

// Segment is one attributed span of transcribed speech. A segment is
// immutable once emitted as final; partial text is ephemeral and
// superseded by the next partial.
type Segment struct {
	CallID  string  `json:"call_id"`
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	EndTime float64 `json:"end_time"`
}

// Window holds the most recent WindowSeconds of final segments for a
// call, ordered by arrival.
type Window struct {
	CallID        string    `json:"call_id"`
	WindowSeconds float64   `json:"window_seconds"`
	Segments      []Segment `json:"segments"`
}

// Trigger is a detected conversational cue. It is ephemeral; only the
// cooldown timestamp outlives it.
type Trigger struct {
	CallID     string  `json:"call_id"`
	Type       string  `json:"trigger_type"`
	Confidence float64 `json:"confidence"`
}

type Insights struct {
	Sentiment string `json:"sentiment"`
	Risk      string `json:"risk"`
}

// Card is the suggestion payload delivered to the agent's client.
type Card struct {
	CardID   string   `json:"card_id"`
	CallID   string   `json:"call_id"`
	Facts    []string `json:"facts"`
	NextStep string   `json:"next_step"`
	Insights Insights `json:"insights"`
	Sources  []string `json:"sources"`
}
