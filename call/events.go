package call

// Payloads carried on the event bus between pipeline stages. Field
// names follow the wire protocol so they can be forwarded to
// subscribers without reshaping.

type PartialTranscript struct {
	CallID  string `json:"call_id"`
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
}

type FinalTranscript struct {
	CallID  string  `json:"call_id"`
	Segment Segment `json:"segment"`
}

type ContextUpdate struct {
	CallID  string  `json:"call_id"`
	Window  Window  `json:"context_window"`
	Segment Segment `json:"segment"`
}

type TriggerFired struct {
	CallID  string  `json:"call_id"`
	Trigger Trigger `json:"trigger"`
	Segment Segment `json:"segment"`
	Window  Window  `json:"context_window"`
}

type FactsRetrieved struct {
	CallID         string   `json:"call_id"`
	Facts          []string `json:"facts"`
	Sources        []string `json:"sources"`
	ContextSnippet string   `json:"context_snippet"`
}

type CardReady struct {
	CallID string `json:"call_id"`
	Card   Card   `json:"card"`
}
