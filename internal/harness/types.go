package harness

// Trace event types.
const (
	EventDispatch = "dispatch"
	EventReply    = "reply"
)

// TraceEvent is one record of the relay log as a scenario observed it.
// Content-addressed IDs are left out so traces stay readable and stable
// across catalog rendering changes; replies point at their batch instead.
type TraceEvent struct {
	Type       string   `json:"type"` // "dispatch" or "reply"
	Seq        int64    `json:"seq"`
	BatchID    string   `json:"batch_id,omitempty"`
	Sender     string   `json:"sender,omitempty"`
	HostChain  string   `json:"host_chain,omitempty"`
	TypeURLs   []string `json:"type_urls,omitempty"`
	ReplyToken uint64   `json:"reply_token,omitempty"`
	Action     string   `json:"action,omitempty"` // reply token action, "" for untracked replies
	Outcome    string   `json:"outcome,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds dispatches and replies ordered by seq.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Dispatches returns the dispatch events of the trace in order.
func (r *Result) Dispatches() []TraceEvent {
	out := []TraceEvent{}
	for _, e := range r.Trace {
		if e.Type == EventDispatch {
			out = append(out, e)
		}
	}
	return out
}
