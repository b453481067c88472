package ir

// Outcome values recorded on a Reply.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Coin is an amount of a single denomination attached to the outer call.
// Amount is a decimal string to stay compatible with Uint128 on chain.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// Dispatch is the persisted record of one outer relay call.
type Dispatch struct {
	ID             string   `json:"id"`       // Content-addressed hash
	BatchID        string   `json:"batch_id"` // UUIDv7 assigned by the executor
	Sender         string   `json:"sender"`
	HostChain      string   `json:"host_chain"`
	ReplyToken     uint64   `json:"reply_token"` // 0 when no reply was requested
	TypeURLs       []string `json:"type_urls"`   // Inner messages in batch order
	Funds          []Coin   `json:"funds"`
	Call           []byte   `json:"call"` // Rendered outer sub-message JSON
	Seq            int64    `json:"seq"`  // Logical clock
	CatalogVersion string   `json:"catalog_version"`
	RecordVersion  string   `json:"record_version"`
}

// Reply is the persisted record of a completion notification.
type Reply struct {
	ID         string `json:"id"` // Content-addressed hash
	DispatchID string `json:"dispatch_id"`
	Token      uint64 `json:"token"`
	Outcome    string `json:"outcome"` // OutcomeSuccess or OutcomeFailure
	Error      string `json:"error,omitempty"`
	Data       []byte `json:"data,omitempty"`
	Seq        int64  `json:"seq"`
}

// Succeeded reports whether the reply reports a completed outer call.
func (r Reply) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}
