package statusapi

// Response types for the read-only ops REST/WS surface: the direct
// descendant of the teacher's market-data feed, repointed at solver
// telemetry instead of order-book ticks.

// SchedulerStats mirrors scheduler.Stats for JSON responses.
type SchedulerStats struct {
	Scheduled int64 `json:"scheduled"`
	Selected  int64 `json:"selected"`
	Confirmed int64 `json:"confirmed"`
	Reverted  int64 `json:"reverted"`
	TimedOut  int64 `json:"timedOut"`
}

// RegistrySnapshot summarizes live registry occupancy for the ops surface.
type RegistrySnapshot struct {
	OwnerCount       int            `json:"ownerCount"`
	PairCount        int            `json:"pairCount"`
	PairsByOrderbook map[string]int `json:"pairsByOrderbook"`
}

// OutcomeEvent is one attempt outcome as pushed over the WebSocket feed.
type OutcomeEvent struct {
	Type               string `json:"type"`
	TimestampMillis    int64  `json:"timestampMillis"`
	OrderHash          string `json:"orderHash"`
	SelectorOutcome    string `json:"selectorOutcome"`
	PipelineOutcome    string `json:"pipelineOutcome"`
	Reason             string `json:"reason,omitempty"`
	TxHash             string `json:"txHash,omitempty"`
	EstimatedProfitEth string `json:"estimatedProfitEth,omitempty"`
}

// WSSubscribeRequest is a client -> server subscription control message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// ErrorResponse is the REST error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
