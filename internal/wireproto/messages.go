// Package wireproto defines the UDP task-protocol messages (§3, §4.5, §6):
// TaskRequest, TaskAccept, TaskReject, and Proof, plus canonical-JSON
// hashing used for request identity and commander signatures.
package wireproto

// MessageType is the integer discriminator carried in every datagram's
// message_type field.
type MessageType int

const (
	MsgTaskRequest MessageType = 0x01
	MsgTaskAccept  MessageType = 0x02
	MsgTaskReject  MessageType = 0x03
	MsgProof       MessageType = 0x04
)

// TaskRequest is sent commander -> executor (§3).
type TaskRequest struct {
	MessageType         MessageType `json:"message_type"`
	MessageName         string      `json:"message_name"`
	TaskID              string      `json:"task_id"`
	Timestamp           int64       `json:"timestamp"`
	TaskType            string      `json:"task_type"`
	RequestedCapability string      `json:"requested_capability"`
	MaxAmountSats       int64       `json:"max_amount_sats"`
	CapabilityTokenB64  string      `json:"capability_token_b64"`
	CommanderPubkey     string      `json:"commander_pubkey"`
	CommanderSignature  string      `json:"commander_signature,omitempty"`
}

// TaskAccept is sent executor -> commander on successful validation (§3).
// Type additionally carries the settlement wire vocabulary's string
// discriminator (§4.10, §6) so the same datagram is readable by both a
// plain commander (which dispatches on MessageType) and the settlement
// bridge (which dispatches on Type).
type TaskAccept struct {
	MessageType          MessageType `json:"message_type"`
	MessageName          string      `json:"message_name"`
	Type                 string      `json:"type"`
	TaskID               string      `json:"task_id"`
	Timestamp            int64       `json:"timestamp"`
	InReplyTo            string      `json:"in_reply_to"`
	EstimatedDurationSec int64       `json:"estimated_duration_sec"`
	PaymentHash          string      `json:"payment_hash"`
	AmountSats           int64       `json:"amount_sats"`
	ExecutorPubkey       string      `json:"executor_pubkey"`
	ExecutorSignature    string      `json:"executor_signature"`
}

// TaskReject is sent executor -> commander when validation fails (§3).
type TaskReject struct {
	MessageType MessageType `json:"message_type"`
	MessageName string      `json:"message_name"`
	Type        string      `json:"type"`
	TaskID      string      `json:"task_id"`
	Timestamp   int64       `json:"timestamp"`
	Reason      string      `json:"reason"`
	Details     []string    `json:"details"`
	Notes       []string    `json:"notes"`
}

// Proof is sent executor -> commander after simulated execution (§3).
type Proof struct {
	MessageType MessageType `json:"message_type"`
	MessageName string      `json:"message_name"`
	Type        string      `json:"type"`
	TaskID      string      `json:"task_id"`
	Timestamp   int64       `json:"timestamp"`
	Status      string      `json:"status"`
	OutputHash  string      `json:"output_hash"`
	ProofHash   string      `json:"proof_hash"`
	PaymentHash string      `json:"payment_hash"`
}

// Envelope is used to sniff message_type off an inbound datagram before
// deciding which concrete struct to unmarshal into, mirroring the
// type-dispatch idiom of lnwire's ReadMessage/makeEmptyMessage switch,
// adapted from a binary length-prefixed frame to a JSON object frame.
type Envelope struct {
	MessageType MessageType `json:"message_type"`
}
