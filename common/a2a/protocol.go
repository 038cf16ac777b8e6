// Package a2a implements the wire types for the Agent-to-Agent (A2A)
// protocol: JSON-RPC 2.0 envelopes carried over broker topics.
//
// This is a genuine re-implementation of the envelope shapes in spec §6,
// not a transport. Nothing here talks to a broker directly; see package
// broker for that.
package a2a

import "time"

const ProtocolVersion = "2.0"

// Envelope is the outer JSON-RPC 2.0 shape shared by requests and responses.
// Exactly one of Method (request) or Result/Error (response) is populated.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  *RequestParams  `json:"params,omitempty"`
	Result  *Result         `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Method names recognized on agent/request topics.
const (
	MethodMessageSend   = "message/send"
	MethodMessageStream = "message/stream"
	MethodTasksCancel   = "tasks/cancel"
)

// RequestParams carries the params object for message/send and message/stream.
type RequestParams struct {
	Message *Message `json:"message,omitempty"`
	// TaskID is set on tasks/cancel requests.
	TaskID string `json:"taskId,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Message is a single A2A message (user request, peer delegation, or reply).
type Message struct {
	Role      MessageRole      `json:"role"`
	MessageID string           `json:"messageId"`
	Kind      string           `json:"kind"` // always "message"
	Parts     []Part           `json:"parts"`
	Metadata  MessageMetadata  `json:"metadata,omitempty"`
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAgent     MessageRole = "agent"
)

// MessageMetadata carries A2A routing metadata (spec §6).
type MessageMetadata struct {
	AgentName    string `json:"agent_name,omitempty"`
	ParentTaskID string `json:"parentTaskId,omitempty"`
}

// PartKind discriminates the Part union.
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindData PartKind = "data"
	PartKindFile PartKind = "file"
)

// Part is the union type for message content (spec §6).
type Part struct {
	Kind PartKind       `json:"kind"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
	File *FilePart      `json:"file,omitempty"`
}

type FilePart struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	URI      string `json:"uri,omitempty"`
	Bytes    []byte `json:"bytes,omitempty"`
}

// Result is the oneof payload of a terminal response, streaming event, or
// artifact-update published on a reply topic.
type Result struct {
	Kind string `json:"kind"` // "task" | "status-update" | "artifact-update"

	// kind == "task" (terminal response, spec §6)
	Task *TaskResult `json:"-"`

	// kind == "status-update" (non-final streaming event)
	StatusUpdate *StatusUpdate `json:"-"`

	// kind == "artifact-update"
	ArtifactUpdate *ArtifactUpdate `json:"-"`
}

// TaskResult is the terminal `task` result (spec §6).
type TaskResult struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

type TaskState string

const (
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCanceled  TaskState = "canceled"
)

type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	ErrorCode string    `json:"errorCode,omitempty"`
	ErrorMsg  string    `json:"errorMessage,omitempty"`
}

// StatusUpdate is a non-final streaming event (spec §6).
type StatusUpdate struct {
	TaskID    string `json:"task_id"`
	ContextID string `json:"context_id"`
	Final     bool   `json:"final"`
	Status    struct {
		State     string    `json:"state"`
		Message   *Message  `json:"message,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"status"`
}

// Artifact is an output artifact produced during a task (spec §6).
type Artifact struct {
	Filename  string `json:"filename"`
	Version   int    `json:"version"`
	MimeType  string `json:"mime_type,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// ArtifactUpdate carries one artifact event (spec §6, §9 open question:
// all artifact-update events for a task MUST precede its terminal response).
type ArtifactUpdate struct {
	TaskID   string   `json:"task_id"`
	Artifact Artifact `json:"artifact"`
}

// UserProperties are broker message headers carried alongside the envelope
// (spec §4.1).
type UserProperties struct {
	ReplyTo  string `json:"replyTo,omitempty"`
	StatusTo string `json:"statusTo,omitempty"`
	ClientID string `json:"clientId,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(role MessageRole, messageID, text string) *Message {
	return &Message{
		Role:      role,
		MessageID: messageID,
		Kind:      "message",
		Parts:     []Part{{Kind: PartKindText, Text: text}},
	}
}

// TextOf returns the concatenated text of all text parts in a message.
func TextOf(msg *Message) string {
	if msg == nil {
		return ""
	}
	var out string
	for _, p := range msg.Parts {
		if p.Kind == PartKindText {
			out += p.Text
		}
	}
	return out
}
