package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies stream and websocket payload variants.
type MessageType string

const (
	// Project-scaffold stream units.
	TypeAIResponse   MessageType = "ai_response"
	TypeToolRequest  MessageType = "tool_request"
	TypeToolExecuted MessageType = "tool_executed"

	// Websocket client messages.
	TypeGenerate MessageType = "generate"
	TypeCancel   MessageType = "cancel"

	// Websocket server messages.
	TypeStarted      MessageType = "started"
	TypeChunk        MessageType = "chunk"
	TypeDone         MessageType = "done"
	TypeCancelled    MessageType = "cancelled"
	TypeCancelResult MessageType = "cancel_result"
	TypeError        MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type AIResponse struct {
	Type MessageType `json:"type"`
	Data string      `json:"data"`
}

type ToolRequest struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Arguments string      `json:"arguments"`
}

type ToolExecuted struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Arguments string      `json:"arguments"`
	Result    string      `json:"result"`
}

// ChunkFrame is the SSE data payload for one stream chunk.
type ChunkFrame struct {
	D string `json:"d"`
}

type ErrorFrame struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

type Generate struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
	Kind    string      `json:"kind"`
}

type Cancel struct {
	Type MessageType `json:"type"`
}

type Started struct {
	Type         MessageType `json:"type"`
	GenerationID string      `json:"generation_id"`
	AppID        int64       `json:"app_id"`
	Kind         string      `json:"kind"`
}

type Chunk struct {
	Type MessageType `json:"type"`
	D    string      `json:"d"`
}

type Done struct {
	Type         MessageType `json:"type"`
	GenerationID string      `json:"generation_id,omitempty"`
}

type Cancelled struct {
	Type         MessageType `json:"type"`
	GenerationID string      `json:"generation_id,omitempty"`
}

type CancelResult struct {
	Type    MessageType `json:"type"`
	Outcome string      `json:"outcome"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail,omitempty"`
}

// EncodeUnit marshals a project-scaffold stream message to its JSON text.
func EncodeUnit(msg any) (string, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeGenerate:
		var msg Generate
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Message) == "" {
			return nil, errors.New("invalid generate: message is required")
		}
		return msg, nil
	case TypeCancel:
		return Cancel{Type: TypeCancel}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
