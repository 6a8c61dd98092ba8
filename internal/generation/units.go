package generation

import (
	"fmt"
	"strings"

	"github.com/antoniostano/codeforge/internal/protocol"
)

// Kind selects how provider output is framed and which artifacts are built.
type Kind string

const (
	KindHTML       Kind = "html"
	KindMultiFile  Kind = "multi_file"
	KindVueProject Kind = "vue_project"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindHTML, KindMultiFile, KindVueProject:
		return k, nil
	case "":
		return KindHTML, nil
	default:
		return "", fmt.Errorf("unknown task kind %q", s)
	}
}

// UnitType tags one piece of provider output.
type UnitType string

const (
	UnitText        UnitType = "text"
	UnitToolRequest UnitType = "tool_request"
	UnitToolResult  UnitType = "tool_result"
	// UnitFinal marks the provider's own end of response. It carries no
	// payload for the client.
	UnitFinal UnitType = "final"
)

type Unit struct {
	Type       UnitType
	Text       string
	ToolCallID string
	ToolName   string
	Arguments  string
	Result     string
}

func TextUnit(text string) Unit {
	return Unit{Type: UnitText, Text: text}
}

// Render is the unit's contribution to the accumulated transcript.
func (u Unit) Render() string {
	switch u.Type {
	case UnitText:
		return u.Text
	case UnitToolRequest:
		return "\n\n[tool] " + u.ToolName + "\n"
	case UnitToolResult:
		return "\n" + u.Result + "\n"
	default:
		return ""
	}
}

// Encode produces the sink payload for the unit. Single-file and
// multi-file kinds stream raw text; project scaffolds stream JSON messages.
// An empty payload means nothing is sent.
func (u Unit) Encode(kind Kind) (string, error) {
	if kind != KindVueProject {
		return u.Render(), nil
	}
	switch u.Type {
	case UnitText:
		if u.Text == "" {
			return "", nil
		}
		return protocol.EncodeUnit(protocol.AIResponse{Type: protocol.TypeAIResponse, Data: u.Text})
	case UnitToolRequest:
		return protocol.EncodeUnit(protocol.ToolRequest{
			Type:      protocol.TypeToolRequest,
			ID:        u.ToolCallID,
			Name:      u.ToolName,
			Arguments: u.Arguments,
		})
	case UnitToolResult:
		return protocol.EncodeUnit(protocol.ToolExecuted{
			Type:      protocol.TypeToolExecuted,
			ID:        u.ToolCallID,
			Name:      u.ToolName,
			Arguments: u.Arguments,
			Result:    u.Result,
		})
	default:
		return "", nil
	}
}
