package chathistory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/codeforge/internal/policy"
)

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

func (r Role) valid() bool {
	return r == RoleUser || r == RoleAI
}

// Status records how an exchange ended.
type Status int

const (
	StatusNormal          Status = 0
	StatusUserInterrupted Status = 1
	StatusAIInterrupted   Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusUserInterrupted:
		return "user_interrupted"
	case StatusAIInterrupted:
		return "ai_interrupted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) valid() bool {
	return s >= StatusNormal && s <= StatusAIInterrupted
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

var (
	ErrInvalidMessage  = errors.New("invalid chat message")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 50")
	ErrNotFound        = errors.New("chat message not found")
)

// Message is one persisted entry of an application's conversation.
type Message struct {
	ID          string    `json:"id"`
	AppID       int64     `json:"app_id"`
	UserID      int64     `json:"user_id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Status      Status    `json:"status"`
	OnlyID      string    `json:"only_id"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists and pages conversation history.
type Store interface {
	AppendMessage(ctx context.Context, appID int64, content string, role Role, userID int64, status Status) error
	// MarkStatus updates the newest message of appID authored in userID's conversation.
	MarkStatus(ctx context.Context, appID, userID int64, status Status) error
	// ListByApp pages newest first. A zero before starts from the latest message.
	ListByApp(ctx context.Context, appID int64, limit int, before time.Time) ([]Message, error)
	Close() error
}

// PageSize maps an optional client limit onto the accepted range.
func PageSize(limit int) (int, error) {
	if limit == 0 {
		return DefaultPageSize, nil
	}
	if limit < 1 || limit > MaxPageSize {
		return 0, ErrInvalidPageSize
	}
	return limit, nil
}

func newMessage(appID int64, content string, role Role, userID int64, status Status, now time.Time) (Message, error) {
	if appID <= 0 || userID <= 0 {
		return Message{}, fmt.Errorf("%w: app and user ids must be positive", ErrInvalidMessage)
	}
	if strings.TrimSpace(content) == "" {
		return Message{}, fmt.Errorf("%w: content is empty", ErrInvalidMessage)
	}
	if !role.valid() {
		return Message{}, fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, role)
	}
	if !status.valid() {
		return Message{}, fmt.Errorf("%w: unknown status %d", ErrInvalidMessage, int(status))
	}

	msg := Message{
		ID:        uuid.NewString(),
		AppID:     appID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Generated code is stored verbatim; only what people typed is scrubbed.
	if role == RoleUser {
		msg.Content, msg.PIIRedacted = policy.RedactPII(content)
	}
	msg.OnlyID = onlyID(appID, msg.Content, role, userID, status)
	return msg, nil
}

// onlyID is the content fingerprint used to spot duplicate writes.
func onlyID(appID int64, content string, role Role, userID int64, status Status) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d%s%s%d%d", appID, content, role, userID, int(status))))
	return hex.EncodeToString(sum[:])
}
