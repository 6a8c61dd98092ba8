package generation

import (
	"context"

	"github.com/antoniostano/codeforge/internal/chathistory"
)

// Request is what a provider needs to produce one reply.
type Request struct {
	GenerationID string
	AppID        int64
	UserID       int64
	Kind         Kind
	Prompt       string
}

// Provider streams model output. emit is called once per unit in order;
// when emit returns an error the provider must stop and return it.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request, emit func(Unit) error) error
}

// HistoryRecorder is the persistence side of a generation.
type HistoryRecorder interface {
	AppendMessage(ctx context.Context, appID int64, content string, role chathistory.Role, userID int64, status chathistory.Status) error
	MarkStatus(ctx context.Context, appID, userID int64, status chathistory.Status) error
}

// ArtifactBuilder turns a finished transcript into files. It returns the
// output location, if any.
type ArtifactBuilder interface {
	Build(ctx context.Context, appID int64, kind Kind, content string) (string, error)
}
