package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	SessionCount int       `json:"session_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string         `json:"type"`
	Data *model.Session `json:"data"`
}

// ExportJSONL writes every session row in the store as JSONL to w, sorted
// by session id and then owner.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	sessions, err := s.ListSessions(ctx, model.SessionFilter{})
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].ID != sessions[j].ID {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].OwnerUserID < sessions[j].OwnerUserID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		SessionCount: len(sessions),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, sess := range sessions {
		if err := enc.Encode(record{Type: "session", Data: sess}); err != nil {
			return fmt.Errorf("encode session %s: %w", sess.ID, err)
		}
	}
	return nil
}
