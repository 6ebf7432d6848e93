package control

import (
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// NoticeKind distinguishes the two informational arbitration notices.
type NoticeKind string

const (
	NoticeTaken    NoticeKind = "taken"
	NoticeReleased NoticeKind = "released"
)

// Notice is the only arbitration outcome surfaced to the user.
type Notice struct {
	Kind        NoticeKind `json:"kind"`
	UserID      string     `json:"userId,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
}

// Message renders the notice text.
func (n Notice) Message() string {
	if n.Kind == NoticeReleased {
		return "control released"
	}
	return fmt.Sprintf("%s has taken control", n.DisplayName)
}

// NoticeFor builds the notice for a state transition; names resolves user ids
// to display names (typically the roster).
func NoticeFor(next model.ControlState, names func(userID string) string) Notice {
	if next.SharingUserID == "" {
		return Notice{Kind: NoticeReleased}
	}
	name := next.SharingUserID
	if names != nil {
		name = names(next.SharingUserID)
	}
	return Notice{Kind: NoticeTaken, UserID: next.SharingUserID, DisplayName: name}
}

// Notifier receives arbitration notices.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to a slog logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("control: "+n.Message(), "kind", n.Kind, "user_id", n.UserID)
}
