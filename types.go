package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Logger is the structured logger used across the package. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Session holds attributes that are part of an authenticated session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetExternalID() string
	GetRole() string
}

// Reconciler binds a verified external identity to a local user.
type Reconciler interface {
	Execute(ctx context.Context, msg ReconcileUserMessage) (*User, error)
}

// GraphLoader loads the active domain graph for a user.
type GraphLoader interface {
	LoadUserGraph(ctx context.Context, userID uuid.UUID) (*UserGraph, error)
}

// DomainGraphs is the storage contract the aggregation service reads from.
type DomainGraphs interface {
	// ActiveDomains returns the active domains of a user with their active
	// chatbots (and active filtered questions) and active customers (and
	// active chat rooms). Messages are not loaded.
	ActiveDomains(ctx context.Context, userID uuid.UUID) ([]*Domain, error)
	// RecentMessages returns the newest messages of a chat room, newest first.
	RecentMessages(ctx context.Context, chatRoomID uuid.UUID, limit int) ([]*Message, error)
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] ACCOUNTS " + newline(msg+formatArgs(args)))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] ACCOUNTS " + newline(msg+formatArgs(args)))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] ACCOUNTS " + newline(msg+formatArgs(args)))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] ACCOUNTS " + newline(msg+formatArgs(args)))
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	return b.String()
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
