// Package model defines the entity payloads synchronized by offsync. Each
// payload implements the sync engine's Payload contract: the wire shape sent
// to the remote store and a merge that keeps local-only fields.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	syncp "github.com/njoerd114/offsync/internal/sync"
)

// Collection names, as used in configuration and in remote URLs.
const (
	CollectionMessages        = "messages"
	CollectionTasks           = "tasks"
	CollectionDocuments       = "documents"
	CollectionFolders         = "folders"
	CollectionTeamMemberships = "team_memberships"
	CollectionInvitations     = "invitations"
	CollectionReactions       = "reactions"
	CollectionReadReceipts    = "read_receipts"
)

// Collections returns every known collection name in a stable order.
func Collections() []string {
	return []string{
		CollectionMessages,
		CollectionTasks,
		CollectionDocuments,
		CollectionFolders,
		CollectionTeamMemberships,
		CollectionInvitations,
		CollectionReactions,
		CollectionReadReceipts,
	}
}

// IsCollection reports whether name is a known collection.
func IsCollection(name string) bool {
	for _, c := range Collections() {
		if c == name {
			return true
		}
	}
	return false
}

// hashFields returns a SHA-256 hex digest of the given field values joined
// with a separator. Times are formatted in UTC; nil pointers hash as empty.
func hashFields(fields ...any) string {
	h := sha256.New()
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte("|"))
		}
		switch v := f.(type) {
		case *time.Time:
			if v != nil {
				h.Write([]byte(v.UTC().Format(time.RFC3339Nano)))
			}
		case time.Time:
			if !v.IsZero() {
				h.Write([]byte(v.UTC().Format(time.RFC3339Nano)))
			}
		default:
			_, _ = fmt.Fprintf(h, "%v", v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &syncp.ValidationError{Field: field, Message: "must not be empty"}
	}
	return nil
}

func maxLen(field, value string, n int) error {
	if len([]rune(value)) > n {
		return &syncp.ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", n)}
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

var (
	_ syncp.Payload[Message]        = Message{}
	_ syncp.Payload[Task]           = Task{}
	_ syncp.Payload[Document]       = Document{}
	_ syncp.Payload[Folder]         = Folder{}
	_ syncp.Payload[TeamMembership] = TeamMembership{}
	_ syncp.Payload[Invitation]     = Invitation{}
	_ syncp.Payload[Reaction]       = Reaction{}
	_ syncp.Payload[ReadReceipt]    = ReadReceipt{}
)
