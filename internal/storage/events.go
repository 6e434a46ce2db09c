package storage

import "github.com/warden-ai/warden/internal/store"

// EventWriter mirrors audit entries to a secondary analytics sink.
// Write() must NEVER block the caller. The primary copy of every entry
// lives in the transactional store; a dropped mirror write loses nothing
// forensic.
type EventWriter interface {
	Write(entry *store.AuditEntry)
	Close()
}

// PreviewLength is the max characters of result text mirrored per event.
const PreviewLength = 500

// TruncatePreview returns the first maxLen runes of a result preview.
// It never splits a multi-byte UTF-8 character.
func TruncatePreview(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
