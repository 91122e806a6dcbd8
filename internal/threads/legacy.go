package threads

import (
	"strings"
	"time"
)

// LegacyFallback controls the compatibility shim for threads whose messages were stored
// under the raw contact address before opaque thread ids existed.
//
// Deprecated: the shim is switched off once Until passes (LEGACY_THREAD_FALLBACK_UNTIL).
// Migrate remaining rows by rewriting messages.thread_id from the contact address to the
// thread id, then remove this file.
type LegacyFallback struct {
	Until time.Time // zero keeps the fallback on
}

// Enabled reports whether the fallback still applies at now
func (l LegacyFallback) Enabled(now time.Time) bool {
	return l.Until.IsZero() || now.Before(l.Until)
}

// LegacyThreadID returns the pre-migration thread id for a contact: the address itself,
// for identifiers shaped like an email address or an E.164 phone number.
func LegacyThreadID(contact string) (string, bool) {
	if strings.Contains(contact, "@") || strings.HasPrefix(contact, "+") {
		return contact, true
	}
	return "", false
}
