package ledger

import "context"

// MustEntries is a test helper that fetches the recorded entries for a
// transaction, ignoring lookup errors from the in-memory recorder.
func MustEntries(r Recorder, transactionID string) []Entry {
	entries, _ := r.Entries(context.Background(), transactionID)
	return entries
}
