package model

// SyncCursor records, per session, the last vector clock known to be in
// common with the peer. Partial sync progress is persisted here so a crash
// mid-sync resumes rather than restarts [spec.md §5: "partial progress is
// persisted in SyncCursor"].
type SyncCursor struct {
	SessionID  string
	VC         VectorClock
	LastSyncAt int64
}
