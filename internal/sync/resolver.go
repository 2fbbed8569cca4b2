package sync

// Decision is the outcome of a conflict resolution.
type Decision int

const (
	// KeepLocal leaves the local copy untouched.
	KeepLocal Decision = iota
	// TakeRemote overwrites the local payload and timestamp with the remote copy.
	TakeRemote
)

func (d Decision) String() string {
	if d == TakeRemote {
		return "take_remote"
	}
	return "keep_local"
}

// ConflictResolver decides whether a remote copy replaces a synced local copy.
// It is only consulted for records whose status is [StatusSynced]; pending
// local state always wins until it is pushed.
type ConflictResolver[T any] interface {
	Resolve(local *Record[T], remote RemoteRecord[T]) Decision
}

// LastWriteWins keeps whichever copy has the later LastModified. The remote
// copy wins only when it is strictly newer, so equal timestamps never cause
// a redundant write.
type LastWriteWins[T any] struct{}

// Resolve implements [ConflictResolver].
func (LastWriteWins[T]) Resolve(local *Record[T], remote RemoteRecord[T]) Decision {
	if remote.LastModified.After(local.LastModified) {
		return TakeRemote
	}
	return KeepLocal
}
