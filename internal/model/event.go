package model

import "time"

type EventKind string

const (
	EventCreated EventKind = "CREATED"
	EventChanged EventKind = "CHANGED"
	EventDeleted EventKind = "DELETED"
	EventRenamed EventKind = "RENAMED"
)

// FileEvent is a single raw change notification for one watched root.
// OldPath is only set for EventRenamed.
type FileEvent struct {
	Kind      EventKind
	Path      string
	OldPath   string
	Timestamp time.Time
}

type MirrorOp string

const (
	OpCopy   MirrorOp = "COPY"
	OpDelete MirrorOp = "DELETE"
	OpRename MirrorOp = "RENAME"
	OpSkip   MirrorOp = "SKIP"
)

type MirrorResult struct {
	Event      FileEvent
	Op         MirrorOp
	SrcPath    string
	DstPath    string
	OldDstPath string
	Reason     string
	Err        error
}

type SourceErrorKind string

const (
	SourceOverflow     SourceErrorKind = "OVERFLOW"
	SourceInaccessible SourceErrorKind = "ROOT_INACCESSIBLE"
)

// SourceError reports a notification-layer failure. It never stops the source.
type SourceError struct {
	Kind SourceErrorKind
	Root string
	Err  error
	At   time.Time
}

func (e SourceError) Error() string {
	if e.Err == nil {
		return string(e.Kind) + ": " + e.Root
	}
	return string(e.Kind) + ": " + e.Root + ": " + e.Err.Error()
}

func (e SourceError) Unwrap() error {
	return e.Err
}
