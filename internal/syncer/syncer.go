package syncer

import (
	"mimic/internal/model"
)

// EventSource feeds raw change notifications for one watched root into a queue
// and reports notification-layer failures out of band.
type EventSource interface {
	Start() error
	Stop()
	Errors() <-chan model.SourceError
}

// Mirror applies mutations to a destination tree.
type Mirror interface {
	CopyRecursiveOverwrite(src, dst string) error
	DeletePath(path string) error
	RenamePath(oldPath, newPath string) error
}
