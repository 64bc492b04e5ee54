package model

import (
	"time"

	"gorm.io/gorm"
)

type MirrorStatus string

const (
	StatusSuccess MirrorStatus = "SUCCESS"
	StatusFailed  MirrorStatus = "FAILED"
	StatusSkipped MirrorStatus = "SKIPPED"
)

type History struct {
	gorm.Model
	Status     MirrorStatus `gorm:"not null;index"`
	Op         string       `gorm:"not null"`
	EventKind  string       `gorm:"not null"`
	WatchRoot  string       `gorm:"not null"`
	SrcPath    string       `gorm:"not null"`
	DstPath    string
	ErrMsg     string
	MirroredAt time.Time `gorm:"not null;index"`
}
