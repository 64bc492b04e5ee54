package model

import "time"

type WorkerStatus string

const (
	WorkerRunning  WorkerStatus = "RUNNING"
	WorkerStopping WorkerStatus = "STOPPING"
	WorkerStopped  WorkerStatus = "STOPPED"
)

type WorkerSnapshot struct {
	WatchRoot    string       `json:"watch_root"`
	DestRoot     string       `json:"dest_root"`
	Status       WorkerStatus `json:"status"`
	StartedAt    time.Time    `json:"started_at"`
	Mirrored     int          `json:"mirrored"`
	Failed       int          `json:"failed"`
	Skipped      int          `json:"skipped"`
	Overflows    int          `json:"overflows"`
	Inaccessible int          `json:"inaccessible"`
	Pending      int          `json:"pending"`
	LastMirror   *time.Time   `json:"last_mirror"`
}
