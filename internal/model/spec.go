package model

// WatchSpec pairs one watched root with its destination root. It is built once
// from configuration and never mutated.
type WatchSpec struct {
	WatchRoot  string   `json:"watch_root"`
	DestRoot   string   `json:"dest_root"`
	Exclusions []string `json:"exclusions"`
}
