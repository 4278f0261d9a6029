package job

import "time"

// Event is emitted when a segmentation job reaches a terminal state.
type Event struct {
	AssetID      string    `json:"asset_id"`
	Status       State     `json:"status"`
	SegmentCount int       `json:"segment_count"`
	SegmentURLs  []string  `json:"segment_urls,omitempty"`
	Error        string    `json:"error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}
