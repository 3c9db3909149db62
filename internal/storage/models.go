package storage

import "time"

// AlertRecord is one persisted alert, kept for auditing and export.
type AlertRecord struct {
	ID        int64
	Level     string
	Category  string
	Summary   string
	Paged     bool
	CreatedAt time.Time
}
