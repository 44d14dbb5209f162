package upload

import "sync"

type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// PartRecord is the transfer state of a single part.
type PartRecord struct {
	Number  int64
	Status  Status
	Percent int
	// Tag is the confirmation tag returned by storage, set only when completed.
	Tag string
}

// Progress is the aggregate view of an upload.
type Progress struct {
	Percent   float64
	Completed int
	Total     int
	Parts     []PartRecord
}

// Aggregate computes the overall progress of a set of part records.
// The percentage only counts completed parts.
func Aggregate(records []PartRecord) Progress {
	p := Progress{Total: len(records), Parts: records}
	for _, r := range records {
		if r.Status == StatusCompleted {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Percent = float64(p.Completed) * 100 / float64(p.Total)
	}
	return p
}

// Tracker records part state reported by concurrent transfers.
type Tracker struct {
	mu      sync.RWMutex
	records []PartRecord
}

func NewTracker(total int) *Tracker {
	records := make([]PartRecord, total)
	for i := range records {
		records[i] = PartRecord{Number: int64(i + 1), Status: StatusPending}
	}
	return &Tracker{records: records}
}

// Start marks a part as uploading.
func (t *Tracker) Start(partNumber int64) {
	t.update(partNumber, func(r *PartRecord) {
		if r.Status == StatusPending {
			r.Status = StatusUploading
			r.Percent = 0
		}
	})
}

// SetPercent records the transfer progress of an uploading part.
func (t *Tracker) SetPercent(partNumber int64, percent int) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	t.update(partNumber, func(r *PartRecord) {
		if r.Status == StatusUploading && percent > r.Percent {
			r.Percent = percent
		}
	})
}

// Complete marks a part as completed with its confirmation tag.
// A part without a tag can not be completed and is marked as failed.
func (t *Tracker) Complete(partNumber int64, tag string) {
	t.update(partNumber, func(r *PartRecord) {
		if tag == "" {
			r.Status = StatusError
			return
		}
		r.Status, r.Percent, r.Tag = StatusCompleted, 100, tag
	})
}

// Fail marks a part as failed.
func (t *Tracker) Fail(partNumber int64) {
	t.update(partNumber, func(r *PartRecord) {
		if r.Status != StatusCompleted {
			r.Status = StatusError
		}
	})
}

// Snapshot returns a copy of all part records ordered by part number.
func (t *Tracker) Snapshot() []PartRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	records := make([]PartRecord, len(t.records))
	copy(records, t.records)
	return records
}

func (t *Tracker) Progress() Progress {
	return Aggregate(t.Snapshot())
}

// Tags returns the confirmation tag of every part keyed by part number.
// It reports false unless all parts are completed.
func (t *Tracker) Tags() (map[int64]string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tags := make(map[int64]string, len(t.records))
	for _, r := range t.records {
		if r.Status != StatusCompleted {
			return nil, false
		}
		tags[r.Number] = r.Tag
	}
	return tags, true
}

func (t *Tracker) update(partNumber int64, fn func(r *PartRecord)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if partNumber < 1 || partNumber > int64(len(t.records)) {
		return
	}
	fn(&t.records[partNumber-1])
}
