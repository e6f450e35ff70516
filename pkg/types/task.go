// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data model for the paper-agent pipeline:
// batches, work items, resolved paper metadata, cache entries, and stage
// configuration.
package types

import "time"

// BatchStatus tracks a batch through the pipeline. The progression is
// strictly ordered: pending → formatting_input → searching_papers →
// analyzing_papers → completed|failed. A batch never moves backward.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchFormatting BatchStatus = "formatting_input"
	BatchSearching  BatchStatus = "searching_papers"
	BatchAnalyzing  BatchStatus = "analyzing_papers"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// batchStatusOrder maps each status to its position in the pipeline.
// Terminal states share the highest rank.
var batchStatusOrder = map[BatchStatus]int{
	BatchPending:    0,
	BatchFormatting: 1,
	BatchSearching:  2,
	BatchAnalyzing:  3,
	BatchCompleted:  4,
	BatchFailed:     4,
}

// Terminal reports whether the status is completed or failed.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// Rank returns the pipeline position of the status. Unknown statuses rank
// below pending.
func (s BatchStatus) Rank() int {
	if r, ok := batchStatusOrder[s]; ok {
		return r
	}
	return -1
}

// ItemStatus tracks a single work item. search_completed marks an item
// whose metadata has been resolved but whose summary has not been produced;
// completed requires both.
type ItemStatus string

const (
	ItemPending         ItemStatus = "pending"
	ItemSearching       ItemStatus = "searching"
	ItemSearchCompleted ItemStatus = "search_completed"
	ItemAnalyzing       ItemStatus = "analyzing"
	ItemCompleted       ItemStatus = "completed"
	ItemFailed          ItemStatus = "failed"
)

// Terminal reports whether the item needs no further pipeline work.
func (s ItemStatus) Terminal() bool {
	return s == ItemCompleted || s == ItemFailed
}

// LogLevel is the severity of a batch log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// LogEntry is one record in a batch's append-only audit trail. Entries are
// never rewritten after being appended.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Stage     string         `json:"stage"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// AnalysisRecord points at the persisted summary for a work item.
type AnalysisRecord struct {
	SummaryPath string `json:"summary_path"`
}

// ItemProgress holds the raw outputs of the search and analyze stages.
type ItemProgress struct {
	Search   *PaperDetails   `json:"search,omitempty"`
	Analysis *AnalysisRecord `json:"analysis,omitempty"`
}

// WorkItem is the per-paper unit of pipeline state. Title is the stable
// identity key after normalization. Invariants: completed items carry both
// a search and an analysis result; failed items carry an error message.
type WorkItem struct {
	Title      string       `json:"title"`
	SourceURL  string       `json:"url,omitempty"`
	Status     ItemStatus   `json:"status"`
	Progress   ItemProgress `json:"progress"`
	Error      string       `json:"error,omitempty"`
	RetryCount int          `json:"retry_count"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// NewWorkItem returns a pending item for the given reference.
func NewWorkItem(title, sourceURL string) WorkItem {
	now := time.Now().UTC()
	return WorkItem{
		Title:     title,
		SourceURL: sourceURL,
		Status:    ItemPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus updates the item status and bumps UpdatedAt.
func (w *WorkItem) SetStatus(status ItemStatus) {
	w.Status = status
	w.UpdatedAt = time.Now().UTC()
}

// Fail marks the item failed with the given reason.
func (w *WorkItem) Fail(reason string) {
	w.Error = reason
	w.SetStatus(ItemFailed)
}

// Batch is one user-submitted collection of paper references processed
// together. Items is empty until the format stage populates it.
type Batch struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	InputText   string      `json:"input_text"`
	Status      BatchStatus `json:"status"`
	Items       []WorkItem  `json:"papers"`
	Log         []LogEntry  `json:"logs"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// SetStatus advances the batch status and bumps UpdatedAt. Terminal
// statuses also stamp CompletedAt. Transitions to an earlier pipeline
// position are ignored so the documented ordering cannot be violated by
// a misbehaving caller.
func (b *Batch) SetStatus(status BatchStatus) {
	if status.Rank() < b.Status.Rank() {
		return
	}
	b.Status = status
	b.UpdatedAt = time.Now().UTC()
	if status.Terminal() {
		t := b.UpdatedAt
		b.CompletedAt = &t
	}
}

// AppendLog adds an entry to the batch's audit trail.
func (b *Batch) AppendLog(stage string, level LogLevel, message string, data map[string]any) {
	b.Log = append(b.Log, LogEntry{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Level:     level,
		Message:   message,
		Data:      data,
	})
	b.UpdatedAt = time.Now().UTC()
}

// ProgressSummary aggregates per-item status counts for display.
type ProgressSummary struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
	Percentage int `json:"percentage"`
}

// Progress returns the current item status counts. Percentage counts both
// completed and failed items as settled work.
func (b *Batch) Progress() ProgressSummary {
	s := ProgressSummary{Total: len(b.Items)}
	if s.Total == 0 {
		return s
	}
	for _, item := range b.Items {
		switch item.Status {
		case ItemCompleted:
			s.Completed++
		case ItemFailed:
			s.Failed++
		}
	}
	s.Pending = s.Total - s.Completed - s.Failed
	s.Percentage = int(float64(s.Completed+s.Failed)/float64(s.Total)*100 + 0.5)
	return s
}

// Clone returns a deep copy of the batch so callers can hand out snapshots
// without exposing the store's owned value.
func (b *Batch) Clone() *Batch {
	c := *b
	c.Items = make([]WorkItem, len(b.Items))
	for i, item := range b.Items {
		c.Items[i] = item
		if item.Progress.Search != nil {
			d := *item.Progress.Search
			d.Authors = append([]string(nil), d.Authors...)
			c.Items[i].Progress.Search = &d
		}
		if item.Progress.Analysis != nil {
			a := *item.Progress.Analysis
			c.Items[i].Progress.Analysis = &a
		}
	}
	c.Log = append([]LogEntry(nil), b.Log...)
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
