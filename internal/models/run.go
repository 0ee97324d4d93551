package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RunStatus статус прогона проверки
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
	StatusCanceled   RunStatus = "canceled"
)

var transitions = map[RunStatus][]RunStatus{
	StatusPending:    {StatusProcessing, StatusFailed, StatusCanceled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCanceled},
}

// Valid returns true for the known statuses
func (s RunStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// IsFinal returns true when no further transition is possible
func (s RunStatus) IsFinal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransitionTo проверяет допустимость перехода
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourcesOf returns every status that may move to next
func SourcesOf(next RunStatus) []RunStatus {
	var out []RunStatus
	for _, from := range []RunStatus{StatusPending, StatusProcessing} {
		if from.CanTransitionTo(next) {
			out = append(out, from)
		}
	}
	return out
}

// Run represents one execution of the health check catalog
type Run struct {
	ID         uint           `json:"id" gorm:"primarykey"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
	Title      string         `json:"title" gorm:"size:255;not null"`
	Status     RunStatus      `json:"status" gorm:"size:50;not null;default:'pending';index"`
	Categories Categories     `json:"categories" gorm:"type:text"`
	FileKey    string         `json:"file_key,omitempty" gorm:"size:255"`
	Executed   int            `json:"executed"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	Error      string         `json:"error,omitempty" gorm:"size:2000"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	CreatedBy  string         `json:"created_by" gorm:"size:255;not null"`
}

// TableName specifies the table name for the Run model
func (Run) TableName() string {
	return "runs"
}

// HasFile returns true if the workbook has been stored
func (r *Run) HasFile() bool {
	return r.FileKey != ""
}

// IsCompleted returns true if the run finished and its workbook is ready
func (r *Run) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// Categories is the list of catalog categories a run covers, stored as a JSON
// array. An empty list means the whole catalog.
type Categories []string

// Value implements the driver.Valuer interface for Categories
func (c Categories) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(c))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface for Categories
func (c *Categories) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Categories", value)
	}
	return json.Unmarshal(data, (*[]string)(c))
}
