package report

import "time"

// Status describes what happened to one catalog entry during a run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Table is the outcome of a single catalog entry. Columns keep the order the
// executor returned them in.
type Table struct {
	Category string        `json:"category"`
	Label    string        `json:"label"`
	SQL      string        `json:"sql,omitempty"`
	Columns  []string      `json:"columns"`
	Rows     [][]any       `json:"rows"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Section groups the tables of one catalog category.
type Section struct {
	Category string  `json:"category"`
	Tables   []Table `json:"tables"`
}

// Count returns how many tables in the section have the given status.
func (s Section) Count(status Status) int {
	n := 0
	for _, t := range s.Tables {
		if t.Status == status {
			n++
		}
	}
	return n
}

// Result is a complete health check run.
type Result struct {
	Sections   []Section `json:"sections"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Count returns how many tables across all sections have the given status.
func (r Result) Count(status Status) int {
	n := 0
	for _, s := range r.Sections {
		n += s.Count(status)
	}
	return n
}

// Executed returns the number of entries whose query ran successfully.
func (r Result) Executed() int { return r.Count(StatusOK) }

// Skipped returns the number of placeholder entries without a query.
func (r Result) Skipped() int { return r.Count(StatusSkipped) }

// Failed returns the number of entries whose query was rejected or errored.
func (r Result) Failed() int { return r.Count(StatusFailed) }
