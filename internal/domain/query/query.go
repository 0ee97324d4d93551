package query

import "fmt"

// Query is a catalog entry located by its category and position.
type Query struct {
	Category string
	Index    int
	Label    string
	SQL      string
}

// Runnable reports whether there is a query body to execute.
func (q Query) Runnable() bool {
	return q.SQL != ""
}

// DisplayLabel returns the label to show in a report; unlabelled entries are
// named after their category and 1-based position.
func (q Query) DisplayLabel() string {
	if q.Label != "" {
		return q.Label
	}
	return fmt.Sprintf("%s #%d", q.Category, q.Index+1)
}
