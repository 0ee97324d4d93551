package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrForbidden is returned for statements that would modify the monitored system.
var ErrForbidden = errors.New("forbidden operation")

var forbidden = []string{"DROP", "DELETE", "UPDATE", "INSERT", "CREATE", "ALTER", "TRUNCATE", "MERGE", "EXEC"}

var forbiddenPattern = regexp.MustCompile(`\b(` + strings.Join(forbidden, "|") + `)\b`)

// Validate rejects SQL that contains write or DDL keywords. Keywords only
// count as whole words, so columns such as LastUpdate are allowed.
func Validate(sql string) error {
	if m := forbiddenPattern.FindString(strings.ToUpper(sql)); m != "" {
		return fmt.Errorf("%w: %s", ErrForbidden, m)
	}
	return nil
}
