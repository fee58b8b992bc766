package mysql

import (
	"fmt"
	"regexp"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// quoteIdent validates a table name taken from config and backquotes it.
func quoteIdent(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return "`" + name + "`", nil
}
