// Package compose merges policy filter fragments into user SQL statements.
//
// Combining is textual splicing, not semantic SQL merging: it does not
// parenthesize existing conditions and can produce invalid SQL for statements
// with subqueries or trailing ORDER BY/LIMIT clauses. Callers should prefer
// simple single-statement queries when requesting filtered execution.
package compose

import "strings"

// filterPrefixLen is the length of the "WHERE " keyword prefix the policy
// evaluation service puts in front of every filter fragment.
const filterPrefixLen = 6

// Combine splices a filter fragment of the form "WHERE <condition>" into an
// existing SQL statement. If the statement already contains a WHERE token
// (case-insensitive, anywhere), the condition is appended with AND; otherwise
// a WHERE clause is appended. An empty fragment returns the statement
// unchanged.
func Combine(existingSQL, filter string) string {
	if filter == "" {
		return existingSQL
	}

	stmt := strings.TrimRight(existingSQL, " \t\r\n")
	stmt = strings.TrimSuffix(stmt, ";")

	condition := filter
	if len(filter) >= filterPrefixLen {
		condition = filter[filterPrefixLen:]
	}

	if containsWhere(stmt) {
		return stmt + "\nAND " + condition
	}
	return stmt + "\nWHERE " + condition
}

// containsWhere reports whether sql contains a standalone WHERE token.
func containsWhere(sql string) bool {
	upper := strings.ToUpper(sql)
	for i := 0; ; {
		idx := strings.Index(upper[i:], "WHERE")
		if idx < 0 {
			return false
		}
		idx += i
		before := idx == 0 || isBoundary(upper[idx-1])
		after := idx+5 >= len(upper) || isBoundary(upper[idx+5])
		if before && after {
			return true
		}
		i = idx + 5
	}
}

func isBoundary(c byte) bool {
	return !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_'
}

// Split divides a SQL script into individual statements on semicolons that
// appear outside single/double-quoted literals and line comments. Blank
// statements are dropped.
func Split(script string) []string {
	var (
		stmts   []string
		current strings.Builder
		inSQ    bool
		inDQ    bool
		inLC    bool
	)

	for i := 0; i < len(script); i++ {
		c := script[i]

		switch {
		case inLC:
			if c == '\n' {
				inLC = false
			}
		case inSQ:
			if c == '\'' {
				inSQ = false
			}
		case inDQ:
			if c == '"' {
				inDQ = false
			}
		case c == '\'':
			inSQ = true
		case c == '"':
			inDQ = true
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			inLC = true
		case c == ';':
			if s := strings.TrimSpace(current.String()); s != "" {
				stmts = append(stmts, s)
			}
			current.Reset()
			continue
		}

		current.WriteByte(c)
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

// ReturnsRows reports whether a statement is expected to produce a result
// set, judged by its leading keyword. This is a classification heuristic,
// not a parse.
func ReturnsRows(stmt string) bool {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "VALUES", "WITH", "SHOW", "DESCRIBE", "EXPLAIN", "PRAGMA":
		return true
	}
	return false
}
