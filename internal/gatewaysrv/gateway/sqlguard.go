package gateway

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The guard is deliberately a set of lexical checks over the statement
// text, not a SQL parser. Registered views are the only readable surface,
// so a pattern smuggled past the guard inside a string literal still hits
// the allowlist and the engine's own privilege checks.
var (
	selectShapeRe = regexp.MustCompile(`(?is)^\s*(select|with)\b`)
	forbiddenRe   = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|create|alter|truncate|merge|grant|revoke|call)\b`)
	crossJoinRe   = regexp.MustCompile(`(?i)\bcross\s+join\b`)
	limitTailRe   = regexp.MustCompile(`(?i)\blimit\s+(\d+)\s*$`)
	objectRefRe   = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z_][a-zA-Z0-9_$]*(?:\.[a-zA-Z_][a-zA-Z0-9_$]*)*)`)
)

// CheckShape verifies the statement is a single SELECT (or WITH) and free
// of forbidden keywords. The returned reason is empty when the statement
// passes.
func CheckShape(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return "empty statement"
	}
	if !selectShapeRe.MatchString(trimmed) {
		return "only SELECT statements are allowed"
	}
	body := strings.TrimSuffix(trimmed, ";")
	if strings.Contains(body, ";") {
		return "multiple statements are not allowed"
	}
	if m := forbiddenRe.FindString(body); m != "" {
		return fmt.Sprintf("forbidden operation %q", strings.ToUpper(m))
	}
	if crossJoinRe.MatchString(body) {
		return "CROSS JOIN is not allowed"
	}
	return ""
}

// NormalizeLimit bounds the statement's row count: an existing LIMIT is
// clamped down to cap when it exceeds it, and a statement without one gets
// LIMIT cap appended. The trailing semicolon, if any, is dropped.
func NormalizeLimit(sqlText string, cap int) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(sqlText), ";")
	trimmed = strings.TrimRight(trimmed, " \t\r\n")

	if m := limitTailRe.FindStringSubmatch(trimmed); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n <= cap {
			return trimmed
		}
		return limitTailRe.ReplaceAllString(trimmed, fmt.Sprintf("LIMIT %d", cap))
	}
	return fmt.Sprintf("%s LIMIT %d", trimmed, cap)
}

// ExtractObjects returns the distinct object names referenced in FROM and
// JOIN clauses, lowercased, in order of first appearance. Subqueries
// contribute their inner references; derived tables contribute nothing.
func ExtractObjects(sqlText string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range objectRefRe.FindAllStringSubmatch(sqlText, -1) {
		name := strings.ToLower(m[1])
		if isSQLKeyword(name) {
			continue
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// isSQLKeyword filters constructs that can follow FROM without naming an
// object.
func isSQLKeyword(s string) bool {
	switch s {
	case "select", "lateral", "unnest", "values":
		return true
	}
	return false
}
