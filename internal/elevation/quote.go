package elevation

import "strings"

// powershellQuote renders s as a single-quoted PowerShell string literal.
func powershellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
