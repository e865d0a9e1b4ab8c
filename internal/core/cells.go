package core

import "strings"

// CleanCell removes common export artifacts from a cell value:
// - Trims whitespace (including non-breaking spaces)
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}

// CollapseSpace trims s and folds internal whitespace runs to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IsEmptyRow reports whether every cell is blank.
func IsEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
