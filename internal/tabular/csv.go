// Package tabular parses the loosely structured CSV reports that analysis
// agents emit: optional "File:" header lines followed by comma separated
// rows, where fields may be double quoted.
package tabular

import "strings"

// Section is one file's worth of rows from a multi-file report.
type Section struct {
	// FileInfo is the "File: ..." header line, trimmed. Empty when the
	// report never named a file.
	FileInfo string
	Rows     [][]string
}

// ParseLine splits a single CSV line into cells. Quoted fields may contain
// commas, and a doubled quote inside a quoted field stands for a literal
// quote. Cells are trimmed of surrounding whitespace.
func ParseLine(line string) []string {
	var cells []string
	var cur strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '"':
			if i+1 < len(line) && line[i+1] == '"' {
				cur.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	cells = append(cells, strings.TrimSpace(cur.String()))
	return cells
}

// IsTabular reports whether content looks like it carries CSV rows: at least
// one comma and more than one non-empty line.
func IsTabular(content string) bool {
	return strings.Contains(content, ",") &&
		strings.Contains(content, "\n") &&
		len(strings.Split(content, "\n")) > 1
}

// Sections splits a report into per-file sections. A line containing "File:"
// starts a new section; every other non-blank line is parsed as a CSV row and
// attached to the current one. Rows seen before any header land in a section
// with an empty FileInfo.
func Sections(report string) []Section {
	var sections []Section
	var cur Section

	flush := func() {
		if len(cur.Rows) > 0 {
			sections = append(sections, cur)
		}
	}

	for _, line := range strings.Split(report, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Contains(line, "File:") {
			flush()
			cur = Section{FileInfo: strings.TrimSpace(line)}
			continue
		}
		cur.Rows = append(cur.Rows, ParseLine(line))
	}
	flush()
	return sections
}

// FileNames extracts the file names from a report's "File:" header lines.
func FileNames(report string) []string {
	var names []string
	for _, line := range strings.Split(report, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "File:") {
			names = append(names, strings.TrimSpace(trimmed[len("File:"):]))
		}
	}
	return names
}

// CleanCell strips one layer of surrounding double quotes from a cell, after
// trimming whitespace.
func CleanCell(cell string) string {
	trimmed := strings.TrimSpace(cell)
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		return trimmed[1 : len(trimmed)-1]
	}
	return trimmed
}
