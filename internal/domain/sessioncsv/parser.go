// Package sessioncsv reads and writes the two-column session title sheet
// used for bulk schedule imports.
package sessioncsv

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"academy/internal/domain/session"
)

// Error messages reported in Result.Errors.
const (
	MsgNoValidData    = "No valid data found"
	MsgEmptyPayload   = "CSV file is empty"
	MsgMissingColumns = "CSV must have a session number column (S.No, SNo, session_number or Session Number) and a Title column"
)

// Header names written by RenderTemplate.
const (
	HeaderSessionNumber = "S.No"
	HeaderTitle         = "Title"
)

// sessionNumberAliases are the accepted (lower-cased) session number headers.
var sessionNumberAliases = map[string]bool{
	"s.no":           true,
	"sno":            true,
	"session_number": true,
	"session number": true,
}

// Row is one valid line of an import sheet.
type Row struct {
	Line          int    `json:"line"`
	SessionNumber int    `json:"session_number"`
	Title         string `json:"title"`
}

// SkippedLine records a data line that was excluded from Rows.
type SkippedLine struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Result holds the parsed rows in input order.
// Errors is non-empty only for a parse-level failure, in which case Rows is empty.
type Result struct {
	Rows    []Row
	Errors  []string
	Skipped []SkippedLine
}

// OK reports whether the payload produced at least one row and no parse-level error.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Parse reads a comma-delimited sheet whose first line is a header naming a
// session number column and a Title column (case-insensitive).
// Data lines whose session number is not a positive integer or whose title is
// blank are skipped; duplicates are kept in order.
// PRE: raw is UTF-8 text
// POST: Either Rows is non-empty and Errors is empty, or Rows is empty and
//
//	Errors holds exactly one message
func Parse(raw string) Result {
	cr := csv.NewReader(strings.NewReader(strings.TrimPrefix(raw, "\ufeff")))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := readHeader(cr)
	if errors.Is(err, io.EOF) {
		return Result{Errors: []string{MsgEmptyPayload}}
	}
	if err != nil {
		return Result{Errors: []string{MsgMissingColumns}}
	}

	numberCol, titleCol := -1, -1
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if numberCol < 0 && sessionNumberAliases[name] {
			numberCol = i
		}
		if titleCol < 0 && name == "title" {
			titleCol = i
		}
	}
	if numberCol < 0 || titleCol < 0 {
		return Result{Errors: []string{MsgMissingColumns}}
	}

	var result Result
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				result.Skipped = append(result.Skipped, SkippedLine{Line: pe.StartLine, Reason: "malformed line"})
				continue
			}
			break
		}
		if isBlank(record) {
			continue
		}
		line, _ := cr.FieldPos(0)

		rawNumber := field(record, numberCol)
		n, convErr := strconv.Atoi(rawNumber)
		if convErr != nil || n < 1 {
			result.Skipped = append(result.Skipped, SkippedLine{Line: line, Reason: "invalid session number " + strconv.Quote(rawNumber)})
			continue
		}
		title := field(record, titleCol)
		if title == "" {
			result.Skipped = append(result.Skipped, SkippedLine{Line: line, Reason: "title is empty"})
			continue
		}
		result.Rows = append(result.Rows, Row{Line: line, SessionNumber: n, Title: title})
	}

	if len(result.Rows) == 0 {
		result.Errors = []string{MsgNoValidData}
	}
	return result
}

// RenderTemplate writes a sheet in the import format with rows 1..sessionCount
// and placeholder titles. Parse(RenderTemplate(n)) yields n rows.
// PRE: none
// POST: Returns a header-only sheet when sessionCount <= 0
func RenderTemplate(sessionCount int) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	// Writes to a strings.Builder cannot fail.
	_ = w.Write([]string{HeaderSessionNumber, HeaderTitle})
	for i := 1; i <= sessionCount; i++ {
		_ = w.Write([]string{strconv.Itoa(i), session.DefaultTitle(i)})
	}
	w.Flush()
	return sb.String()
}

// readHeader returns the first non-blank record.
func readHeader(cr *csv.Reader) ([]string, error) {
	for {
		record, err := cr.Read()
		if err != nil {
			return nil, err
		}
		if !isBlank(record) {
			return record, nil
		}
	}
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
