package lpr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RejectionReason says why a line produced no candidate.
type RejectionReason int

const (
	// EmptyLine is a blank or whitespace-only line.
	EmptyLine RejectionReason = iota + 1
	// MalformedFieldCount is a line that does not split into FieldCount fields.
	MalformedFieldCount
)

func (r RejectionReason) String() string {
	switch r {
	case EmptyLine:
		return "empty line"
	case MalformedFieldCount:
		return "malformed field count"
	default:
		return "unknown"
	}
}

// Sentinels matched by Rejection.Is.
var (
	ErrEmptyLine           = errors.New("lpr: empty line")
	ErrMalformedFieldCount = errors.New("lpr: malformed field count")
)

// Rejection is returned by ParseLine for structurally invalid lines.
type Rejection struct {
	Reason RejectionReason
	Fields int // number of fields found, for MalformedFieldCount
}

func (r *Rejection) Error() string {
	if r.Reason == MalformedFieldCount {
		return fmt.Sprintf("lpr: expected %d fields, got %d", FieldCount, r.Fields)
	}
	return "lpr: " + r.Reason.String()
}

// Is reports whether target is the sentinel for r's reason.
func (r *Rejection) Is(target error) bool {
	switch r.Reason {
	case EmptyLine:
		return target == ErrEmptyLine
	case MalformedFieldCount:
		return target == ErrMalformedFieldCount
	}
	return false
}

// ReasonOf returns the rejection reason carried by err, or 0.
func ReasonOf(err error) RejectionReason {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return 0
}

func isSeparator(r rune) bool {
	return r == '\\' || r == '/'
}

// ParseLine turns one raw line into a Candidate for the file at relPath.
//
// Blank lines and lines that do not split into exactly seven fields are
// rejected. Non-numeric date or time fields do not reject the line: they
// are set to 0 and listed in ConversionFailures so that Validate fails them.
func ParseLine(line, relPath string) (*Candidate, error) {
	if strings.TrimSpace(line) == "" {
		return nil, &Rejection{Reason: EmptyLine}
	}

	// strings.FieldsFunc would merge adjacent separators; empty fields count.
	fields := splitAny(line)
	if len(fields) != FieldCount {
		return nil, &Rejection{Reason: MalformedFieldCount, Fields: len(fields)}
	}

	c := &Candidate{
		CountryOfVehicle: fields[0],
		RegNumber:        strings.TrimLeft(fields[1], "r"),
		ConfidenceLevel:  strings.TrimLeft(fields[2], "r"),
		CameraName:       strings.TrimLeft(fields[3], "r"),
		ImageFilename:    fields[6],
		Path:             relPath,
	}

	var ok bool
	if c.Date, ok = parseInt(fields[4]); !ok {
		c.ConversionFailures = append(c.ConversionFailures, FieldDate)
	}
	if c.Time, ok = parseInt(fields[5]); !ok {
		c.ConversionFailures = append(c.ConversionFailures, FieldTime)
	}

	return c, nil
}

// splitAny splits s on every separator, keeping empty fields.
func splitAny(s string) []string {
	fields := make([]string, 0, FieldCount)
	start := 0
	for i, r := range s {
		if isSeparator(r) {
			fields = append(fields, s[start:i])
			start = i + 1
		}
	}
	return append(fields, s[start:])
}

// parseInt parses a signed 32-bit decimal integer, allowing surrounding
// whitespace. Failures yield 0.
func parseInt(s string) (int, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}
