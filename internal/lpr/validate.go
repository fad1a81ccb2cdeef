package lpr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	datePattern = regexp.MustCompile(`^\d{8}$`)
	timePattern = regexp.MustCompile(`^\d{4}$`)
)

// FieldError describes one failing field of a Candidate.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate returns one FieldError per failing field, or nil when c can be
// persisted. Date and time are checked against their decimal rendering, so
// a time such as 0930 parsed to 930 fails.
func Validate(c *Candidate) []FieldError {
	if c == nil {
		return []FieldError{{Field: "record", Message: "missing"}}
	}

	var errs []FieldError
	required := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, FieldError{Field: field, Message: "is required"})
		}
	}

	required(FieldCountry, c.CountryOfVehicle)
	required(FieldRegNumber, c.RegNumber)
	required(FieldConfidence, c.ConfidenceLevel)
	required(FieldCameraName, c.CameraName)

	if !datePattern.MatchString(strconv.Itoa(c.Date)) {
		errs = append(errs, FieldError{Field: FieldDate, Message: "invalid date format, expected yyyyMMdd"})
	}
	if !timePattern.MatchString(strconv.Itoa(c.Time)) {
		errs = append(errs, FieldError{Field: FieldTime, Message: "invalid time format, expected HHmm"})
	}

	required(FieldImageFilename, c.ImageFilename)
	required(FieldPath, c.Path)

	return errs
}
