// Package lpr parses and validates lines of ANPR camera .lpr log files.
//
// A line holds seven fields separated by '\' or '/':
//
//	country\rREG\rCONFIDENCE\rCAMERA\yyyyMMdd\HHmm\image
//
// The parser is pure; callers decide how to log rejections.
package lpr

import "time"

// FieldCount is the number of positional fields in a well-formed line.
const FieldCount = 7

// Field names used in conversion failures and validation errors.
const (
	FieldCountry       = "country_of_vehicle"
	FieldRegNumber     = "reg_number"
	FieldConfidence    = "confidence_level"
	FieldCameraName    = "camera_name"
	FieldDate          = "date"
	FieldTime          = "time"
	FieldImageFilename = "image_filename"
	FieldPath          = "path"
)

// Candidate is a record parsed from one line, not yet validated.
type Candidate struct {
	CountryOfVehicle string
	RegNumber        string
	ConfidenceLevel  string
	CameraName       string
	Date             int // yyyyMMdd, 0 when the field was not numeric
	Time             int // HHmm, 0 when the field was not numeric
	ImageFilename    string
	Path             string // file path relative to the watched root, slash separated
	CreatedAt        time.Time

	// ConversionFailures names the numeric fields that could not be parsed.
	ConversionFailures []string
}

// Stamp sets CreatedAt to now in UTC.
func (c *Candidate) Stamp(now time.Time) {
	c.CreatedAt = now.UTC()
}
