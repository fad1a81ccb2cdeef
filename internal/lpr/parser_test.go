package lpr

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLine = `GB\rAB12CDE\rHIGH\rCAM1\20240610\1530\img001.jpg`

func TestParseLineSample(t *testing.T) {
	t.Parallel()

	c, err := ParseLine(sampleLine, "cam1/2024/0610.lpr")
	require.NoError(t, err)

	assert.Equal(t, "GB", c.CountryOfVehicle)
	assert.Equal(t, "AB12CDE", c.RegNumber)
	assert.Equal(t, "HIGH", c.ConfidenceLevel)
	assert.Equal(t, "CAM1", c.CameraName)
	assert.Equal(t, 20240610, c.Date)
	assert.Equal(t, 1530, c.Time)
	assert.Equal(t, "img001.jpg", c.ImageFilename)
	assert.Equal(t, "cam1/2024/0610.lpr", c.Path)
	assert.Empty(t, c.ConversionFailures)
	assert.True(t, c.CreatedAt.IsZero(), "parser never sets the ingestion time")
	assert.Empty(t, Validate(c))
}

func TestParseLineMixedSeparators(t *testing.T) {
	t.Parallel()

	c, err := ParseLine(`NL/rXX99YY\rLOW/rGATE2\20231231/2359\a.jpg`, "x.lpr")
	require.NoError(t, err)
	assert.Equal(t, "XX99YY", c.RegNumber)
	assert.Equal(t, "GATE2", c.CameraName)
	assert.Equal(t, 2359, c.Time)
}

func TestLeadingZeroTimeFailsValidation(t *testing.T) {
	t.Parallel()

	c, err := ParseLine(`GB\rAB12CDE\rHIGH\rCAM1\20240610\0930\img001.jpg`, "a.lpr")
	require.NoError(t, err)
	assert.Equal(t, 930, c.Time)
	assert.Empty(t, c.ConversionFailures)

	errs := Validate(c)
	require.Len(t, errs, 1)
	assert.Equal(t, FieldTime, errs[0].Field)
}

func TestParseLineRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		line   string
		reason RejectionReason
		target error
		fields int
	}{
		{"empty", "", EmptyLine, ErrEmptyLine, 0},
		{"spaces", "   ", EmptyLine, ErrEmptyLine, 0},
		{"tabs", "\t \t", EmptyLine, ErrEmptyLine, 0},
		{"no separators", "GB AB12CDE", MalformedFieldCount, ErrMalformedFieldCount, 1},
		{"six fields", `GB\rA\rH\rC\20240610\1530`, MalformedFieldCount, ErrMalformedFieldCount, 6},
		{"eight fields", sampleLine + `\extra`, MalformedFieldCount, ErrMalformedFieldCount, 8},
		{"trailing separator", sampleLine + `/`, MalformedFieldCount, ErrMalformedFieldCount, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := ParseLine(tt.line, "f.lpr")
			require.Error(t, err)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.reason, ReasonOf(err))

			var rej *Rejection
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.fields, rej.Fields)
		})
	}
}

func TestParseLineEmptyFieldsCount(t *testing.T) {
	t.Parallel()

	c, err := ParseLine(`GB\\rH\rC\20240610\1530\i.jpg`, "f.lpr")
	require.NoError(t, err, "adjacent separators produce an empty field, not a merged one")
	assert.Empty(t, c.RegNumber)

	errs := Validate(c)
	require.Len(t, errs, 1)
	assert.Equal(t, FieldRegNumber, errs[0].Field)
}

func TestParseLineStripsLeadingR(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 4; n++ {
		prefix := strings.Repeat("r", n)
		line := "GB\\" + prefix + "AB1\\" + prefix + "HIGH\\" + prefix + "CAM\\20240101\\1200\\rimg.jpg"

		c, err := ParseLine(line, "f.lpr")
		require.NoError(t, err)
		assert.Equal(t, "AB1", c.RegNumber, "n=%d", n)
		assert.Equal(t, "HIGH", c.ConfidenceLevel, "n=%d", n)
		assert.Equal(t, "CAM", c.CameraName, "n=%d", n)
		assert.Equal(t, "rimg.jpg", c.ImageFilename, "image filename keeps its prefix")
	}

	c, err := ParseLine(`rGB\rrr\rH\rC\20240101\1200\i.jpg`, "f.lpr")
	require.NoError(t, err)
	assert.Equal(t, "rGB", c.CountryOfVehicle, "country keeps its prefix")
	assert.Empty(t, c.RegNumber, "a value of only r characters strips to empty")
}

func TestParseLineConversionFailures(t *testing.T) {
	t.Parallel()

	c, err := ParseLine(`GB\rA\rH\rC\2024-06-10\15h30\i.jpg`, "f.lpr")
	require.NoError(t, err, "numeric failures do not abort parsing")
	assert.Zero(t, c.Date)
	assert.Zero(t, c.Time)
	assert.Equal(t, []string{FieldDate, FieldTime}, c.ConversionFailures)

	errs := Validate(c)
	require.Len(t, errs, 2)
	assert.Equal(t, FieldDate, errs[0].Field)
	assert.Equal(t, FieldTime, errs[1].Field)
}

func TestParseLineOverflowIsConversionFailure(t *testing.T) {
	t.Parallel()

	c, err := ParseLine(`GB\rA\rH\rC\99999999999\1530\i.jpg`, "f.lpr")
	require.NoError(t, err)
	assert.Equal(t, []string{FieldDate}, c.ConversionFailures)
}

func TestStampUsesUTC(t *testing.T) {
	t.Parallel()

	c, err := ParseLine(sampleLine, "f.lpr")
	require.NoError(t, err)

	loc := time.FixedZone("CEST", 2*60*60)
	c.Stamp(time.Date(2024, 6, 10, 17, 30, 0, 0, loc))
	assert.Equal(t, time.UTC, c.CreatedAt.Location())
	assert.Equal(t, 15, c.CreatedAt.Hour())
}
