package lpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCandidate() *Candidate {
	return &Candidate{
		CountryOfVehicle: "GB",
		RegNumber:        "AB12CDE",
		ConfidenceLevel:  "HIGH",
		CameraName:       "CAM1",
		Date:             20240610,
		Time:             1530,
		ImageFilename:    "img001.jpg",
		Path:             "cam1/a.lpr",
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Candidate)
		fields []string
	}{
		{"valid", func(*Candidate) {}, nil},
		{"seven digit date", func(c *Candidate) { c.Date = 2024061 }, []string{FieldDate}},
		{"nine digit date", func(c *Candidate) { c.Date = 202406101 }, []string{FieldDate}},
		{"negative date", func(c *Candidate) { c.Date = -2024061 }, []string{FieldDate}},
		{"three digit time", func(c *Candidate) { c.Time = 930 }, []string{FieldTime}},
		{"zero time", func(c *Candidate) { c.Time = 0 }, []string{FieldTime}},
		{"blank camera", func(c *Candidate) { c.CameraName = " " }, []string{FieldCameraName}},
		{"missing path", func(c *Candidate) { c.Path = "" }, []string{FieldPath}},
		{"several", func(c *Candidate) {
			c.CountryOfVehicle = ""
			c.ConfidenceLevel = ""
			c.ImageFilename = ""
		}, []string{FieldCountry, FieldConfidence, FieldImageFilename}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validCandidate()
			tt.mutate(c)

			errs := Validate(c)
			var got []string
			for _, e := range errs {
				got = append(got, e.Field)
				assert.NotEmpty(t, e.Message)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestSevenDigitDateParsesButFailsValidation(t *testing.T) {
	t.Parallel()

	c, err := ParseLine(`GB\rAB12CDE\rHIGH\rCAM1\2024061\1530\img001.jpg`, "a.lpr")
	require.NoError(t, err)
	assert.Empty(t, c.ConversionFailures)

	errs := Validate(c)
	require.Len(t, errs, 1)
	assert.Equal(t, FieldDate, errs[0].Field)
	assert.Contains(t, errs[0].Error(), "yyyyMMdd")
}

func TestValidateNil(t *testing.T) {
	t.Parallel()
	assert.Len(t, Validate(nil), 1)
}
