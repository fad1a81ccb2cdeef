package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.reported = append(r.reported, ee)
	ee.MarkReported()
}

func (r *recordingReporter) IsEnabled() bool { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	ClearErrorHooks()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderKeepsExplicitMetadata(t *testing.T) {
	ClearErrorHooks()

	base := NewStd("insert failed")
	ee := New(base).
		Component("datastore").
		Category(CategoryDatabase).
		Priority(PriorityHigh).
		Context("operation", "save_plate_read").
		Build()

	assert.Equal(t, "datastore", ee.GetComponent())
	assert.Equal(t, CategoryDatabase, ee.Category)
	assert.Equal(t, PriorityHigh, ee.GetPriority())
	assert.Equal(t, "save_plate_read", ee.GetContext()["operation"])
	assert.True(t, Is(ee, base), "wrapped error must stay reachable")
	assert.True(t, IsCategory(ee, CategoryDatabase))
	assert.False(t, IsCategory(ee, CategoryConflict))
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	ee := New(NewStd("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.GetPriority())
}

func TestFileContextOmitsPath(t *testing.T) {
	ee := New(NewStd("read failed")).FileContext("/srv/anpr/site-a/cam1/0001.lpr", 2048).Build()

	ctx := ee.GetContext()
	assert.Equal(t, "lpr", ctx["file_extension"])
	assert.Equal(t, "small", ctx["file_size_category"])
	for _, v := range ctx {
		assert.NotContains(t, fmt.Sprint(v), "site-a")
	}
}

func TestCallerComponentFallsBackToUnknown(t *testing.T) {
	assert.Equal(t, ComponentUnknown, callerComponent())
}

func TestReporterReceivesBuiltErrors(t *testing.T) {
	rep := &recordingReporter{}
	SetTelemetryReporter(rep)
	t.Cleanup(ClearErrorHooks)

	ee := New(NewStd("duplicate key")).Component("datastore").Build()

	require.Len(t, rep.reported, 1)
	assert.Same(t, ee, rep.reported[0])
	assert.True(t, ee.IsReported())
	assert.Equal(t, CategoryConflict, ee.Category, "category is detected when reporting is active")
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		component string
		want      ErrorCategory
	}{
		{"unique violation", NewStd("UNIQUE constraint failed: files.path"), "datastore", CategoryConflict},
		{"retries", NewStd("read retries exhausted"), "fileio", CategoryRetry},
		{"open", NewStd("open x.lpr: no such file"), "fileio", CategoryFileIO},
		{"component fallback", NewStd("boom"), "watcher", CategoryWatcher},
		{"generic", NewStd("boom"), "other", CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectCategory(tt.err, tt.component))
		})
	}
}

func TestScrubMessage(t *testing.T) {
	ClearErrorHooks()

	scrubbed := ScrubMessage("open /srv/anpr/site-a/cam1.lpr: permission denied")
	assert.NotContains(t, scrubbed, "site-a")
	assert.Contains(t, scrubbed, "[PATH_REDACTED]")

	scrubbed = ScrubMessage(`dial ingest:s3cret@tcp(db:3306)/anpr failed`)
	assert.NotContains(t, scrubbed, "s3cret")

	scrubbed = ScrubMessage(`open C:\anpr\cam1\0001.lpr failed`)
	assert.NotContains(t, scrubbed, `cam1`)
}

func TestCustomScrubber(t *testing.T) {
	SetPrivacyScrubber(func(string) string { return "redacted" })
	t.Cleanup(ClearErrorHooks)

	assert.Equal(t, "redacted", ScrubMessage("anything"))
}
