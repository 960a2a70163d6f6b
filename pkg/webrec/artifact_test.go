package webrec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fixedTime = time.Date(2024, 3, 9, 17, 4, 5, 123456789, time.UTC)

func TestRecordingFilename(t *testing.T) {
	assert.Equal(t, "2024-03-09T17:04:05.123Z.ogg", RecordingFilename(fixedTime, "ogg"))

	// Local times are converted to UTC.
	tokyo := time.FixedZone("JST", 9*60*60)
	assert.Equal(t, "2024-03-09T17:04:05.123Z.mp3", RecordingFilename(fixedTime.In(tokyo), "mp3"))

	assert.Equal(t, "2024-01-01T00:00:00.000Z.wav",
		RecordingFilename(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "wav"))
}

func TestRecordingEntryLink(t *testing.T) {
	e := &RecordingEntry{URL: "/blob/abc", Filename: "2024-01-01T00:00:00.000Z.wav"}
	assert.Equal(t, DownloadLink{
		Href:     "/blob/abc",
		Download: "2024-01-01T00:00:00.000Z.wav",
		Text:     "2024-01-01T00:00:00.000Z.wav",
	}, e.Link())
}
