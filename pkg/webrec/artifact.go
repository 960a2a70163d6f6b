package webrec

import "time"

// filenameTimeLayout is ISO-8601 in UTC with millisecond precision.
const filenameTimeLayout = "2006-01-02T15:04:05.000Z"

// RecordingFilename names a recording after the moment it was encoded:
// <ISO-8601 UTC>.<encoding>.
func RecordingFilename(t time.Time, encoding string) string {
	return t.UTC().Format(filenameTimeLayout) + "." + encoding
}

// RecordingEntry is one completed recording in the results list.
type RecordingEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Encoding  string    `json:"encoding"`
	MIMEType  string    `json:"mime_type"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	Size      int       `json:"size"`
	Duration  float64   `json:"duration_seconds"`
	Dropped   int64     `json:"dropped_frames,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	SavedPath string    `json:"saved_path,omitempty"`
	Blob      *Blob     `json:"-"`
}

// DownloadLink is the anchor rendered next to the audio player.
type DownloadLink struct {
	Href     string `json:"href"`
	Download string `json:"download"`
	Text     string `json:"text"`
}

// Link returns the download anchor. Its text is the filename.
func (e *RecordingEntry) Link() DownloadLink {
	return DownloadLink{
		Href:     e.URL,
		Download: e.Filename,
		Text:     e.Filename,
	}
}
