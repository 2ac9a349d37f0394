// Package source feeds raw alert text into the pipeline.
package source

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// RawAlert is one alert exactly as received, before parsing.
type RawAlert struct {
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Source produces the alerts that arrived since the last fetch.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]RawAlert, error)
}

// alertSeparator splits a drop file into alerts on blank-line runs.
var alertSeparator = regexp.MustCompile(`\n\s*\n\s*\n`)

// FileSource reads alerts from a drop file. Each fetch returns only the
// portion of the file appended since the previous fetch, so the poll
// loop can leave the file in place between cycles.
type FileSource struct {
	path   string
	offset int64
	clock  func() time.Time
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, clock: func() time.Time { return time.Now().UTC() }}
}

func (f *FileSource) Name() string { return "file:" + f.path }

func (f *FileSource) Fetch(_ context.Context) ([]RawAlert, error) {
	fh, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open alerts file: %w", err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat alerts file: %w", err)
	}
	if info.Size() < f.offset {
		// file was truncated or replaced; start over
		f.offset = 0
	}
	if info.Size() == f.offset {
		return nil, nil
	}
	if _, err := fh.Seek(f.offset, 0); err != nil {
		return nil, fmt.Errorf("seek alerts file: %w", err)
	}
	buf := make([]byte, info.Size()-f.offset)
	if _, err := fh.Read(buf); err != nil {
		return nil, fmt.Errorf("read alerts file: %w", err)
	}
	f.offset = info.Size()

	return SplitAlerts(string(buf), f.clock()), nil
}

// SplitAlerts breaks drop-file text into individual alerts. Alerts are
// separated by at least two blank lines; single blank lines stay inside
// one alert because templates span multiple paragraphs.
func SplitAlerts(text string, fetchedAt time.Time) []RawAlert {
	var alerts []RawAlert
	for _, chunk := range alertSeparator.Split(text, -1) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		alerts = append(alerts, RawAlert{Text: chunk, FetchedAt: fetchedAt})
	}
	return alerts
}
