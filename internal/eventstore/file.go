package eventstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/strixlabs/strix-anomaly/internal/models"
)

// FileSource reads newline-delimited JSON event records from disk. Used by
// one-shot runs and demos; the window arguments are ignored because a file is
// already a fixed window.
type FileSource struct {
	Path string
}

// FetchEvents reads every record in the file, in order.
func (f *FileSource) FetchEvents(ctx context.Context, _, _ time.Time) ([]models.EventRecord, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer file.Close()

	var events []models.EventRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e models.EventRecord
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("parse events file line %d: %w", line, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}
	return events, nil
}
