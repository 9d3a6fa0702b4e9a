package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// persister appends persistent events to a JSON Lines file, one event per
// line, and reads them back for replay. Appends are atomic per line.
type persister struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func newPersister(path string) *persister {
	return &persister{path: path}
}

// Append writes one event as a JSON line. The file is opened lazily so a
// bus without persistent events never touches disk.
func (p *persister) Append(event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
			return fmt.Errorf("create event file directory; %w", err)
		}
		file, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open event file %q; %w", p.path, err)
		}
		p.file = file
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s; %w", event.EventID, err)
	}
	line = append(line, '\n')

	if _, err := p.file.Write(line); err != nil {
		return fmt.Errorf("append event %s; %w", event.EventID, err)
	}
	return nil
}

// ReadAll returns every persisted event in file order. A missing file yields
// an empty slice. Malformed lines are skipped and reported.
func (p *persister) ReadAll() ([]Event, []error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := os.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("open event file %q; %w", p.path, err)}
	}
	defer file.Close()

	var events []Event
	var errs []error

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			errs = append(errs, fmt.Errorf("decode event line; %w", err))
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("read event file %q; %w", p.path, err))
	}

	return events, errs
}

// Close releases the file handle.
func (p *persister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}
