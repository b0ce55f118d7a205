package openai

import (
	"bufio"
	"io"
	"strings"
)

// SSEEvent is one server-sent event, assembled from consecutive field lines.
type SSEEvent struct {
	Event string
	Data  string
}

// SSEScanner splits a text/event-stream body into events. Events are
// delimited by blank lines; multiple "data:" lines within one event are
// joined with newlines, and lines starting with ":" are comments. A partial
// event still pending at end of stream is delivered rather than dropped.
type SSEScanner struct {
	scanner *bufio.Scanner
	current SSEEvent
	done    bool
}

func NewSSEScanner(r io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(r)
	// Completion frames can carry large argument payloads in one line.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &SSEScanner{scanner: scanner}
}

// Next advances to the next event, returning false at end of stream. Check
// Err afterwards to tell a clean EOF from a read failure.
func (s *SSEScanner) Next() bool {
	if s.done {
		return false
	}

	var eventType string
	var dataLines []string
	flush := func() bool {
		if eventType == "" && len(dataLines) == 0 {
			return false
		}
		s.current = SSEEvent{Event: eventType, Data: strings.Join(dataLines, "\n")}
		return true
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if flush() {
				return true
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			// Exactly one leading space after the colon is part of the
			// delimiter, anything beyond that is payload.
			field, value = line[:i], strings.TrimPrefix(line[i+1:], " ")
		}
		switch field {
		case "event":
			eventType = value
		case "data":
			dataLines = append(dataLines, value)
		}
	}

	s.done = true
	return flush()
}

// Event returns the event read by the most recent successful Next.
func (s *SSEScanner) Event() SSEEvent {
	return s.current
}

// Err returns the first non-EOF error encountered while reading.
func (s *SSEScanner) Err() error {
	return s.scanner.Err()
}
