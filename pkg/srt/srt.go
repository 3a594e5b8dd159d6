// Package srt emits SubRip subtitle files. Output is UTF-8 without BOM,
// CRLF line endings, a blank line between cues, and dense 1-based cue
// indices, which is what the common players and validators expect.
package srt

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/voxpipe/voxpipe/pkg/timecode"
)

// crlf terminates every line of an SRT file.
const crlf = "\r\n"

// Cue is one subtitle entry. Index is assigned by the writer; callers only
// provide timing and text.
type Cue struct {
	// StartMs and EndMs are the display window in milliseconds.
	StartMs int64
	EndMs   int64

	// Text is the cue body. Embedded newlines produce multi-line cues.
	Text string
}

// Writer streams cues to an io.Writer, numbering them from 1.
type Writer struct {
	w     io.Writer
	index int
}

// NewWriter creates a new SRT writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteCue writes a single cue and advances the index.
func (w *Writer) WriteCue(cue Cue) error {
	w.index++

	var b strings.Builder
	b.WriteString(strconv.Itoa(w.index))
	b.WriteString(crlf)
	b.WriteString(timecode.SRT(cue.StartMs))
	b.WriteString(" --> ")
	b.WriteString(timecode.SRT(cue.EndMs))
	b.WriteString(crlf)
	for _, line := range strings.Split(cue.Text, "\n") {
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteString(crlf)
	}
	b.WriteString(crlf)

	if _, err := io.WriteString(w.w, b.String()); err != nil {
		return fmt.Errorf("writing cue %d: %w", w.index, err)
	}
	return nil
}

// Count returns how many cues have been written.
func (w *Writer) Count() int {
	return w.index
}

// Marshal renders a complete SRT document from the given cues. Writes to
// the in-memory buffer cannot fail, so neither can Marshal.
func Marshal(cues []Cue) []byte {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, cue := range cues {
		// bytes.Buffer never returns a write error.
		_ = w.WriteCue(cue)
	}
	return buf.Bytes()
}

// Parse reads an SRT document into cues. Indices are validated to be dense
// and 1-based; timing is returned in milliseconds.
func Parse(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		index, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			return nil, fmt.Errorf("cue %d: invalid index line %q", len(cues)+1, line)
		}
		if index != len(cues)+1 {
			return nil, fmt.Errorf("cue indices must be dense and 1-based: got %d, want %d", index, len(cues)+1)
		}

		if !scanner.Scan() {
			return nil, fmt.Errorf("cue %d: missing timing line", index)
		}
		timing := strings.TrimRight(scanner.Text(), "\r")
		parts := strings.Split(timing, " --> ")
		if len(parts) != 2 {
			return nil, fmt.Errorf("cue %d: invalid timing line %q", index, timing)
		}
		start, err := timecode.ParseSRT(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", index, err)
		}
		end, err := timecode.ParseSRT(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", index, err)
		}

		var body []string
		for scanner.Scan() {
			text := strings.TrimRight(scanner.Text(), "\r")
			if text == "" {
				break
			}
			body = append(body, text)
		}

		cues = append(cues, Cue{
			StartMs: start,
			EndMs:   end,
			Text:    strings.Join(body, "\n"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading srt: %w", err)
	}
	return cues, nil
}
