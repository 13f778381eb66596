package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultReader is the default subtitle file reader
type DefaultReader struct {
	path string
}

// NewReader creates a new subtitle file reader
func NewReader(
	path string,
) Reader {
	return &DefaultReader{
		path: path,
	}
}

// Read reads and parses the SRT file at the reader's path
func (r *DefaultReader) Read() (*File, error) {
	if !strings.HasSuffix(strings.ToLower(r.path), ".srt") {
		return nil, fmt.Errorf("only SRT format subtitle files are supported: %s", r.path)
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("subtitle file does not exist: %s", r.path)
		}
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	return ReadSRTBytes(data, r.path)
}

// ReadSRTBytes parses SRT content held in memory. path is recorded on the
// returned File and used only for messages.
func ReadSRTBytes(data []byte, path string) (*File, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	captions, err := parseSRT(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &File{
		Captions: captions,
		Language: DetectLanguage(captions),
		Format:   "SRT",
		Path:     path,
	}, nil
}

// parseSRT walks the input line by line. Timestamp text is kept verbatim;
// validating it is left to the editor.
func parseSRT(r io.Reader) ([]Caption, error) {
	var captions []Caption
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	current := Caption{}
	state := "index" // possible values: "index", "time", "text"
	var textLines []string
	lineNo := 0

	flush := func() {
		current.Text = strings.Join(textLines, "\n")
		captions = append(captions, current)
		current = Caption{}
		textLines = nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		switch state {
		case "index":
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			id, err := strconv.Atoi(trimmed)
			if err != nil {
				continue // skip stray lines between blocks
			}
			current.ID = id
			state = "time"

		case "time":
			if strings.TrimSpace(line) == "" {
				continue
			}
			start, end, ok := strings.Cut(line, "-->")
			if !ok {
				return nil, fmt.Errorf("line %d: invalid time line %q", lineNo, line)
			}
			current.Start = strings.TrimSpace(start)
			current.End = strings.TrimSpace(end)
			state = "text"

		case "text":
			if line == "" {
				flush()
				state = "index"
				continue
			}
			textLines = append(textLines, line)
		}
	}

	// handle last block without trailing blank line
	if state == "text" {
		flush()
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle data: %w", err)
	}
	return captions, nil
}
