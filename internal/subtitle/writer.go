package subtitle

import (
	"fmt"
	"io"
	"strings"

	"github.com/MimeLyc/caption-sync/pkg/file"
)

// DefaultWriter writes captions as standard SRT blocks
type DefaultWriter struct{}

// NewWriter creates a new subtitle writer
func NewWriter() Writer {
	return &DefaultWriter{}
}

// Write writes the SRT rendering of captions to w
func (DefaultWriter) Write(w io.Writer, captions []Caption) error {
	if _, err := io.WriteString(w, Export(captions)); err != nil {
		return fmt.Errorf("failed to write subtitles: %w", err)
	}
	return nil
}

// Export renders captions as SRT: one "<id>\n<start> --> <end>\n<text>\n"
// block per caption, blocks separated by a blank line.
func Export(captions []Caption) string {
	blocks := make([]string, 0, len(captions))
	for _, c := range captions {
		blocks = append(blocks, fmt.Sprintf("%d\n%s --> %s\n%s\n", c.ID, c.Start, c.End, c.Text))
	}
	return strings.Join(blocks, "\n")
}

// WriteFile atomically replaces path with the SRT rendering of captions.
func WriteFile(path string, captions []Caption) error {
	if err := file.WriteAtomic(path, []byte(Export(captions)), 0o644); err != nil {
		return fmt.Errorf("failed to write subtitle file: %w", err)
	}
	return nil
}
