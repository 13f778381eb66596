package subtitle

import "fmt"

// Issue describes a caption that would not survive a strict SRT consumer.
type Issue struct {
	Index   int    `json:"index"`
	ID      int    `json:"id"`
	Message string `json:"message"`
}

// Validate reports unparseable timestamps and inverted intervals.
// It never modifies the list; committing invalid captions is allowed.
func Validate(captions []Caption) []Issue {
	var issues []Issue
	for i, c := range captions {
		start, startErr := Parse(c.Start)
		end, endErr := Parse(c.End)
		switch {
		case startErr != nil:
			issues = append(issues, Issue{Index: i, ID: c.ID, Message: fmt.Sprintf("invalid start %q", c.Start)})
		case endErr != nil:
			issues = append(issues, Issue{Index: i, ID: c.ID, Message: fmt.Sprintf("invalid end %q", c.End)})
		case start > end:
			issues = append(issues, Issue{Index: i, ID: c.ID, Message: fmt.Sprintf("start %s is after end %s", c.Start, c.End)})
		}
	}
	return issues
}
