package agent

import (
	"fmt"
	"strings"
)

// Summary is a worker's self-contained report for one subtask.
type Summary struct {
	Worker      string   `json:"worker"`
	Subtask     string   `json:"subtask"`
	Text        string   `json:"text"`
	Limitations []string `json:"limitations,omitempty"`
	Ambiguous   []string `json:"ambiguous,omitempty"`
	Steps       int      `json:"steps"`
	ToolCalls   int      `json:"tool_calls"`
}

// Render formats the summary as the message content appended to shared state.
func (s *Summary) Render() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(s.Text))
	if len(s.Ambiguous) > 0 {
		quoted := make([]string, len(s.Ambiguous))
		for i, ref := range s.Ambiguous {
			quoted[i] = fmt.Sprintf("%q", ref)
		}
		fmt.Fprintf(&b, "\n\nUnresolved symbols: %s.", strings.Join(quoted, ", "))
	}
	if len(s.Limitations) > 0 {
		b.WriteString("\n\nLimitations:")
		for _, l := range s.Limitations {
			b.WriteString("\n- ")
			b.WriteString(l)
		}
	}
	return b.String()
}

func (s *Summary) addLimitation(l string) {
	for _, existing := range s.Limitations {
		if existing == l {
			return
		}
	}
	s.Limitations = append(s.Limitations, l)
}

func (s *Summary) addAmbiguous(ref string) {
	for _, existing := range s.Ambiguous {
		if existing == ref {
			return
		}
	}
	s.Ambiguous = append(s.Ambiguous, ref)
}
