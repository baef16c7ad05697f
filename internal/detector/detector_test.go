package detector

import (
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/interviewer/internal/protocol"
)

var sentinels = []protocol.Sentinel{
	{Code: "5j3k", Class: protocol.ClassProblematic, Message: "Thank you for participating, the interview concludes here."},
	{Code: "x7y8", Class: protocol.ClassCompleted, Message: "Thank you for participating in the interview!"},
}

func newDetector() *Detector {
	return New(sentinels, Options{SingleQuestion: true})
}

func TestScan(t *testing.T) {
	d := newDetector()

	if _, ok := d.Scan("What motivated you?"); ok {
		t.Fatal("no sentinel expected")
	}

	s, ok := d.Scan("I cannot continue with this. 5j3k")
	if !ok || s.Code != "5j3k" {
		t.Fatalf("expected 5j3k, got %+v", s)
	}

	// Configured order wins when both appear.
	s, _ = d.Scan("x7y8 5j3k")
	if s.Code != "5j3k" {
		t.Errorf("expected first configured code to win, got %s", s.Code)
	}
}

func TestSafeDisplay(t *testing.T) {
	d := newDetector()

	cases := []struct {
		in, want string
		ok       bool
	}{
		{"Hello there", "Hello there", true},
		{"Hello 5", "Hello ", true},
		{"Hello 5j3", "Hello ", true},
		{"Hello x7", "Hello ", true},
		{"Hello 5j3k", "", false},
		{"x7y8", "", false},
		{"", "", true},
	}
	for _, tc := range cases {
		got, ok := d.SafeDisplay(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("SafeDisplay(%q) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSafeDisplay_NeverShowsSentinel(t *testing.T) {
	d := newDetector()
	stream := "Thanks for sharing. 5j3k and more"

	for i := 1; i <= len(stream); i++ {
		shown, _ := d.SafeDisplay(stream[:i])
		for _, s := range sentinels {
			if strings.Contains(shown, s.Code) {
				t.Fatalf("prefix %d displayed sentinel: %q", i, shown)
			}
		}
	}
}

func TestCountQuestions(t *testing.T) {
	cases := map[string]int{
		"What motivated you to learn about saving money?": 1,
		"What motivated you? And how did you learn it?":   3,
		"Could you describe the chart":                    1,
		"No questions here.":                              0,
	}
	for in, want := range cases {
		if got := CountQuestions(in); got != want {
			t.Errorf("CountQuestions(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestApply(t *testing.T) {
	d := newDetector()

	tests := []struct {
		name      string
		in        string
		want      string
		terminal  bool
		truncated bool
	}{
		{
			name: "single question unchanged",
			in:   "What motivated you to learn about saving money?",
			want: "What motivated you to learn about saving money?",
		},
		{
			name:      "two questions truncated",
			in:        "What motivated you? And how did you learn it?",
			want:      "What motivated you?",
			truncated: true,
		},
		{
			name: "summary turn kept whole",
			in:   "You said charts help. Videos bored you? To conclude, how well does the summary capture your experiences? Please reply 1-4.",
			want: "You said charts help. Videos bored you? To conclude, how well does the summary capture your experiences? Please reply 1-4.",
		},
		{
			name: "phrases without question mark untouched",
			in:   "Can you describe it. Could you say more.",
			want: "Can you describe it. Could you say more.",
		},
		{
			name:     "sentinel mid-string",
			in:       "Let us stop here 5j3k because",
			want:     "Thank you for participating, the interview concludes here.",
			terminal: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := d.Apply(tc.in)
			if r.Text != tc.want {
				t.Errorf("Text = %q, want %q", r.Text, tc.want)
			}
			if r.Terminal != tc.terminal || r.Truncated != tc.truncated {
				t.Errorf("Terminal=%v Truncated=%v, want %v %v", r.Terminal, r.Truncated, tc.terminal, tc.truncated)
			}
			if strings.Contains(r.Text, "5j3k") || strings.Contains(r.Text, "x7y8") {
				t.Error("result leaked a sentinel code")
			}
		})
	}
}

func TestApply_EnforcementOff(t *testing.T) {
	d := New(sentinels, Options{})
	in := "What motivated you? And how did you learn it?"
	if got := d.Apply(in).Text; got != in {
		t.Errorf("expected unchanged text with enforcement off, got %q", got)
	}
}

func TestFromProtocol(t *testing.T) {
	def, err := protocol.Default()
	if err != nil {
		t.Fatal(err)
	}
	d := FromProtocol(def)
	if s, ok := d.Scan("x7y8"); !ok || s.Class != protocol.ClassCompleted {
		t.Errorf("expected completion sentinel from default protocol, got %+v", s)
	}
	if !d.IsSummary("To conclude, HOW WELL DOES the summary fit?") {
		t.Error("expected summary markers from protocol")
	}
}
