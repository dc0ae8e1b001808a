package codegen

import "testing"

func TestStripThink(t *testing.T) {
	tests := []struct {
		name, input, want string
	}{
		{"no think block", "print(1)", "print(1)"},
		{"closed block", "<think>reasoning here</think>\nprint(1)", "print(1)"},
		{"unterminated block", "print(1)\n<think>still going", "print(1)"},
		{"multiline block", "<think>line1\nline2</think>  print(1)", "print(1)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripThink(tc.input); got != tc.want {
				t.Errorf("StripThink(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{
			name:   "python fence",
			input:  "Here you go:\n```python\nprint('hi')\n```\nEnjoy.",
			want:   "print('hi')",
			wantOK: true,
		},
		{
			name:   "plain fence",
			input:  "```\nx = 1\nprint(x)\n```",
			want:   "x = 1\nprint(x)",
			wantOK: true,
		},
		{
			name:   "raw code with marker",
			input:  "import os\nprint(os.getcwd())",
			want:   "import os\nprint(os.getcwd())",
			wantOK: true,
		},
		{
			name:   "raw code behind think block",
			input:  "<think>let me figure this out</think>\ndef f():\n    return 2",
			want:   "def f():\n    return 2",
			wantOK: true,
		},
		{
			name:   "conversational reply",
			input:  "I cannot help with that request.",
			wantOK: false,
		},
		{
			name:   "empty after stripping",
			input:  "<think>only thoughts",
			wantOK: false,
		},
		{
			name:   "stray leading fence without newline body",
			input:  "```python\nprint(42)\n```",
			want:   "print(42)",
			wantOK: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractCode(tc.input)
			if ok != tc.wantOK {
				t.Fatalf("ExtractCode(%q) ok = %v, want %v", tc.input, ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Errorf("ExtractCode(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestExtractCodeIdempotentOnFencedInput(t *testing.T) {
	input := "```python\nfor i in range(3):\n    print(i)\n```"
	first, ok := ExtractCode(input)
	if !ok {
		t.Fatal("first extraction failed")
	}
	second, ok := ExtractCode(first)
	if !ok {
		t.Fatal("second extraction failed")
	}
	if first != second {
		t.Errorf("extraction not stable: %q vs %q", first, second)
	}
}

func TestConversationBounds(t *testing.T) {
	conv := NewConversationWithLimits(6, 4)

	for i := 0; i < 10; i++ {
		conv.Append("request", "response")
	}

	if conv.Len() != 6 {
		t.Errorf("Len() = %d, want 6 (retention cap)", conv.Len())
	}
	if got := len(conv.Messages()); got != 4 {
		t.Errorf("len(Messages()) = %d, want 4 (send cap)", got)
	}
}

func TestConversationMessagesIsCopy(t *testing.T) {
	conv := NewConversation()
	conv.Append("a", "b")

	msgs := conv.Messages()
	msgs[0].Content = "mutated"

	if conv.Messages()[0].Content != "a" {
		t.Error("Messages() leaked internal state")
	}
}
