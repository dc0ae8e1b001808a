package executor

import (
	"reflect"
	"testing"
)

func TestDetectInputs(t *testing.T) {
	tests := []struct {
		name string
		code string
		want []InputRequest
	}{
		{
			name: "no inputs",
			code: "print('hello')",
			want: nil,
		},
		{
			name: "double quoted prompt",
			code: `name = input("Name: ")`,
			want: []InputRequest{{Site: `input("Name: ")`, Prompt: "Name: "}},
		},
		{
			name: "single quoted prompt",
			code: `age = input('Age: ')`,
			want: []InputRequest{{Site: `input('Age: ')`, Prompt: "Age: "}},
		},
		{
			name: "f-string prompt",
			code: `x = input(f"Value for {k}: ")`,
			want: []InputRequest{{Site: `input(f"Value for {k}: ")`, Prompt: "Value for {k}: "}},
		},
		{
			name: "bare call falls back to default",
			code: `x = input()`,
			want: []InputRequest{{Site: `input()`, Prompt: DefaultPromptLabel}},
		},
		{
			name: "whitespace inside call",
			code: `x = input ( "spaced" )`,
			want: []InputRequest{{Site: `input ( "spaced" )`, Prompt: "spaced"}},
		},
		{
			name: "multiple calls in source order",
			code: "a = input(\"First: \")\nb = input()\nc = input('Third: ')",
			want: []InputRequest{
				{Site: `input("First: ")`, Prompt: "First: "},
				{Site: `input()`, Prompt: DefaultPromptLabel},
				{Site: `input('Third: ')`, Prompt: "Third: "},
			},
		},
		{
			name: "duplicate sites preserved",
			code: "a = input()\nb = input()",
			want: []InputRequest{
				{Site: `input()`, Prompt: DefaultPromptLabel},
				{Site: `input()`, Prompt: DefaultPromptLabel},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectInputs(tc.code)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("DetectInputs(%q) = %v, want %v", tc.code, got, tc.want)
			}
		})
	}
}

func TestDetectInputsIdempotent(t *testing.T) {
	code := "a = input(\"One: \")\nb = input()\nc = input('Two: ')"
	first := DetectInputs(code)
	second := DetectInputs(code)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated scans differ: %v vs %v", first, second)
	}
}

func TestResolveInputs(t *testing.T) {
	code := "name = input(\"Name: \")\nprint(name)"
	requests := DetectInputs(code)

	resolved, err := ResolveInputs(code, requests, func(prompt string) (string, bool) {
		if prompt != "Name: " {
			t.Errorf("unexpected prompt %q", prompt)
		}
		return "Ada", true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "name = \"Ada\"\nprint(name)"
	if resolved != want {
		t.Errorf("resolved = %q, want %q", resolved, want)
	}
}

func TestResolveInputsEscaping(t *testing.T) {
	code := `x = input()`
	resolved, err := ResolveInputs(code, DetectInputs(code), func(string) (string, bool) {
		return `say "hi" \ bye`, true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `x = "say \"hi\" \\ bye"`
	if resolved != want {
		t.Errorf("resolved = %q, want %q", resolved, want)
	}
}

func TestResolveInputsDuplicateSites(t *testing.T) {
	code := "a = input()\nb = input()"
	answers := []string{"first", "second"}
	i := 0
	resolved, err := ResolveInputs(code, DetectInputs(code), func(string) (string, bool) {
		v := answers[i]
		i++
		return v, true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "a = \"first\"\nb = \"second\""
	if resolved != want {
		t.Errorf("resolved = %q, want %q", resolved, want)
	}
}

func TestResolveInputsCancellation(t *testing.T) {
	code := "a = input(\"One: \")\nb = input(\"Two: \")"
	calls := 0
	_, err := ResolveInputs(code, DetectInputs(code), func(string) (string, bool) {
		calls++
		if calls == 2 {
			return "", false
		}
		return "v", true
	})
	if err != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if calls != 2 {
		t.Errorf("callback invoked %d times, want 2 (abort on cancel)", calls)
	}
}
