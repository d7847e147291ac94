package redact

import "testing"

func TestRedactor_Literals(t *testing.T) {
	t.Parallel()

	r := New("hunter2", "tok-aaa")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "single occurrence",
			input: "auth failed for key hunter2",
			want:  "auth failed for key " + Placeholder,
		},
		{
			name:  "multiple occurrences",
			input: "hunter2 then hunter2 again",
			want:  Placeholder + " then " + Placeholder + " again",
		},
		{
			name:  "second secret",
			input: "header was tok-aaa",
			want:  "header was " + Placeholder,
		},
		{
			name:  "both secrets",
			input: "hunter2/tok-aaa",
			want:  Placeholder + "/" + Placeholder,
		},
		{
			name:  "no secret",
			input: "nothing to see",
			want:  "nothing to see",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Redact(tt.input); got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactor_Add(t *testing.T) {
	t.Parallel()

	r := New()
	if got := r.Redact("key k-123"); got != "key k-123" {
		t.Errorf("empty redactor changed input: %q", got)
	}

	r.Add("k-123")
	if got := r.Redact("key k-123"); got != "key "+Placeholder {
		t.Errorf("Redact after Add = %q", got)
	}
}

func TestRedactor_IgnoresEmptySecrets(t *testing.T) {
	t.Parallel()

	r := New("", "real")
	r.Add("")

	if got := r.Redact("untouched"); got != "untouched" {
		t.Errorf("empty secret mangled output: %q", got)
	}
	if got := r.Redact("real"); got != Placeholder {
		t.Errorf("Redact = %q, want %q", got, Placeholder)
	}
}
