package database

import "testing"

func TestValidIdent(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"users", true},
		{"_private", true},
		{"user_2", true},
		{"2users", false},
		{"user-name", false},
		{`user"name`, false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidIdent(c.name); got != c.want {
			t.Errorf("ValidIdent(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestQuoteIdent(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"users", `"users"`},
		{`we"ird`, `"we""ird"`},
	}
	for _, c := range cases {
		if got := QuoteIdent(c.in); got != c.want {
			t.Errorf("QuoteIdent(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestQuoteQualified(t *testing.T) {
	got := QuoteQualified("public", "users")
	want := `"public"."users"`
	if got != want {
		t.Errorf("QuoteQualified = %q, want %q", got, want)
	}
}
