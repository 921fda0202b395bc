package textutil

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Hello, World!", "hello-world"},
		{"mixed separators", "  multiple   spaces--and__underscores ", "multiple-spaces-and-underscores"},
		{"already slug", "spring-launch", "spring-launch"},
		{"digits kept", "Episode 42: The Return", "episode-42-the-return"},
		{"accents folded", "Café Crème", "cafe-creme"},
		{"punctuation only", "!!!", ""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Slugify(tc.input); got != tc.want {
				t.Fatalf("Slugify(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	inputs := []string{
		"Hello, World!",
		"  multiple   spaces--and__underscores ",
		"Spring Launch",
		"Café Crème",
		"already-a-slug",
	}
	for _, input := range inputs {
		once := Slugify(input)
		if twice := Slugify(once); twice != once {
			t.Fatalf("Slugify not idempotent for %q: %q != %q", input, twice, once)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := SanitizeFileName("a/b:c*d?.mp4"); got != "a-b-c-d.mp4" {
		t.Fatalf("SanitizeFileName = %q", got)
	}
	if got := SanitizeFileName("   "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
