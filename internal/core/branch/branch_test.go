package branch

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        Type
	}{
		{
			name:        "bug keyword classifies as fix",
			description: "Fix the login bug",
			want:        TypeFix,
		},
		{
			name:        "add keyword classifies as feat",
			description: "Add dark mode toggle",
			want:        TypeFeat,
		},
		{
			name:        "refactor keyword classifies as refactor",
			description: "Refactor the auth module",
			want:        TypeRefactor,
		},
		{
			name:        "no keyword falls back to chore",
			description: "Update dependencies",
			want:        TypeChore,
		},
		{
			name:        "fix wins over feat when both match",
			description: "Add a fix for the broken new feature",
			want:        TypeFix,
		},
		{
			name:        "feat wins over refactor when both match",
			description: "Implement a cleaner settings page",
			want:        TypeFeat,
		},
		{
			name:        "matching is case-insensitive",
			description: "BROKEN deploy script",
			want:        TypeFix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.description); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.description, got, tt.want)
			}
		})
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        string
	}{
		{
			name:        "strips leading verb and article",
			description: "Fix the login bug",
			want:        "login-bug",
		},
		{
			name:        "strips leading verb only",
			description: "Add dark mode toggle",
			want:        "dark-mode-toggle",
		},
		{
			name:        "removes punctuation",
			description: "Update the README (it's outdated!)",
			want:        "readme-its-outdated",
		},
		{
			name:        "collapses whitespace and hyphen runs",
			description: "fix  double --- spaced   words",
			want:        "double-spaced-words",
		},
		{
			name:        "keeps last word when everything is filler",
			description: "please fix",
			want:        "fix",
		},
		{
			name:        "empty input falls back to update",
			description: "!!!",
			want:        "update",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slug(tt.description); got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.description, got, tt.want)
			}
		})
	}
}

func TestSlugTruncatesOnWordBoundary(t *testing.T) {
	long := "support importing gigantic spreadsheets with pivot tables and charts"
	got := Slug(long)

	if len(got) > maxSlugLen {
		t.Fatalf("Slug length = %d, want <= %d", len(got), maxSlugLen)
	}
	if got[len(got)-1] == '-' {
		t.Errorf("Slug %q has trailing hyphen", got)
	}
	// The cut must land on a word boundary of the original slug, never
	// mid-word.
	full := "support-importing-gigantic-spreadsheets-with-pivot-tables-and-charts"
	if full[:len(got)] != got || (len(got) < len(full) && full[len(got)] != '-') {
		t.Errorf("Slug %q is not a word-boundary prefix of %q", got, full)
	}
}

func TestSlugIsDeterministic(t *testing.T) {
	inputs := []string{
		"Fix the login bug",
		"Add dark mode toggle",
		"some completely unclassifiable request",
	}
	for _, in := range inputs {
		first := Slug(in)
		for i := 0; i < 5; i++ {
			if got := Slug(in); got != first {
				t.Fatalf("Slug(%q) changed between calls: %q then %q", in, first, got)
			}
		}
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"Fix the login bug", "fix/login-bug"},
		{"Add dark mode toggle", "feat/dark-mode-toggle"},
		{"Refactor the auth module", "refactor/auth-module"},
		{"Update dependencies", "chore/dependencies"},
	}

	for _, tt := range tests {
		if got := Name(tt.description); got != tt.want {
			t.Errorf("Name(%q) = %q, want %q", tt.description, got, tt.want)
		}
	}
}
