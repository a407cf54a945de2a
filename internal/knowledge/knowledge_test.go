package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

func writeEntries(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	return dir
}

func sampleBase(t *testing.T) *Base {
	t.Helper()
	dir := writeEntries(t, map[string]string{
		"espresso-basics.mdx": `---
title: Espresso Extraction Basics
topic: equipment
tags: [espresso, grinder]
---
Dial in your grinder before every shift. A balanced espresso shot
extracts in 25 to 30 seconds. Clean the group heads daily.`,
		"menu-pricing.mdx": `---
title: Menu Pricing Psychology
topic: menu_design
tags: [pricing, revenue]
---
Anchor prices with a premium item. Menu layout drives revenue and
upselling at the counter.`,
		"bean-storage.md": `---
title: Bean Storage
topic: storage
---
Store beans in airtight containers away from light to keep freshness.`,
		"notes.txt": "ignored",
	})
	return New(dir, Options{}, logger.NewNop())
}

func TestParseFrontmatter(t *testing.T) {
	t.Parallel()

	e, err := Parse("bean-storage", []byte("---\ntitle: Bean Storage\ntopic: storage\ntags: [beans]\n---\nKeep beans cool."))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if e.Title != "Bean Storage" || e.Topic != "storage" || e.Content != "Keep beans cool." {
		t.Fatalf("Parse() = %+v", e)
	}
	if len(e.Tags) != 1 || e.Tags[0] != "beans" {
		t.Fatalf("Tags = %v", e.Tags)
	}

	plain, err := Parse("loose-note", []byte("No frontmatter here."))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if plain.Title != "loose-note" || plain.Content != "No frontmatter here." {
		t.Fatalf("Parse() plain = %+v", plain)
	}

	if _, err := Parse("broken", []byte("---\ntitle: [unclosed\n---\nbody")); err == nil {
		t.Fatal("Parse() error = nil, want frontmatter error")
	}
}

func TestSearchRanksTitleMatches(t *testing.T) {
	t.Parallel()

	b := sampleBase(t)
	hits := b.Search("espresso grinder", 0)
	if len(hits) == 0 {
		t.Fatal("Search() returned no hits")
	}
	if hits[0].ID != "espresso-basics" {
		t.Fatalf("Search() top hit = %s, want espresso-basics", hits[0].ID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("Search() not sorted: %v", hits)
		}
	}
}

func TestSearchUnrelatedQueryIsEmpty(t *testing.T) {
	t.Parallel()

	b := sampleBase(t)
	if hits := b.Search("quantum zebra", 0); len(hits) != 0 {
		t.Fatalf("Search() = %v, want none", hits)
	}
	if hits := b.Search("   ", 0); hits != nil {
		t.Fatalf("Search(blank) = %v, want nil", hits)
	}
}

func TestSearchToleratesTypos(t *testing.T) {
	t.Parallel()

	b := sampleBase(t)
	hits := b.Search("espreso", 1)
	if len(hits) != 1 || hits[0].ID != "espresso-basics" {
		t.Fatalf("Search(typo) = %v", hits)
	}
}

func TestSearchLimit(t *testing.T) {
	t.Parallel()

	b := sampleBase(t)
	if hits := b.Search("revenue beans espresso", 2); len(hits) != 2 {
		t.Fatalf("Search() returned %d hits, want 2", len(hits))
	}
}

func TestTopics(t *testing.T) {
	t.Parallel()

	got := sampleBase(t).Topics()
	want := []string{"equipment", "menu_design", "storage"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Topics() = %v, want %v", got, want)
	}
}

func TestEntryLookup(t *testing.T) {
	t.Parallel()

	b := sampleBase(t)
	tests := []struct {
		query string
		want  string
	}{
		{"menu pricing psychology", "menu-pricing"},
		{"storage", "bean-storage"},
		{"Espresso Extraction", "espresso-basics"},
		{"airtight containers", "bean-storage"},
	}
	for _, tt := range tests {
		e, ok := b.Entry(tt.query)
		if !ok || e.ID != tt.want {
			t.Fatalf("Entry(%q) = %v %v, want %s", tt.query, e, ok, tt.want)
		}
	}
	if _, ok := b.Entry("nothing matches this"); ok {
		t.Fatal("Entry() ok = true for unknown entry")
	}
}

func TestCacheExpiry(t *testing.T) {
	t.Parallel()

	dir := writeEntries(t, map[string]string{"a.md": "---\ntitle: First\ntopic: one\n---\nbody"})
	b := New(dir, Options{TTL: time.Minute}, logger.NewNop())
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	if got := len(b.Entries()); got != 1 {
		t.Fatalf("Entries() = %d, want 1", got)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.md"), []byte("---\ntitle: Second\n---\nbody"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if got := len(b.Entries()); got != 1 {
		t.Fatalf("Entries() before expiry = %d, want cached 1", got)
	}
	now = now.Add(2 * time.Minute)
	if got := len(b.Entries()); got != 2 {
		t.Fatalf("Entries() after expiry = %d, want 2", got)
	}
}

func TestMissingDirectoryIsEmpty(t *testing.T) {
	t.Parallel()

	b := New(filepath.Join(t.TempDir(), "absent"), Options{}, logger.NewNop())
	if got := b.Entries(); len(got) != 0 {
		t.Fatalf("Entries() = %v, want empty", got)
	}
}
