// Package knowledge loads markdown knowledge entries and searches them.
//
// Entries are .md or .mdx files with optional YAML frontmatter carrying
// title, topic and tags. Files are re-read when the cache expires.
package knowledge

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

// Entry is one knowledge document.
type Entry struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Topic    string   `json:"topic,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Content  string   `json:"content"`
	Keywords []string `json:"-"`
}

// Hit is a ranked search result.
type Hit struct {
	ID      string  `json:"id"`
	Topic   string  `json:"topic,omitempty"`
	Title   string  `json:"title"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

// Options tunes loading and ranking.
type Options struct {
	// MinScore drops hits below the threshold.
	MinScore float64
	// MaxResults caps Search when the caller passes no limit.
	MaxResults int
	// TTL is how long parsed files are cached.
	TTL time.Duration
}

// DefaultOptions are used for zero fields.
var DefaultOptions = Options{MinScore: 1.0, MaxResults: 10, TTL: 5 * time.Minute}

// Base is a directory-backed knowledge base. It is safe for concurrent use.
type Base struct {
	dir  string
	opts Options
	log  *logger.Logger
	now  func() time.Time

	mu      sync.Mutex
	entries []Entry
	loaded  time.Time
}

// New creates a knowledge base over dir. Nothing is read until first use.
func New(dir string, opts Options, log *logger.Logger) *Base {
	if opts.MinScore <= 0 {
		opts.MinScore = DefaultOptions.MinScore
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultOptions.MaxResults
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions.TTL
	}
	return &Base{dir: dir, opts: opts, log: log.Named("knowledge"), now: time.Now}
}

// Reload re-reads every entry from disk.
func (b *Base) Reload() error {
	entries, err := loadDir(b.dir)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.entries = entries
	b.loaded = b.now()
	b.mu.Unlock()
	return nil
}

// Entries returns the cached entries, reloading when stale. A failed
// reload keeps serving the previous entries.
func (b *Base) Entries() []Entry {
	b.mu.Lock()
	fresh := !b.loaded.IsZero() && b.now().Sub(b.loaded) < b.opts.TTL
	cached := b.entries
	b.mu.Unlock()
	if fresh {
		return cached
	}

	if err := b.Reload(); err != nil {
		b.log.Warn("knowledge reload failed", zap.String("dir", b.dir), zap.Error(err))
		b.mu.Lock()
		b.loaded = b.now()
		b.mu.Unlock()
		return cached
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries
}

// Topics returns the distinct topics, sorted.
func (b *Base) Topics() []string {
	seen := make(map[string]bool)
	var topics []string
	for _, e := range b.Entries() {
		if e.Topic != "" && !seen[e.Topic] {
			seen[e.Topic] = true
			topics = append(topics, e.Topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// Entry finds one entry by exact title, exact topic, fuzzy title, and
// finally the best search hit.
func (b *Base) Entry(topicOrTitle string) (*Entry, bool) {
	q := strings.TrimSpace(topicOrTitle)
	if q == "" {
		return nil, false
	}
	entries := b.Entries()
	for i := range entries {
		if strings.EqualFold(entries[i].Title, q) {
			return &entries[i], true
		}
	}
	for i := range entries {
		if strings.EqualFold(entries[i].Topic, q) {
			return &entries[i], true
		}
	}

	titles := make([]string, len(entries))
	for i, e := range entries {
		titles[i] = e.Title
	}
	if ranks := fuzzy.RankFindFold(q, titles); len(ranks) > 0 {
		sort.Sort(ranks)
		return &entries[ranks[0].OriginalIndex], true
	}

	hits := b.Search(q, 1)
	if len(hits) == 0 {
		return nil, false
	}
	for i := range entries {
		if entries[i].ID == hits[0].ID {
			return &entries[i], true
		}
	}
	return nil, false
}

// Search ranks entries against query. limit <= 0 uses MaxResults.
// Entries scoring below MinScore are never returned, so an unrelated
// query yields an empty slice.
func (b *Base) Search(query string, limit int) []Hit {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = b.opts.MaxResults
	}

	words := uniqueWords(query)
	groups := matchingGroups(words)

	var hits []Hit
	for _, e := range b.Entries() {
		score := relevance(query, words, e) + semanticBonus(groups, e)
		if score < b.opts.MinScore {
			continue
		}
		hits = append(hits, Hit{
			ID:      e.ID,
			Topic:   e.Topic,
			Title:   e.Title,
			Excerpt: excerpt(e.Content, words, 240),
			Score:   score,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		set[w] = true
	}
	return set
}

func uniqueWords(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range wordRe.FindAllString(s, -1) {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

func relevance(query string, words []string, e Entry) float64 {
	title := wordSet(e.Title)
	topic := wordSet(e.Topic)
	content := wordSet(e.Content)
	lowerContent := strings.ToLower(e.Content)

	score := 0.0
	for _, w := range words {
		switch {
		case title[w]:
			score += 10
		case len(w) >= 5 && fuzzyMember(w, title):
			// Tolerate a single typo against title words.
			score += 5
		}
		if topic[w] {
			score += 8
		}
		for _, tag := range e.Tags {
			if wordSet(tag)[w] {
				score += 6
			}
		}
		if content[w] {
			score += 2
		}
	}
	for _, kw := range e.Keywords {
		for _, w := range words {
			if strings.Contains(kw, w) {
				score += 4
				break
			}
		}
	}
	if strings.Contains(lowerContent, query) {
		score += 15
	}
	parts := strings.Fields(query)
	for i := 0; i+1 < len(parts); i++ {
		if strings.Contains(lowerContent, parts[i]+" "+parts[i+1]) {
			score += 8
		}
	}
	return score
}

func fuzzyMember(w string, set map[string]bool) bool {
	for candidate := range set {
		if len(candidate) >= 5 && fuzzy.LevenshteinDistance(w, candidate) == 1 {
			return true
		}
	}
	return false
}

var semanticGroups = map[string][]string{
	"coffee_quality":    {"quality", "excellent", "premium", "specialty", "artisan", "gourmet", "taste", "flavor", "aroma"},
	"operations":        {"operations", "efficiency", "workflow", "process", "management", "optimization", "productivity"},
	"sales_revenue":     {"sales", "revenue", "profit", "pricing", "upselling", "margin", "earnings", "growth", "increase"},
	"customer_service":  {"customer", "service", "experience", "satisfaction", "loyalty", "retention", "support"},
	"equipment":         {"equipment", "machine", "espresso", "grinder", "brewer", "maintenance", "calibration", "technical"},
	"menu_design":       {"menu", "design", "layout", "psychology", "pricing", "presentation", "visual"},
	"training":          {"training", "education", "learning", "teaching", "barista", "staff", "skills"},
	"branding":          {"brand", "branding", "marketing", "identity", "promotion"},
	"roasting":          {"roasting", "roast", "processing", "beans", "origins", "farm"},
	"storage_freshness": {"storage", "freshness", "preservation", "timing", "temperature"},
}

func matchingGroups(words []string) []string {
	var out []string
	for name, keywords := range semanticGroups {
		for _, kw := range keywords {
			if contains(words, kw) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// semanticBonus rewards entries that share vocabulary with the query's
// domain groups even when the exact words differ.
func semanticBonus(groups []string, e Entry) float64 {
	if len(groups) == 0 {
		return 0
	}
	text := strings.ToLower(e.Title + " " + e.Topic + " " + strings.Join(e.Tags, " ") + " " + e.Content)
	bonus := 0.0
	for _, g := range groups {
		for _, kw := range semanticGroups[g] {
			if strings.Contains(text, kw) {
				bonus += 2
			}
		}
	}
	return bonus
}

func excerpt(content string, words []string, width int) string {
	flat := strings.Join(strings.Fields(content), " ")
	if len(flat) <= width {
		return flat
	}
	lower := strings.ToLower(flat)
	at := -1
	for _, w := range words {
		if i := strings.Index(lower, w); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	start := 0
	if at > width/3 {
		start = at - width/3
	}
	end := start + width
	if end > len(flat) {
		end = len(flat)
		start = end - width
	}
	out := flat[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(flat) {
		out += "..."
	}
	return out
}

type frontmatter struct {
	Title string   `yaml:"title"`
	Topic string   `yaml:"topic"`
	Tags  []string `yaml:"tags"`
}

func loadDir(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read knowledge dir: %w", err)
	}
	var entries []Entry
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name()))
		if f.IsDir() || (ext != ".md" && ext != ".mdx") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name(), err)
		}
		e, err := Parse(strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())), data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name(), err)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// Parse builds an entry from a document with optional frontmatter. The
// title falls back to id.
func Parse(id string, data []byte) (Entry, error) {
	var fm frontmatter
	body := data
	if rest, ok := bytes.CutPrefix(data, []byte("---")); ok {
		if end := bytes.Index(rest, []byte("\n---")); end >= 0 {
			if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
				return Entry{}, fmt.Errorf("frontmatter: %w", err)
			}
			body = rest[end+len("\n---"):]
		}
	}
	e := Entry{
		ID:      id,
		Title:   strings.TrimSpace(fm.Title),
		Topic:   strings.TrimSpace(fm.Topic),
		Tags:    fm.Tags,
		Content: strings.TrimSpace(string(body)),
	}
	if e.Title == "" {
		e.Title = id
	}
	e.Keywords = keywords(e, 20)
	return e, nil
}

var stopWords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true, "are": true, "was": true,
	"were": true, "been": true, "being": true, "have": true, "has": true, "had": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true, "may": true, "might": true,
	"must": true, "can": true, "this": true, "that": true, "these": true, "those": true, "you": true,
	"she": true, "they": true, "him": true, "her": true, "them": true, "your": true, "his": true,
	"its": true, "our": true, "their": true, "from": true, "into": true, "not": true,
}

func keywords(e Entry, n int) []string {
	counts := make(map[string]int)
	text := strings.ToLower(e.Title + " " + e.Topic + " " + strings.Join(e.Tags, " ") + " " + e.Content)
	for _, w := range wordRe.FindAllString(text, -1) {
		if len(w) > 2 && !stopWords[w] {
			counts[w]++
		}
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
