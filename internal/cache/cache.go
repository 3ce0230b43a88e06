// Package cache holds structured language-model responses keyed by a fingerprint of the request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/myrjola/coachline/internal/classifier"
	"github.com/myrjola/coachline/internal/models"
)

const (
	DefaultMaxSize = 100
	DefaultTTL     = 30 * time.Minute

	defaultNiche      = "general"
	defaultExperience = "beginner"
)

var sensitivePatterns = []*regexp.Regexp{ //nolint:gochecknoglobals // compiled once.
	// Phone-like.
	regexp.MustCompile(`\d{10,}`),
	// Email address.
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	// Card-number-like: 12 to 19 digits optionally grouped by spaces or dashes.
	regexp.MustCompile(`\b\d(?:[ -]?\d){11,18}\b`),
}

// Entry is a cached response.
type Entry struct {
	Fingerprint string
	Response    models.Response
	Timestamp   time.Time
}

// Cache is a bounded, time-expiring response cache. Eviction follows insertion order.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
	// order lists fingerprints from oldest to newest insertion.
	order []string

	now     func() time.Time
	maxSize int
	ttl     time.Duration
	logger  *slog.Logger
}

type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithMaxSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		mu:      sync.Mutex{},
		entries: map[string]Entry{},
		order:   nil,
		now:     time.Now,
		maxSize: DefaultMaxSize,
		ttl:     DefaultTTL,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("source", "cache.Cache"))
	return c
}

type fingerprintInput struct {
	Keywords     []string            `json:"keywords"`
	Intent       classifier.Intent   `json:"intent"`
	Niche        string              `json:"niche"`
	Experience   string              `json:"experience"`
	RecentTopics []classifier.Intent `json:"recentTopics"`
	Existing     bool                `json:"existing"`
	Creation     bool                `json:"creation"`
}

// Fingerprint computes the cache key for a request. Keyword order does not matter.
func Fingerprint(d classifier.Descriptor, profile models.Profile) string {
	in := fingerprintInput{
		Keywords:     slices.Sorted(slices.Values(d.Keywords)),
		Intent:       d.Intent,
		Niche:        profile.Niche,
		Experience:   profile.Experience,
		RecentTopics: d.RecentTopics,
		Existing:     d.IsQuestionAboutExisting,
		Creation:     d.CourseCreationIntent,
	}
	if in.Niche == "" {
		in.Niche = defaultNiche
	}
	if in.Experience == "" {
		in.Experience = defaultExperience
	}
	canonical, err := json.Marshal(in)
	if err != nil {
		// Unreachable for this input type; fall back to a formatted rendering.
		canonical = []byte(fmt.Sprintf("%v", in))
	}
	return hash(string(canonical))
}

// hash is a 32-bit rolling string hash rendered in base 36.
func hash(s string) string {
	var h uint32
	for _, r := range s {
		h = h*31 + uint32(r) //nolint:gosec // runes are non-negative.
	}
	return strconv.FormatUint(uint64(h), 36) //nolint:mnd // base 36.
}

// fingerprint classifies the request and reports false if anything goes wrong.
func (c *Cache) fingerprint(message string, history []models.Message, profile models.Profile) (fp string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.LogAttrs(context.Background(), slog.LevelWarn, "fingerprint failed, skipping cache",
				slog.Any("panic", r))
			fp, ok = "", false
		}
	}()
	return Fingerprint(classifier.Classify(message, history), profile), true
}

// Get returns the cached response for the request, evicting it if it has expired.
func (c *Cache) Get(message string, history []models.Message, profile models.Profile) (models.Response, bool) {
	fp, ok := c.fingerprint(message, history, profile)
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, found := c.entries[fp]
	if !found {
		return nil, false
	}
	if c.now().Sub(entry.Timestamp) > c.ttl {
		c.remove(fp)
		return nil, false
	}
	return entry.Response, true
}

// Set stores resp for the request unless its text is missing or looks sensitive. It reports whether the
// response was stored.
func (c *Cache) Set(message string, history []models.Message, profile models.Profile, resp models.Response) bool {
	text, ok := responseText(resp)
	if !ok || text == "" || sensitive(text) {
		return false
	}
	fp, ok := c.fingerprint(message, history, profile)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[fp]; exists {
		c.remove(fp)
	} else if len(c.entries) >= c.maxSize && len(c.order) > 0 {
		c.remove(c.order[0])
	}
	c.entries[fp] = Entry{Fingerprint: fp, Response: resp, Timestamp: c.now()}
	c.order = append(c.order, fp)
	return true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove must be called with mu held.
func (c *Cache) remove(fp string) {
	delete(c.entries, fp)
	if i := slices.Index(c.order, fp); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

func responseText(resp models.Response) (text string, ok bool) {
	if resp == nil {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()
	return resp.Text(), true
}

func sensitive(text string) bool {
	for _, re := range sensitivePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
