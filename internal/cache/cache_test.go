package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/myrjola/coachline/internal/cache"
	"github.com/myrjola/coachline/internal/classifier"
	"github.com/myrjola/coachline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *clock {
	return &clock{mu: sync.Mutex{}, now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func reply(text string) *models.BaseResponse {
	return &models.BaseResponse{AIResponseText: text, SuggestedReplies: nil}
}

var profile = models.Profile{Niche: "yoga", Experience: "beginner", Discovery: models.NewDiscoveryState()}

func TestCache_SetThenGet(t *testing.T) {
	clk := newClock()
	c := cache.New(cache.WithClock(clk.Now))
	resp := reply("hello")

	require.True(t, c.Set("how do I grow", nil, profile, resp))
	got, ok := c.Get("how do I grow", nil, profile)
	require.True(t, ok)
	require.Same(t, resp, got)

	clk.Advance(30 * time.Minute)
	_, ok = c.Get("how do I grow", nil, profile)
	require.True(t, ok, "entries are fresh up to the TTL")

	clk.Advance(time.Second)
	_, ok = c.Get("how do I grow", nil, profile)
	require.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_KeywordOrderDoesNotMatter(t *testing.T) {
	c := cache.New()
	resp := reply("hello")
	require.True(t, c.Set("grow email list", nil, profile, resp))
	got, ok := c.Get("list email grow", nil, profile)
	require.True(t, ok)
	assert.Same(t, resp, got)
}

// brokenResponse fails while producing its text.
type brokenResponse struct{}

func (brokenResponse) Kind() models.ResponseKind { return models.ResponseKindBase }
func (brokenResponse) Text() string              { panic("text unavailable") }

func TestCache_BrokenResponseIsAMiss(t *testing.T) {
	c := cache.New()

	require.NotPanics(t, func() {
		assert.False(t, c.Set("How do I grow my email list?", nil, profile, brokenResponse{}))
	})
	assert.Zero(t, c.Len())

	_, ok := c.Get("How do I grow my email list?", nil, profile)
	assert.False(t, ok)
}

func TestCache_PrivacyGuard(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "email", text: "reach me at a@b.com"},
		{name: "phone", text: "call 5551234567 today"},
		{name: "card", text: "pay with 4111 1111 1111 1111"},
		{name: "card dashes", text: "pay with 4111-1111-1111-1111"},
		{name: "empty", text: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cache.New()
			assert.False(t, c.Set("contact", nil, profile, reply(tt.text)))
			_, ok := c.Get("contact", nil, profile)
			assert.False(t, ok)
		})
	}

	t.Run("nil response", func(t *testing.T) {
		c := cache.New()
		assert.False(t, c.Set("contact", nil, profile, nil))
		var typedNil *models.BaseResponse
		assert.False(t, c.Set("contact", nil, profile, typedNil))
	})

	t.Run("short numbers are fine", func(t *testing.T) {
		c := cache.New()
		assert.True(t, c.Set("pricing", nil, profile, reply("charge 199 for 3 sessions")))
	})
}

func TestCache_EvictsOldestInserted(t *testing.T) {
	c := cache.New()
	for i := range cache.DefaultMaxSize {
		require.True(t, c.Set(fmt.Sprintf("topic%d", i), nil, profile, reply("ok")))
	}
	// Reading the first entry does not protect it from eviction.
	_, ok := c.Get("topic0", nil, profile)
	require.True(t, ok)

	require.True(t, c.Set("topic100", nil, profile, reply("ok")))
	assert.Equal(t, cache.DefaultMaxSize, c.Len())
	_, ok = c.Get("topic0", nil, profile)
	assert.False(t, ok)
	for i := 1; i <= 100; i++ {
		_, ok = c.Get(fmt.Sprintf("topic%d", i), nil, profile)
		assert.True(t, ok, "topic%d", i)
	}
}

func TestCache_Options(t *testing.T) {
	clk := newClock()
	c := cache.New(cache.WithClock(clk.Now), cache.WithMaxSize(2), cache.WithTTL(time.Minute))
	require.True(t, c.Set("alpha", nil, profile, reply("a")))
	require.True(t, c.Set("beta", nil, profile, reply("b")))
	require.True(t, c.Set("alpha", nil, profile, reply("a2")))
	require.True(t, c.Set("gamma", nil, profile, reply("c")))

	// Re-setting alpha made beta the oldest entry.
	_, ok := c.Get("beta", nil, profile)
	assert.False(t, ok)
	got, ok := c.Get("alpha", nil, profile)
	require.True(t, ok)
	assert.Equal(t, "a2", got.Text())

	clk.Advance(2 * time.Minute)
	_, ok = c.Get("gamma", nil, profile)
	assert.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	creation := classifier.Classify("Can you build me a course on yoga breathing", nil)
	existing := classifier.Classify("What modules does this course have", nil)
	assert.NotEqual(t, cache.Fingerprint(creation, profile), cache.Fingerprint(existing, profile))

	t.Run("flags alone separate entries", func(t *testing.T) {
		a := classifier.Descriptor{Keywords: []string{"course"}, Intent: classifier.IntentCourse, RecentTopics: nil,
			IsQuestionAboutExisting: true, CourseCreationIntent: false}
		b := a
		b.IsQuestionAboutExisting = false
		b.CourseCreationIntent = true
		assert.NotEqual(t, cache.Fingerprint(a, profile), cache.Fingerprint(b, profile))
	})

	t.Run("profile defaults", func(t *testing.T) {
		d := classifier.Classify("hello", nil)
		empty := models.Profile{Niche: "", Experience: "", Discovery: models.NewDiscoveryState()}
		defaults := models.Profile{Niche: "general", Experience: "beginner", Discovery: models.NewDiscoveryState()}
		assert.Equal(t, cache.Fingerprint(d, defaults), cache.Fingerprint(d, empty))
		assert.NotEqual(t, cache.Fingerprint(d, profile), cache.Fingerprint(d, empty))
	})

	t.Run("history topics matter", func(t *testing.T) {
		history := []models.Message{{ID: "1", ConversationID: "c", Text: "a coupon", Sender: models.SenderUser,
			CreatedDate: "", Metadata: nil}}
		assert.NotEqual(t,
			cache.Fingerprint(classifier.Classify("thanks", nil), profile),
			cache.Fingerprint(classifier.Classify("thanks", history), profile))
	})
}
