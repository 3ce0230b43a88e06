// Package classifier derives a descriptor of what a user message is about.
//
// The descriptor selects the structured response schema requested from the language model and feeds the
// response cache fingerprint.
package classifier

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/myrjola/coachline/internal/models"
)

// Intent is the coarse topic of a message.
type Intent string

const (
	IntentCourse   Intent = "course"
	IntentWorkshop Intent = "workshop"
	IntentService  Intent = "service"
	IntentCoupon   Intent = "coupon"
	IntentPost     Intent = "post"
	IntentGeneral  Intent = "general"
)

const (
	maxKeywords   = 10
	intentHistory = 5
	topicsHistory = 3
)

// Descriptor is derived from a message and recent history. It is never persisted.
type Descriptor struct {
	Keywords     []string `json:"keywords"`
	Intent       Intent   `json:"intent"`
	RecentTopics []Intent `json:"recentTopics"`
	// IsQuestionAboutExisting is set for questions about a course or module that already exists.
	IsQuestionAboutExisting bool `json:"isQuestionAboutExisting"`
	// CourseCreationIntent is set for explicit requests to create a course.
	CourseCreationIntent bool `json:"courseCreationIntent"`
}

type intentPattern struct {
	intent Intent
	re     *regexp.Regexp
}

// intentPatterns are tested in priority order.
var intentPatterns = []intentPattern{ //nolint:gochecknoglobals // compiled once.
	{IntentCourse, regexp.MustCompile(`\b(course|courses|curriculum|module|modules|lesson|lessons|syllabus)\b`)},
	{IntentWorkshop, regexp.MustCompile(`\b(workshop|workshops|webinar|masterclass|live session|bootcamp)\b`)},
	{IntentService, regexp.MustCompile(`\b(service|services|coaching package|consulting|consultation|1:1|one[- ]on[- ]one|retainer)\b`)},
	{IntentCoupon, regexp.MustCompile(`\b(coupon|coupons|discount|promo code|promotion|voucher|sale)\b`)},
	{IntentPost, regexp.MustCompile(`\b(post|posts|caption|tweet|instagram|linkedin|facebook|newsletter|social media)\b`)},
}

var (
	existingQuestionPattern = regexp.MustCompile( //nolint:gochecknoglobals // compiled once.
		`^(what|which|how many|how long|does|do|is|are|can you (tell|explain|describe))\b.*\b(course|module|modules|lesson|lessons|it|this|that)\b`)
	creationPattern = regexp.MustCompile( //nolint:gochecknoglobals // compiled once.
		`\b(create|build|make|design|generate|draft|outline|write|put together|develop)\b.*\bcourses?\b`)
)

var stopWords = map[string]bool{ //nolint:gochecknoglobals // read-only table.
	"a": true, "about": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"but": true, "by": true, "can": true, "could": true, "do": true, "does": true, "for": true, "from": true,
	"have": true, "how": true, "i": true, "in": true, "is": true, "it": true, "me": true, "my": true,
	"of": true, "on": true, "or": true, "please": true, "should": true, "so": true, "that": true, "the": true,
	"this": true, "to": true, "want": true, "was": true, "we": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "will": true, "with": true, "would": true, "you": true,
	"your": true,
}

// Classify derives the descriptor for message given the preceding history, oldest first.
func Classify(message string, history []models.Message) Descriptor {
	lower := strings.ToLower(strings.TrimSpace(message))

	intentText := lower
	for _, m := range tail(history, intentHistory) {
		intentText += "\n" + strings.ToLower(m.Text)
	}

	topics := make([]Intent, 0, topicsHistory)
	for _, m := range tail(history, topicsHistory) {
		topics = append(topics, intentOf(strings.ToLower(m.Text)))
	}

	return Descriptor{
		Keywords:                Keywords(lower),
		Intent:                  intentOf(intentText),
		RecentTopics:            topics,
		IsQuestionAboutExisting: existingQuestionPattern.MatchString(lower),
		CourseCreationIntent:    creationPattern.MatchString(lower),
	}
}

// Keywords returns the first lower-cased tokens of text that are not stop words.
func Keywords(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	keywords := make([]string, 0, maxKeywords)
	for _, token := range tokens {
		if stopWords[token] {
			continue
		}
		keywords = append(keywords, token)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

func intentOf(text string) Intent {
	for _, p := range intentPatterns {
		if p.re.MatchString(text) {
			return p.intent
		}
	}
	return IntentGeneral
}

func tail(history []models.Message, n int) []models.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// SchemaFor selects the response kind to request for d.
func SchemaFor(d Descriptor) models.ResponseKind {
	switch {
	case d.IsQuestionAboutExisting:
		return models.ResponseKindBase
	case d.CourseCreationIntent:
		return models.ResponseKindCourse
	}
	switch d.Intent {
	case IntentCourse:
		return models.ResponseKindCourse
	case IntentWorkshop:
		return models.ResponseKindWorkshop
	case IntentService:
		return models.ResponseKindService
	case IntentCoupon:
		return models.ResponseKindCoupon
	case IntentPost:
		return models.ResponseKindPost
	case IntentGeneral:
		return models.ResponseKindBase
	default:
		return models.ResponseKindBase
	}
}
