// Package chatbot resolves visitor text to canned responses.
package chatbot

import (
	"regexp"
	"strings"

	"nesturechat/internal/models"
)

// Intent is what the visitor asked for.
type Intent int

const (
	IntentTopic Intent = iota
	IntentGreeting
	IntentClear
	IntentSettings
)

func (i Intent) String() string {
	switch i {
	case IntentGreeting:
		return "greeting"
	case IntentClear:
		return "clear"
	case IntentSettings:
		return "settings"
	default:
		return "topic"
	}
}

// DefaultTopic is the menu response used for unmatched input and the first greeting.
const DefaultTopic = "default"

// Rule maps a predicate over lower-cased input to a response topic.
type Rule struct {
	Match func(lower string) bool
	Topic string
}

// Keyword builds a substring rule.
func Keyword(keyword, topic string) Rule {
	return Rule{
		Match: func(lower string) bool { return strings.Contains(lower, keyword) },
		Topic: topic,
	}
}

// DefaultRules is the keyword table; earlier rules win.
func DefaultRules() []Rule {
	return []Rule{
		Keyword("service", "services"),
		Keyword("price", "pricing"),
		Keyword("cost", "pricing"),
		Keyword("book", "booking"),
		Keyword("meet", "booking"),
		Keyword("schedule", "booking"),
		Keyword("contact", "contact"),
		Keyword("support", "contact"),
		Keyword("about", "about"),
		Keyword("company", "about"),
		Keyword("team", "team"),
		Keyword("people", "team"),
		Keyword("portfolio", "portfolio"),
		Keyword("work", "portfolio"),
		Keyword("project", "portfolio"),
		Keyword("testimonial", "testimonials"),
		Keyword("review", "testimonials"),
		Keyword("faq", "faq"),
		Keyword("help", "faq"),
		Keyword("case", "casestudies"),
		Keyword("study", "casestudies"),
		Keyword("stat", "stats"),
		Keyword("metric", "stats"),
		Keyword("tech", "techstack"),
		Keyword("stack", "techstack"),
		Keyword("technology", "techstack"),
	}
}

var (
	greetingPattern = regexp.MustCompile(`\b(hello|hi|hey|greetings)\b`)
	clearPattern    = regexp.MustCompile(`\b(clear|reset|start over)\b`)
	settingsPattern = regexp.MustCompile(`\b(setting|settings|config|preference|preferences)\b`)
)

// Reply is the resolved answer for one visitor message.
type Reply struct {
	Intent  Intent
	Topic   string
	Content string
}

// Responder holds the canned responses, the rule table and the quick-reply catalog.
type Responder struct {
	company   Company
	rules     []Rule
	responses map[string]string
	replies   []models.QuickReply
}

// NewResponder builds a responder for company. A nil rules slice uses DefaultRules.
func NewResponder(company Company, rules []Rule) *Responder {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Responder{
		company:   company,
		rules:     rules,
		responses: buildResponses(company),
		replies:   DefaultQuickReplies(),
	}
}

// Resolve maps visitor text to a reply. Intents are checked before keywords.
func (r *Responder) Resolve(text string) Reply {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch {
	case greetingPattern.MatchString(lower):
		return Reply{Intent: IntentGreeting, Topic: "greeting", Content: r.greeting()}
	case clearPattern.MatchString(lower):
		return Reply{Intent: IntentClear}
	case settingsPattern.MatchString(lower):
		return Reply{Intent: IntentSettings, Content: "Opening settings panel..."}
	}
	topic := r.Topic(lower)
	return Reply{Intent: IntentTopic, Topic: topic, Content: r.Response(topic)}
}

// Topic runs the keyword table only.
func (r *Responder) Topic(lower string) string {
	for _, rule := range r.rules {
		if rule.Match(lower) {
			return rule.Topic
		}
	}
	return DefaultTopic
}

// Response returns the canned text for topic, falling back to the menu.
func (r *Responder) Response(topic string) string {
	if content, ok := r.responses[topic]; ok {
		return content
	}
	return r.responses[DefaultTopic]
}

// Welcome is the menu shown when the widget is first opened.
func (r *Responder) Welcome() string {
	return r.responses[DefaultTopic]
}

// ClearConfirmation is appended after the history is wiped.
func (r *Responder) ClearConfirmation() string {
	return "Chat history cleared! 🧹 Ready for a fresh start. How can I assist you today?"
}

// CompanyName is used as the notification title.
func (r *Responder) CompanyName() string {
	return r.company.Name
}

// QuickReplies returns a copy of the catalog.
func (r *Responder) QuickReplies() []models.QuickReply {
	return append([]models.QuickReply(nil), r.replies...)
}

// QuickReply looks up a catalog entry by id.
func (r *Responder) QuickReply(id string) (models.QuickReply, bool) {
	for _, reply := range r.replies {
		if reply.ID == id {
			return reply, true
		}
	}
	return models.QuickReply{}, false
}

func (r *Responder) greeting() string {
	return "Hello! 👋 I'm the assistant for " + r.company.Name +
		". I support voice commands, file uploads, and real-time features!\n\nHow can I help you today?"
}
