package daemon

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
)

// Reply generation. Replies are tone-aware and unique per comment, but the
// original comment text is never quoted back verbatim: it is untrusted
// input, so only a small keyword set extracted from it may surface in the
// reply, and even those pass a stoplist and a banned-word filter first.

// CommentContext carries the inputs for drafting one reply.
type CommentContext struct {
	PostID      string
	CommentID   string
	AuthorName  string
	CommentText string
}

// Comment intents, from roughest classification to tone.
const (
	IntentEmpty    = "empty"
	IntentQuestion = "question"
	IntentBug      = "bug"
	IntentPraise   = "praise"
	IntentHostile  = "hostile"
	IntentFeedback = "feedback"
	IntentNeutral  = "neutral"
)

var (
	wordRe = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9_\-]{2,}`)
	urlRe  = regexp.MustCompile(`(?i)https?://\S+`)
)

var keywordStoplist = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"your": true, "youre": true, "about": true, "what": true, "when": true,
	"where": true, "which": true, "would": true, "could": true, "should": true,
	"thanks": true, "thank": true, "nice": true, "cool": true, "good": true,
	"great": true, "bad": true, "lol": true, "lmao": true,
}

// Words that must never be echoed back as a "topic".
var keywordBanned = map[string]bool{
	"stupid": true, "idiot": true, "trash": true, "garbage": true,
	"worst": true, "hate": true, "dumb": true, "shut": true, "kys": true,
}

// NormalizeForHash lowercases and collapses whitespace so that trivially
// reworded duplicates hash the same.
func NormalizeForHash(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	return strings.Join(strings.Fields(t), " ")
}

// ReplyHash is the stable dedupe hash for a reply body.
func ReplyHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeForHash(text)))
	return hex.EncodeToString(sum[:])
}

// RedactURLs replaces links in untrusted text before keyword extraction.
func RedactURLs(text string) string {
	return urlRe.ReplaceAllString(text, "(link omitted)")
}

// ExtractKeywords pulls up to max topical words out of a comment. It is a
// heuristic, not NLP: enough to tailor a reply without echoing the comment.
func ExtractKeywords(text string, max int) []string {
	if text == "" || max <= 0 {
		return nil
	}
	words := wordRe.FindAllString(RedactURLs(text), -1)
	var out []string
	seen := make(map[string]bool)
	for _, w := range words {
		w = strings.ToLower(w)
		if keywordStoplist[w] || keywordBanned[w] || seen[w] || isDigits(w) {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) >= max {
			break
		}
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// ClassifyIntent buckets a comment into one of the Intent constants.
func ClassifyIntent(text string) string {
	t := strings.ToLower(text)
	if strings.TrimSpace(t) == "" {
		return IntentEmpty
	}
	if strings.Contains(t, "?") || containsAny(t, "how do", "how to", "what is", "why", "where", "help") {
		return IntentQuestion
	}
	if containsAny(t, "error", "exception", "crash", "broken", "doesn't work", "doesnt work", "bug") {
		return IntentBug
	}
	if containsAny(t, "love", "awesome", "great", "cool", "nice", "sick", "amazing") {
		return IntentPraise
	}
	if containsAny(t, "stupid", "idiot", "trash", "garbage", "worst", "hate") {
		return IntentHostile
	}
	if containsAny(t, "suggest", "maybe", "consider", "would be nice", "feature") {
		return IntentFeedback
	}
	return IntentNeutral
}

func containsAny(t string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(t, s) {
			return true
		}
	}
	return false
}

// ChooseTone maps an intent to the tone label used in drafting.
func ChooseTone(intent string) string {
	switch intent {
	case IntentHostile:
		return "calm"
	case IntentBug, IntentQuestion:
		return "helpful"
	case IntentPraise:
		return "warm"
	case IntentFeedback:
		return "builder"
	default:
		return "neutral"
	}
}

// stablePick selects one option deterministically from a seed, so the same
// comment always yields the same reply while different comments vary.
func stablePick(options []string, seed string) string {
	if len(options) == 0 {
		return ""
	}
	sum := sha256.Sum256([]byte(seed))
	idx := binary.BigEndian.Uint32(sum[:4]) % uint32(len(options))
	return options[idx]
}

var toneOpeners = map[string][]string{
	"warm": {
		"Thanks %s - appreciate you checking out %s.",
		"Hey %s, glad you're following along with %s.",
	},
	"helpful": {
		"Good callout, %s.",
		"Thanks %s - that's a solid question.",
	},
	"builder": {
		"Fair feedback, %s.",
		"That's helpful input, %s.",
	},
	"calm": {
		"I hear you, %s.",
		"Got it, %s.",
	},
	"neutral": {
		"Thanks %s.",
		"Appreciate it, %s.",
	},
}

// GenerateReply drafts the reply for one comment. The output depends only
// on the context and the project name, so a re-run for the same comment
// produces the same text and the dedupe hash holds.
func GenerateReply(ctx CommentContext, projectName string) string {
	if projectName == "" {
		projectName = "the project"
	}
	intent := ClassifyIntent(ctx.CommentText)
	tone := ChooseTone(intent)
	keywords := ExtractKeywords(ctx.CommentText, 8)

	seed := ctx.CommentText + "\n" + ctx.AuthorName + "\n" + ctx.CommentID
	topic := projectName
	if len(keywords) > 0 {
		topic = keywords[0]
	}

	openers, ok := toneOpeners[tone]
	if !ok {
		openers = toneOpeners["neutral"]
	}
	opener := sprintfOpener(stablePick(openers, seed), ctx.AuthorName, projectName)

	var parts []string
	switch intent {
	case IntentPraise:
		parts = []string{
			opener,
			stablePick([]string{
				"I'm iterating quickly and sharing progress as things land.",
				"I'm polishing the rough edges and posting updates as I go.",
			}, seed+"/mid"),
			stablePick([]string{
				"If there's a feature you want next around `" + topic + "`, tell me.",
				"If you've got a wishlist item, toss it my way.",
			}, seed+"/ask"),
		}
	case IntentQuestion:
		parts = []string{
			opener,
			stablePick([]string{
				"On `" + topic + "`: I'll double-check the repo and share the precise steps.",
				"Re `" + topic + "`: I'll double-check the latest code and answer precisely.",
			}, seed+"/mid"),
			stablePick([]string{
				"What's the end goal you're trying to achieve?",
				"What platform or tooling are you using?",
			}, seed+"/ask"),
		}
	case IntentBug:
		parts = []string{
			opener,
			stablePick([]string{
				"If you can share the minimal repro steps around `" + topic + "`, I can chase it down.",
				"If you can share the exact steps and environment, I can reproduce and patch it.",
			}, seed+"/mid"),
			stablePick([]string{
				"What were you doing right before it happened?",
				"Any error text (sanitized) or a screenshot of the symptom?",
			}, seed+"/ask"),
		}
	case IntentFeedback:
		parts = []string{
			opener,
			stablePick([]string{
				"I can see why `" + topic + "` could feel rough right now.",
				"That's a reasonable ask; the current behavior is a bit raw.",
			}, seed+"/mid"),
			stablePick([]string{
				"If you tell me what good looks like for your workflow, I'll aim for that.",
				"If you have a preferred shape for this, describe it and I'll match it.",
			}, seed+"/ask"),
		}
	case IntentHostile:
		parts = []string{
			opener,
			stablePick([]string{
				"If you've got specific technical feedback, I'm happy to address it.",
				"If you can make it concrete (what failed, what you expected), I can fix it.",
			}, seed+"/mid"),
			stablePick([]string{
				"Either way, I'm going to keep building " + projectName + ".",
				"I'm going to keep iterating and posting updates.",
			}, seed+"/close"),
		}
	case IntentEmpty:
		parts = []string{
			opener,
			stablePick([]string{
				"What were you curious about?",
				"What part should I clarify?",
			}, seed+"/ask"),
		}
	default:
		parts = []string{
			opener,
			stablePick([]string{
				"If you meant `" + topic + "` specifically, tell me what you're aiming for and I'll respond with details.",
				"If there's a specific edge case you care about, I'll prioritize it.",
			}, seed+"/mid"),
		}
	}

	return strings.TrimSpace(strings.Join(parts, " "))
}

// sprintfOpener fills the author/project placeholders. Openers carry at
// most two %s verbs, author first.
func sprintfOpener(tmpl, author, project string) string {
	tmpl = strings.Replace(tmpl, "%s", author, 1)
	return strings.Replace(tmpl, "%s", project, 1)
}
