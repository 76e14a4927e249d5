package util

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
)

// Mention is a parsed @user or @user@domain reference.
type Mention struct {
	Handle string
	Domain string // empty for local mentions
}

func (m Mention) String() string {
	if m.Domain == "" {
		return "@" + m.Handle
	}
	return fmt.Sprintf("@%s@%s", m.Handle, m.Domain)
}

var (
	mentionRe = regexp.MustCompile(`@([A-Za-z0-9_-]+)(?:@([A-Za-z0-9][A-Za-z0-9.-]*\.[A-Za-z]{2,}))?`)

	// Go has no lookbehind, so the preceding character is captured instead
	// and re-emitted on substitution.
	hashtagRe = regexp.MustCompile(`(^|[^0-9A-Za-z_])#([A-Za-z0-9_]+)`)
)

// ParseMentions extracts @user and @user@domain mentions in order of first
// occurrence. Duplicates (case-insensitive) are dropped.
func ParseMentions(text string) []Mention {
	var mentions []Mention
	seen := make(map[string]bool)

	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		mention := Mention{Handle: m[1], Domain: m[2]}
		key := strings.ToLower(mention.String())
		if seen[key] {
			continue
		}
		seen[key] = true
		mentions = append(mentions, mention)
	}

	return mentions
}

// ParseHashtags extracts #tag tokens in order of first occurrence,
// de-duplicated case-insensitively and canonicalized to lower case.
func ParseHashtags(text string) []string {
	var tags []string
	seen := make(map[string]bool)

	for _, m := range hashtagRe.FindAllStringSubmatch(text, -1) {
		tag := strings.ToLower(m[2])
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	return tags
}

type textSpan struct {
	start, end int
	repl       string
}

// LinkifyContent replaces @mention and #hashtag occurrences with anchor tags.
// Occurrences inside an existing <a ...>...</a> range are left alone.
// mentionHref and hashtagHref supply the link targets; the visible label is
// the original token.
func LinkifyContent(text string, mentionHref func(Mention) string, hashtagHref func(string) string) string {
	var spans []textSpan

	if mentionHref != nil {
		for _, idx := range mentionRe.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[0], idx[1]
			if insideAnchor(text, start) {
				continue
			}
			m := Mention{Handle: text[idx[2]:idx[3]]}
			if idx[4] >= 0 {
				m.Domain = text[idx[4]:idx[5]]
			}
			label := html.EscapeString(text[start:end])
			href := html.EscapeString(mentionHref(m))
			spans = append(spans, textSpan{start, end,
				fmt.Sprintf(`<a href="%s" class="u-url mention">%s</a>`, href, label)})
		}
	}

	if hashtagHref != nil {
		for _, idx := range hashtagRe.FindAllStringSubmatchIndex(text, -1) {
			// group 2 is the tag, group 1 the preceding character (kept)
			start, end := idx[4]-1, idx[5]
			if insideAnchor(text, start) {
				continue
			}
			tag := text[idx[4]:idx[5]]
			label := html.EscapeString("#" + tag)
			href := html.EscapeString(hashtagHref(tag))
			spans = append(spans, textSpan{start, end,
				fmt.Sprintf(`<a href="%s" class="mention hashtag" rel="tag">%s</a>`, href, label)})
		}
	}

	if len(spans) == 0 {
		return text
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	last := 0
	for _, s := range spans {
		if s.start < last {
			continue
		}
		b.WriteString(text[last:s.start])
		b.WriteString(s.repl)
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String()
}

// insideAnchor reports whether offset falls between an <a ...> open tag and
// its </a>, judged by the most recent tag boundary before the offset.
func insideAnchor(text string, offset int) bool {
	before := strings.ToLower(text[:offset])
	open := strings.LastIndex(before, "<a ")
	if o := strings.LastIndex(before, "<a>"); o > open {
		open = o
	}
	if open < 0 {
		return false
	}
	closing := strings.LastIndex(before, "</a>")
	return closing < open
}
