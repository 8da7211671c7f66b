// Package render turns raw message text into markup that is safe to display.
//
// Render runs a fixed pipeline: shortcode substitution, HTML escaping,
// line-break normalization, emoji expansion into image references and a
// final allow-list sanitization. Because substitution happens before
// escaping, a shortcode table can never inject markup.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rivo/uniseg"
	"github.com/zfogg/sidechain/chat/pkg/config"
)

// DefaultEmojiBaseURL serves one SVG per emoji, named by code points
const DefaultEmojiBaseURL = "https://cdn.jsdelivr.net/gh/jdecked/twemoji@latest/assets/svg/"

var shortcodePattern = regexp.MustCompile(`(?i):[a-z0-9_+-]+:`)

// Ampersand first so entities produced here are not escaped again.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&#34;",
	"'", "&#39;",
)

// Options control a single Render call
type Options struct {
	// PreserveLineBreaks renders line breaks as <br>; otherwise each becomes a space.
	PreserveLineBreaks bool
}

// Renderer is safe for concurrent use
type Renderer struct {
	shortcodes   *Shortcodes
	emojiBaseURL string
	policy       *bluemonday.Policy
}

// NewRenderer creates a renderer. A nil table means the default set; an
// empty base URL means DefaultEmojiBaseURL.
func NewRenderer(shortcodes *Shortcodes, emojiBaseURL string) *Renderer {
	if shortcodes == nil {
		shortcodes = NewShortcodes()
	}
	if emojiBaseURL == "" {
		emojiBaseURL = DefaultEmojiBaseURL
	}
	if !strings.HasSuffix(emojiBaseURL, "/") {
		emojiBaseURL += "/"
	}
	return &Renderer{
		shortcodes:   shortcodes,
		emojiBaseURL: emojiBaseURL,
		policy:       newPolicy(),
	}
}

// FromConfig builds a renderer from render.emoji_base_url and
// render.shortcodes_file.
func FromConfig() (*Renderer, error) {
	shortcodes := NewShortcodes()
	if path := config.GetString("render.shortcodes_file"); path != "" {
		if err := shortcodes.Load(path); err != nil {
			return nil, err
		}
	}
	return NewRenderer(shortcodes, config.GetString("render.emoji_base_url")), nil
}

// Shortcodes returns the renderer's shortcode table
func (r *Renderer) Shortcodes() *Shortcodes {
	return r.shortcodes
}

// Render converts raw message text to sanitized markup. It is meant to be
// applied once to raw text; rendering its own output escapes it again.
func (r *Renderer) Render(text string, opts Options) string {
	out := r.substituteShortcodes(text)
	out = escaper.Replace(out)
	out = normalizeLineBreaks(out, opts.PreserveLineBreaks)
	out = r.expandEmoji(out)
	return r.policy.Sanitize(out)
}

func (r *Renderer) substituteShortcodes(text string) string {
	return shortcodePattern.ReplaceAllStringFunc(text, func(token string) string {
		if symbol, ok := r.shortcodes.Lookup(token[1 : len(token)-1]); ok {
			return symbol
		}
		return token
	})
}

func normalizeLineBreaks(text string, preserve bool) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if preserve {
		return strings.ReplaceAll(text, "\n", "<br>")
	}
	return strings.ReplaceAll(text, "\n", " ")
}

// expandEmoji replaces every emoji grapheme cluster with an image reference.
// Clusters keep modifiers and ZWJ sequences together.
func (r *Renderer) expandEmoji(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))

	g := uniseg.NewGraphemes(text)
	for g.Next() {
		cluster := g.Str()
		runes := g.Runes()
		if !isEmoji(runes) {
			sb.WriteString(cluster)
			continue
		}
		fmt.Fprintf(&sb, `<img class="emoji" draggable="false" loading="lazy" alt="%s" src="%s%s.svg">`,
			cluster, r.emojiBaseURL, codepoints(runes))
	}
	return sb.String()
}

func isEmoji(runes []rune) bool {
	first := runes[0]
	switch {
	case first >= 0x1F000 && first <= 0x1FAFF:
		return true
	case first >= 0x2600 && first <= 0x27BF:
		return true
	case first >= 0x2B00 && first <= 0x2BFF:
		return true
	}
	if isKeycapBase(first) {
		return len(runes) > 1 && runes[len(runes)-1] == 0x20E3
	}
	// Emoji presentation only turns non-ASCII symbols into emoji; an ASCII
	// base, such as the ";" of an escaped entity, stays text.
	if first < 0x80 {
		return false
	}
	for _, r := range runes[1:] {
		if r == 0xFE0F || r == 0x20E3 {
			return true
		}
	}
	return false
}

func isKeycapBase(r rune) bool {
	return (r >= '0' && r <= '9') || r == '#' || r == '*'
}

// codepoints names an emoji file: lowercase hex code points joined by "-".
// The presentation selector is dropped unless the sequence uses ZWJ.
func codepoints(runes []rune) string {
	zwj := false
	for _, r := range runes {
		if r == 0x200D {
			zwj = true
			break
		}
	}

	parts := make([]string, 0, len(runes))
	for _, r := range runes {
		if r == 0xFE0F && !zwj {
			continue
		}
		parts = append(parts, fmt.Sprintf("%x", r))
	}
	return strings.Join(parts, "-")
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("br", "span")
	p.AllowAttrs("class", "aria-label", "role").OnElements("span")
	p.AllowAttrs("class", "src", "alt", "width", "height", "aria-label", "role", "loading", "draggable").
		OnElements("img")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("https", "http")
	return p
}
