package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// defaultShortcodes is the built-in table used until Load or Set change it
var defaultShortcodes = map[string]string{
	"smile":            "😀",
	"grin":             "😁",
	"joy":              "😂",
	"wink":             "😉",
	"heart_eyes":       "😍",
	"sunglasses":       "😎",
	"thinking":         "🤔",
	"cry":              "😢",
	"fire":             "🔥",
	"heart":            "❤️",
	"thumbsup":         "👍",
	"+1":               "👍",
	"thumbsdown":       "👎",
	"-1":               "👎",
	"clap":             "👏",
	"pray":             "🙏",
	"wave":             "👋",
	"tada":             "🎉",
	"100":              "💯",
	"musical_note":     "🎵",
	"notes":            "🎶",
	"headphones":       "🎧",
	"microphone":       "🎤",
	"guitar":           "🎸",
	"musical_keyboard": "🎹",
	"drum":             "🥁",
	"rocket":           "🚀",
	"eyes":             "👀",
}

// Shortcodes maps shortcode names (without colons) to the symbols they stand
// for. Names are case-insensitive. A Shortcodes is safe for concurrent use.
type Shortcodes struct {
	mu    sync.RWMutex
	codes map[string]string
}

// NewShortcodes returns a table holding the default set
func NewShortcodes() *Shortcodes {
	s := &Shortcodes{}
	s.Reset()
	return s
}

// Lookup returns the symbol for name
func (s *Shortcodes) Lookup(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	symbol, ok := s.codes[strings.ToLower(name)]
	return symbol, ok
}

// Set adds or replaces one entry
func (s *Shortcodes) Set(name, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[strings.ToLower(name)] = symbol
}

// Len returns the number of known shortcodes
func (s *Shortcodes) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codes)
}

// Load merges the [shortcodes] table of a TOML file over the current entries:
//
//	[shortcodes]
//	smile = "😀"
//	party = "🥳"
func (s *Shortcodes) Load(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read shortcodes file: %w", err)
	}

	codes := v.GetStringMapString("shortcodes")
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, symbol := range codes {
		if symbol == "" {
			continue
		}
		s.codes[strings.ToLower(name)] = symbol
	}
	return nil
}

// Reset restores the default set
func (s *Shortcodes) Reset() {
	codes := make(map[string]string, len(defaultShortcodes))
	for name, symbol := range defaultShortcodes {
		codes[name] = symbol
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = codes
}
