// Package moderation masks censored words in relayed user text before it is
// persisted or forwarded to the facilitator.
package moderation

import (
	"bufio"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

//go:embed words/*.txt
var wordsFS embed.FS

// Moderator runs an Aho-Corasick scan over lowercased input and masks every
// match with the replacement rune. Word lists are embedded per language.
type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// New builds the automaton from the embedded word lists.
func New(replacement rune) (*Moderator, error) {
	words, err := loadEmbeddedWords()
	if err != nil {
		return nil, err
	}
	return NewFromWords(words, replacement)
}

// NewFromWords builds the automaton from an explicit list.
func NewFromWords(words []string, replacement rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		patterns = append(patterns, []rune(w))
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no censored words loaded")
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, replacement: replacement}, nil
}

// Censor masks every forbidden span, preserving length and casing of the
// surrounding text.
func (m *Moderator) Censor(original string) string {
	if original == "" {
		return original
	}
	runes := []rune(original)
	lowered := make([]rune, len(runes))
	for i, r := range runes {
		lowered[i] = unicode.ToLower(r)
	}

	spans := m.matcher.MultiPatternSearch(lowered, false)
	if len(spans) == 0 {
		return original
	}
	for _, span := range spans {
		for i := span.Pos; i < span.Pos+len(span.Word) && i < len(runes); i++ {
			runes[i] = m.replacement
		}
	}
	return string(runes)
}

func loadEmbeddedWords() ([]string, error) {
	var words []string
	err := fs.WalkDir(wordsFS, "words", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		f, err := wordsFS.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				words = append(words, line)
			}
		}
		return scanner.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load censored words: %w", err)
	}
	return words, nil
}
