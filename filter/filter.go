package filter

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultPlaceholder = "사랑해"
	DefaultMaxLength   = 100
)

// Filter rewrites ordinary chat messages: a message containing any listed
// word is replaced as a whole by the placeholder, then truncated.
type Filter struct {
	words       []string
	placeholder string
	maxLength   int
}

func New(words []string, placeholder string, maxLength int) *Filter {
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	list := make([]string, 0, len(words))
	for _, word := range words {
		if word = strings.TrimSpace(word); word != "" {
			list = append(list, word)
		}
	}
	return &Filter{words: list, placeholder: placeholder, maxLength: maxLength}
}

// Apply returns the message to relay and whether a listed word matched.
func (f *Filter) Apply(message string) (string, bool) {
	flagged := false
	for _, word := range f.words {
		if strings.Contains(message, word) {
			message = f.placeholder
			flagged = true
			break
		}
	}
	return Truncate(message, f.maxLength), flagged
}

func (f *Filter) Len() int {
	return len(f.words)
}

// Truncate keeps at most max runes of s.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for idx := range s {
		if count == max {
			return s[:idx]
		}
		count++
	}
	return s
}

// Read parses a word list: one word per line, blank lines and lines starting
// with # are skipped.
func Read(r io.Reader) ([]string, error) {
	words := []string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read word list")
	}
	return words, nil
}

func Load(path string) ([]string, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open word list")
	}
	defer fd.Close()
	return Read(fd)
}
