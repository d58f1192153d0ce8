// Package match pairs device book records with library books. Matching is
// tiered: an ISBN match beats an exact title/author match, which beats a
// fuzzy title match; the first tier that produces a result wins.
package match

import (
	"regexp"
	"strings"

	"github.com/stomybooks/stomy-sync/pkg/devicedb"
	"github.com/stomybooks/stomy-sync/pkg/models"
)

// Confidence labels how a match was made.
type Confidence string

const (
	ConfidenceISBN       Confidence = "isbn-exact"
	ConfidenceExact      Confidence = "title-author-exact"
	ConfidenceFuzzyTitle Confidence = "fuzzy-title"
)

// FuzzyThreshold is the minimum token-overlap ratio for a fuzzy title
// match. Below it, books are considered unrelated.
const FuzzyThreshold = 0.70

// Result pairs a device book with the library book it resolved to.
type Result struct {
	DeviceBook devicedb.Book
	Book       *models.Book
	Confidence Confidence
}

var punctuation = regexp.MustCompile(`[^\w\s]`)
var whitespace = regexp.MustCompile(`\s+`)

// Normalize lowercases a string, strips punctuation, and collapses runs of
// whitespace so cosmetic differences ("The Hobbit!" vs "the hobbit") never
// defeat a match.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = punctuation.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Match resolves one device book against the library. It returns nil when
// no tier produces a match; an unmatched device book is skipped, never
// imported.
func Match(deviceBook devicedb.Book, library []*models.Book) *Result {
	if book := matchISBN(deviceBook, library); book != nil {
		return &Result{DeviceBook: deviceBook, Book: book, Confidence: ConfidenceISBN}
	}
	if book := matchTitleAuthor(deviceBook, library); book != nil {
		return &Result{DeviceBook: deviceBook, Book: book, Confidence: ConfidenceExact}
	}
	if book := matchFuzzyTitle(deviceBook, library); book != nil {
		return &Result{DeviceBook: deviceBook, Book: book, Confidence: ConfidenceFuzzyTitle}
	}
	return nil
}

func matchISBN(deviceBook devicedb.Book, library []*models.Book) *models.Book {
	if deviceBook.ISBN == "" {
		return nil
	}
	for _, book := range library {
		for _, isbn := range book.ISBNs() {
			if strings.EqualFold(isbn, deviceBook.ISBN) {
				return book
			}
		}
	}
	return nil
}

func matchTitleAuthor(deviceBook devicedb.Book, library []*models.Book) *models.Book {
	title := Normalize(deviceBook.Title)
	author := Normalize(deviceBook.Author)
	if title == "" {
		return nil
	}
	for _, book := range library {
		if Normalize(book.Title) == title && Normalize(book.Author) == author {
			return book
		}
	}
	return nil
}

func matchFuzzyTitle(deviceBook devicedb.Book, library []*models.Book) *models.Book {
	title := Normalize(deviceBook.Title)
	if title == "" {
		return nil
	}

	var best *models.Book
	bestRatio := 0.0
	for _, book := range library {
		ratio := overlapRatio(title, Normalize(book.Title))
		if ratio >= FuzzyThreshold && ratio > bestRatio {
			best = book
			bestRatio = ratio
		}
	}
	return best
}

// overlapRatio is the share of tokens the two normalized titles have in
// common, relative to the longer title's token count.
func overlapRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)

	common := 0
	for token := range tokensA {
		if tokensB[token] {
			common++
		}
	}

	longest := len(tokensA)
	if len(tokensB) > longest {
		longest = len(tokensB)
	}
	return float64(common) / float64(longest)
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, token := range strings.Fields(s) {
		set[token] = true
	}
	return set
}
