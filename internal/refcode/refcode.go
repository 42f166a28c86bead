// Package refcode generates donation reference codes and recovers them
// from free-text bank transfer descriptions.
//
// A reference code is an opaque unique id (UUID). Its memo-safe
// projection — prefix "DON" plus uppercase alphanumerics, at most
// MemoMaxLen characters — is what the donor puts in the transfer memo
// field, and what we later search for inside the transaction description
// the bank sends back. The projection is deterministic, so the search
// pattern can always be regenerated from the stored code.
package refcode

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MemoPrefix tags every memo code so a substring search in donor-typed
	// text has a low false-positive rate.
	MemoPrefix = "DON"

	// MemoMaxLen bounds the memo code so it survives bank memo fields and
	// manual retyping.
	MemoMaxLen = 20

	// memoMinBody is the smallest alphanumeric run after the prefix that
	// Extract accepts as a candidate.
	memoMinBody = 5
)

// memoPattern matches candidate memo codes inside free text. The bank may
// lowercase the memo or jam it against donor-entered words, so matching is
// case-insensitive and bounded rather than anchored.
var memoPattern = regexp.MustCompile(`(?i)DON[A-Z0-9]{5,17}`)

// đ does not decompose under NFD, so it needs an explicit mapping before
// the combining-mark strip.
var dMapper = strings.NewReplacer("đ", "d", "Đ", "D")

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// New returns a fresh reference code: a random UUID, falling back to a
// timestamp+random composite if the entropy source fails. Either form
// projects to a valid memo code.
func New() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%d%04x", time.Now().UnixNano(), rand.Intn(0x10000))
	}
	return id.String()
}

// MemoCode derives the memo-safe projection of a reference code. The same
// input always yields the same output; reconciliation depends on that.
func MemoCode(ref string) string {
	body := Normalize(ref)
	if max := MemoMaxLen - len(MemoPrefix); len(body) > max {
		body = body[:max]
	}
	return MemoPrefix + body
}

// Normalize reduces arbitrary text to the memo-safe alphabet: diacritics
// stripped, non-alphanumerics dropped, uppercased. It is exported so the
// QR encoder applies the exact same transformation before URL-encoding.
func Normalize(s string) string {
	s = dMapper.Replace(s)
	if out, _, err := transform.String(diacriticStripper, s); err == nil {
		s = out
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Extract scans free text for candidate memo codes and returns them
// uppercased, in order of appearance, without duplicates. It is a search,
// not an equality check: the donor's bank memo usually carries extra text
// around the code. Candidates still have to resolve against stored
// intents, so false positives here are cheap.
func Extract(text string) []string {
	matches := memoPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.ToUpper(m)
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
