package dumpparse

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/dshills/oceancheck/internal/schema"
)

// errEmptyValue is returned by text assignments when the trimmed capture is
// empty. The field is omitted, exactly as for a failed numeric coercion.
var errEmptyValue = errors.New("empty value")

// Field binds one attribute name to the pattern that locates it and the
// coercion that stores the captured value into a record of type T.
//
// Pattern must have exactly one capture group holding the raw value. Build
// fields with TextField, IntField or FlagField; a Field literal has no
// assignment and will abort the parse when it matches.
type Field[T any] struct {
	Name    string
	Pattern *regexp.Regexp
	assign  func(rec *T, value string) error
}

// Match returns the trimmed capture of the first match of f in text.
func (f Field[T]) Match(text string) (string, bool) {
	m := f.Pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// Strip removes the first match of f from text. Text without a match is
// returned unchanged.
func (f Field[T]) Strip(text string) string {
	loc := f.Pattern.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return text[:loc[0]] + text[loc[1]:]
}

// TextField stores the trimmed capture as a string. Empty captures are omitted.
func TextField[T any](name string, pattern *regexp.Regexp, dst func(*T) **string) Field[T] {
	return Field[T]{
		Name:    name,
		Pattern: pattern,
		assign: func(rec *T, value string) error {
			if value == "" {
				return errEmptyValue
			}
			*dst(rec) = &value
			return nil
		},
	}
}

// IntField stores the capture as a base-10 integer. Captures that are not a
// valid integer leave the attribute unset.
func IntField[T any](name string, pattern *regexp.Regexp, dst func(*T) **int) Field[T] {
	return Field[T]{
		Name:    name,
		Pattern: pattern,
		assign: func(rec *T, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*dst(rec) = &n
			return nil
		},
	}
}

// FlagField stores true iff the capture equals token exactly. Any other
// capture stores false.
func FlagField[T any](name string, pattern *regexp.Regexp, dst func(*T) *bool, token string) Field[T] {
	return Field[T]{
		Name:    name,
		Pattern: pattern,
		assign: func(rec *T, value string) error {
			*dst(rec) = value == token
			return nil
		},
	}
}

// Grammar is the full set of patterns used by a Parser. A Grammar is never
// mutated after construction, so one value can back any number of parsers.
type Grammar struct {
	// Header matches the profile header as a prefix of the dump.
	Header *regexp.Regexp
	// Profile fields are applied to the header span only, in order.
	Profile []Field[schema.Profile]
	// Terminator is a field that may immediately follow the header. It is
	// consumed from the remainder and fills its attribute when the header
	// left it unset. Its pattern may carry a second group matching an entry
	// field marker right after the value; when that group matches, the value
	// is the body of the first entry and only the marker is consumed.
	Terminator Field[schema.Profile]
	// Delimiter separates post entries; matched text is discarded.
	Delimiter *regexp.Regexp
	// Entry fields are applied to each entry chunk and stripped from its body.
	Entry []Field[schema.Post]
}

// Value shapes shared by the marker patterns.
const (
	runValue   = `([^|]+)`   // up to the next pipe or end of scope
	tokenValue = `([^\s|]*)` // a single token, possibly empty
	lineValue  = `([^|\n]*)` // up to the next pipe or newline
)

// headerMarker matches "name:" at the start of the header or after a pipe.
func headerMarker(name, value string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|\|)\s*` + regexp.QuoteMeta(name) + `:\s*` + value)
}

// entryMarker matches "| name:" inside an entry. The pipe is mandatory so
// body text such as "note: ..." is never taken for a field.
func entryMarker(name, value string) *regexp.Regexp {
	return regexp.MustCompile(`\|\s*` + regexp.QuoteMeta(name) + `:\s*` + value)
}

// DefaultGrammar returns the grammar for Exa-style X profile dumps.
func DefaultGrammar() Grammar {
	// Every key that can open a header field; bio is whatever precedes the
	// first of them.
	headerKeys := []string{
		"profile_url", "name", "created_at", "followers_count", "favourites_count",
		"friends_count", "media_count", "statuses_count", "location",
	}
	quoted := make([]string, len(headerKeys))
	for i, k := range headerKeys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	// Headers may span lines, so bio and header use (?s).
	bio := regexp.MustCompile(`(?s)^(.*?)(?:^|\|)\s*(?:` + strings.Join(quoted, "|") + `):`)

	// Markers that open an entry; a location value followed by one of them
	// is really post text.
	entryKeys := `(?:created_at|favorite_count|quote_count|reply_count|retweet_count|is_quote_status|lang):`

	return Grammar{
		Header: regexp.MustCompile(`(?s)^.*?statuses_count:\s*\d+`),
		Profile: []Field[schema.Profile]{
			TextField("bio", bio, func(p *schema.Profile) **string { return &p.Bio }),
			TextField("profile_url", headerMarker("profile_url", tokenValue),
				func(p *schema.Profile) **string { return &p.ProfileURL }),
			TextField("name", headerMarker("name", runValue),
				func(p *schema.Profile) **string { return &p.Name }),
			TextField("created_at", headerMarker("created_at", runValue),
				func(p *schema.Profile) **string { return &p.CreatedAt }),
			IntField("followers_count", headerMarker("followers_count", runValue),
				func(p *schema.Profile) **int { return &p.FollowersCount }),
			IntField("statuses_count", headerMarker("statuses_count", runValue),
				func(p *schema.Profile) **int { return &p.StatusesCount }),
			TextField("location", headerMarker("location", runValue),
				func(p *schema.Profile) **string { return &p.Location }),
		},
		Terminator: TextField("location",
			regexp.MustCompile(`^\s*\|\s*location:[ \t]*`+lineValue+`(\|\s*`+entryKeys+`)?`),
			func(p *schema.Profile) **string { return &p.Location }),
		Delimiter: regexp.MustCompile(`\|\s*lang:\s*[a-z]{2,3}(?:\s|$)`),
		Entry: []Field[schema.Post]{
			TextField("created_at", entryMarker("created_at", runValue),
				func(p *schema.Post) **string { return &p.CreatedAt }),
			IntField("favorite_count", entryMarker("favorite_count", runValue),
				func(p *schema.Post) **int { return &p.FavoriteCount }),
			IntField("quote_count", entryMarker("quote_count", runValue),
				func(p *schema.Post) **int { return &p.QuoteCount }),
			IntField("reply_count", entryMarker("reply_count", runValue),
				func(p *schema.Post) **int { return &p.ReplyCount }),
			IntField("retweet_count", entryMarker("retweet_count", runValue),
				func(p *schema.Post) **int { return &p.RetweetCount }),
			// A flag is one token; body text may follow it without a pipe.
			FlagField("is_quote_status", entryMarker("is_quote_status", tokenValue),
				func(p *schema.Post) *bool { return &p.IsQuoteStatus }, "True"),
		},
	}
}
