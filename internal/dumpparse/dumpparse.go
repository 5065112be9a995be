// Package dumpparse converts raw profile dumps into structured records.
//
// A dump is a single string: a header of "key: value" profile attributes
// separated by pipes and ending at the statuses_count field, followed by post
// entries separated by "| lang: xx" delimiters. Post entries carry their own
// pipe-prefixed metadata fields mixed with free body text.
//
// Parsing is tolerant: a missing header, a missing field, or a value that
// does not coerce only omits the affected attribute. Entries whose body is
// empty once the metadata fields are stripped are dropped.
package dumpparse

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/oceancheck/internal/schema"
)

// ErrParse is returned when parsing aborts unexpectedly. Tolerated problems
// such as missing fields never produce it.
var ErrParse = errors.New("dumpparse: parse failed")

// Parser extracts schema.Dump values from raw dumps. A Parser holds no
// mutable state and is safe for concurrent use.
type Parser struct {
	grammar Grammar
	logger  *zap.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for omitted-field and abort diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a Parser for g.
func New(g Grammar, opts ...Option) *Parser {
	p := &Parser{grammar: g, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// std backs the package-level Parse and Try. Parser is immutable, so
// concurrent calls through it are safe.
var std = New(DefaultGrammar())

// Parse parses raw with the default grammar.
func Parse(raw string) (*schema.Dump, error) {
	return std.Parse(raw)
}

// Try parses raw with the default grammar and reports the outcome.
func Try(raw string) schema.ParseOutcome {
	return std.Try(raw)
}

// Parse converts raw into a profile and its ordered, non-empty posts.
// It returns ErrParse only when extraction aborts; the returned Dump is nil
// in that case.
func (p *Parser) Parse(raw string) (dump *schema.Dump, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("parse aborted", zap.Any("cause", r))
			dump = nil
			err = fmt.Errorf("%w: %v", ErrParse, r)
		}
	}()

	profile, rest := p.ExtractProfile(raw)
	chunks := p.Segment(rest)
	posts := make([]schema.Post, 0, len(chunks))
	for _, chunk := range chunks {
		posts = append(posts, p.ExtractPost(chunk))
	}
	posts = FilterEmpty(posts)

	p.logger.Debug("parsed dump",
		zap.Int("entries", len(chunks)),
		zap.Int("posts", len(posts)))

	return &schema.Dump{Profile: profile, Posts: posts}, nil
}

// Try runs Parse and folds the result into a ParseOutcome.
func (p *Parser) Try(raw string) schema.ParseOutcome {
	dump, err := p.Parse(raw)
	if err != nil {
		return schema.ParseOutcome{Success: false, Error: err.Error()}
	}
	return schema.ParseOutcome{Success: true, Data: dump}
}

// ExtractProfile reads the profile attributes from the header of raw and
// returns them with the trimmed text that follows the header. Without a
// header the profile is empty and the whole input is returned.
func (p *Parser) ExtractProfile(raw string) (schema.Profile, string) {
	var profile schema.Profile

	header := p.grammar.Header.FindString(raw)
	if header == "" {
		p.logger.Debug("no profile header")
		return profile, strings.TrimSpace(raw)
	}
	applyFields(header, p.grammar.Profile, &profile, p.logger)

	rest := raw[len(header):]
	term := p.grammar.Terminator
	if term.Pattern == nil {
		return profile, strings.TrimSpace(rest)
	}
	loc := term.Pattern.FindStringSubmatchIndex(rest)
	switch {
	case loc == nil:
	case len(loc) >= 6 && loc[4] >= 0:
		// The value runs straight into an entry field: it is post text.
		p.logger.Debug("terminator value kept as entry text", zap.String("field", term.Name))
		rest = rest[loc[2]:]
	default:
		var trailer schema.Profile
		if err := term.assign(&trailer, strings.TrimSpace(rest[loc[2]:loc[3]])); err != nil {
			p.logger.Debug("field omitted", zap.String("field", term.Name), zap.Error(err))
		}
		fillMissing(&profile, trailer)
		rest = rest[loc[1]:]
	}
	return profile, strings.TrimSpace(rest)
}

// fillMissing copies the attributes of src that dst does not have yet.
func fillMissing(dst *schema.Profile, src schema.Profile) {
	if dst.Bio == nil {
		dst.Bio = src.Bio
	}
	if dst.ProfileURL == nil {
		dst.ProfileURL = src.ProfileURL
	}
	if dst.Name == nil {
		dst.Name = src.Name
	}
	if dst.CreatedAt == nil {
		dst.CreatedAt = src.CreatedAt
	}
	if dst.FollowersCount == nil {
		dst.FollowersCount = src.FollowersCount
	}
	if dst.StatusesCount == nil {
		dst.StatusesCount = src.StatusesCount
	}
	if dst.Location == nil {
		dst.Location = src.Location
	}
}

// Segment splits the post section into entry chunks in input order. Input
// without any delimiter yields a single chunk.
func (p *Parser) Segment(rest string) []string {
	return p.grammar.Delimiter.Split(rest, -1)
}

// ExtractPost reads the entry fields of chunk and attaches its cleaned body.
// The returned post may have empty text; FilterEmpty removes those.
func (p *Parser) ExtractPost(chunk string) schema.Post {
	var post schema.Post
	applyFields(chunk, p.grammar.Entry, &post, p.logger)
	post.Text = p.CleanBody(chunk)
	return post
}

// CleanBody strips the first match of every entry field from chunk, one
// field after another, and returns the trimmed remainder.
func (p *Parser) CleanBody(chunk string) string {
	body := chunk
	for _, f := range p.grammar.Entry {
		body = f.Strip(body)
	}
	return strings.TrimSpace(body)
}

// FilterEmpty returns the posts whose trimmed text is non-empty, preserving
// order. Applying it twice gives the same result as applying it once.
func FilterEmpty(posts []schema.Post) []schema.Post {
	kept := make([]schema.Post, 0, len(posts))
	for _, post := range posts {
		if strings.TrimSpace(post.Text) == "" {
			continue
		}
		kept = append(kept, post)
	}
	return kept
}

// applyFields runs every field against text and stores the values that
// coerce. Failures are logged and otherwise ignored.
func applyFields[T any](text string, fields []Field[T], rec *T, logger *zap.Logger) {
	for _, f := range fields {
		value, ok := f.Match(text)
		if !ok {
			continue
		}
		if err := f.assign(rec, value); err != nil {
			logger.Debug("field omitted",
				zap.String("field", f.Name),
				zap.String("value", value),
				zap.Error(err))
		}
	}
}
