// Package llm handles LLM provider communication, prompt construction,
// response validation, and the single repair attempt.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/dshills/oceancheck/internal/schema"
	"github.com/dshills/oceancheck/internal/score"
)

// ErrInvalidModelOutput is returned when both the initial and repair LLM
// responses fail validation. The caller should exit with code 5.
var ErrInvalidModelOutput = errors.New("llm: invalid model output after repair attempt")

// Provider is the interface for LLM backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating LLM providers. It is a package-level
// variable so tests can replace it with a mock without modifying the call site.
// Tests must restore the original value; use t.Cleanup to do so safely.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// Defaults applied when the corresponding Options field is zero.
const (
	DefaultMaxPosts  = 100
	DefaultMaxTokens = 2048
)

// Options configures an Analyze or Compare call.
type Options struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	MaxPosts    int
	Logger      *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// DefaultModel returns the model used for providerName when none is given.
func DefaultModel(providerName string) string {
	switch strings.ToLower(providerName) {
	case "openai":
		return "gpt-4o"
	case "google":
		return "gemini-1.5-pro"
	case "xai":
		return "grok-2-latest"
	default:
		return "claude-sonnet-4-5"
	}
}

// ValidationError records a single validation failure on an LLM response.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Analyze builds the personality prompt for user's parsed dump, calls the
// LLM, validates the response, and performs one repair attempt if validation
// fails.
func Analyze(ctx context.Context, user string, dump *schema.Dump, opts Options) (*schema.Assessment, error) {
	if dump == nil {
		return nil, errors.New("llm: nil dump")
	}
	return run(ctx, opts, analyzeSystemPrompt, buildAnalyzePrompt(user, dump, opts.MaxPosts), ValidateAssessment)
}

// Compare asks the LLM for the compatibility of two analysed users.
func Compare(ctx context.Context, a, b *schema.Report, opts Options) (*schema.Compatibility, error) {
	if a == nil || b == nil {
		return nil, errors.New("llm: nil report")
	}
	return run(ctx, opts, compareSystemPrompt, buildComparePrompt(a, b), ValidateCompatibility)
}

// run drives one prompt through the provider with a single repair round.
func run[T any](
	ctx context.Context,
	opts Options,
	sysPrompt, userPrompt string,
	validate func(string) (*T, []ValidationError),
) (*T, error) {
	log := opts.logger()
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	provider, err := NewProvider(opts.Provider, opts.Model)
	if err != nil {
		return nil, fmt.Errorf("llm: create provider: %w", err)
	}

	log.Debug("llm prompt",
		zap.String("provider", opts.Provider),
		zap.String("system", sysPrompt),
		zap.String("user", userPrompt))

	raw, err := provider.Complete(ctx, sysPrompt, userPrompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("llm: complete: %w", err)
	}

	out, validationErrs := validate(raw)
	if out != nil && !needsRepair(validationErrs) {
		// Non-fatal validation errors (e.g., clamped scores) were applied
		// in-place by validate.
		logNonFatal(log, validationErrs)
		return out, nil
	}

	// One repair attempt: include the original prompt and the invalid response
	// so the LLM has full context.
	log.Debug("llm response invalid, repairing", zap.Int("errors", len(validationErrs)))
	repairPrompt := buildRepairPrompt(userPrompt, raw, validationErrs)
	raw2, err := provider.Complete(ctx, sysPrompt, repairPrompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("llm: repair complete: %w", err)
	}

	out2, validationErrs2 := validate(raw2)
	if out2 != nil && !needsRepair(validationErrs2) {
		logNonFatal(log, validationErrs2)
		return out2, nil
	}

	return nil, ErrInvalidModelOutput
}

func logNonFatal(log *zap.Logger, errs []ValidationError) {
	for _, e := range errs {
		log.Warn("llm output adjusted", zap.String("field", e.Field), zap.String("message", e.Message))
	}
}

// needsRepair returns true when validation errors include a parse or
// required-field failure that requires a retry.
func needsRepair(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Field == "json_parse" || e.Field == "required_field" {
			return true
		}
	}
	return false
}

// fenceRe matches a markdown code fence block (``` or ~~~) with an optional
// language tag and captures the content between the fences.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches only an opening fence line (no closing fence required).
// Used to strip orphaned opening fences from truncated responses.
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

// stripMarkdownFences removes leading/trailing markdown code fences that LLMs
// sometimes wrap around JSON output (e.g., "```json\n...\n```").
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// invalidJSONEscapeRe matches a backslash followed by any character that is not
// a valid JSON string escape character ("\/bfnrtu).
var invalidJSONEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

// fixInvalidJSONEscapes replaces invalid JSON escape sequences in s with their
// correctly double-escaped equivalents.
func fixInvalidJSONEscapes(s string) string {
	return invalidJSONEscapeRe.ReplaceAllString(s, `\\$1`)
}

// bareKeyRe matches an unquoted object key such as the o in {o:1}.
var bareKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)

// quoteBareKeys turns {o:1,c:2} into {"o":1,"c":2}. Models prompted with
// the short OCEAN notation often answer in it. Text inside string literals
// is left untouched.
func quoteBareKeys(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 16)
	start := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			if !inString {
				sb.WriteString(bareKeyRe.ReplaceAllString(s[start:i], `$1"$2":`))
				start = i
			} else {
				sb.WriteString(s[start : i+1])
				start = i + 1
			}
			inString = !inString
		}
	}
	if inString {
		sb.WriteString(s[start:])
	} else {
		sb.WriteString(bareKeyRe.ReplaceAllString(s[start:], `$1"$2":`))
	}
	return sb.String()
}

// outermostObject returns the text from the first "{" to the last "}", or s
// when there is no such span. It drops prose around a JSON answer.
func outermostObject(s string) string {
	i := strings.IndexByte(s, '{')
	j := strings.LastIndexByte(s, '}')
	if i < 0 || j < i {
		return s
	}
	return s[i : j+1]
}

// decodeLenient unmarshals raw into v, falling back to progressively more
// forgiving rewrites of the payload. The error of the first attempt is
// returned when none succeed.
func decodeLenient(raw string, v any) error {
	raw = stripMarkdownFences(raw)
	firstErr := json.Unmarshal([]byte(raw), v)
	if firstErr == nil {
		return nil
	}
	obj := outermostObject(raw)
	for _, candidate := range []string{
		obj,
		fixInvalidJSONEscapes(obj),
		quoteBareKeys(obj),
		fixInvalidJSONEscapes(quoteBareKeys(obj)),
	} {
		if json.Unmarshal([]byte(candidate), v) == nil {
			return nil
		}
	}
	return firstErr
}

// assessmentWire mirrors schema.Assessment with every trait optional, so an
// absent or null score can be told apart from a zero.
type assessmentWire struct {
	OCEAN       map[string]*float64 `json:"ocean"`
	Explanation string              `json:"explanation"`
}

// trait returns the value for t, matching keys case-insensitively as
// struct decoding would.
func (w assessmentWire) trait(t schema.Trait) *float64 {
	if v, ok := w.OCEAN[string(t)]; ok {
		return v
	}
	for k, v := range w.OCEAN {
		if strings.EqualFold(k, string(t)) {
			return v
		}
	}
	return nil
}

// ValidateAssessment parses and validates a personality response. Missing or
// unparseable scores are fatal; out-of-range scores are clamped in place and
// recorded as non-fatal errors. Returns a nil assessment only on fatal errors.
func ValidateAssessment(raw string) (*schema.Assessment, []ValidationError) {
	var errs []ValidationError

	var w assessmentWire
	if err := decodeLenient(raw, &w); err != nil {
		return nil, append(errs, ValidationError{Field: "json_parse", Message: err.Error()})
	}

	if w.OCEAN == nil {
		return nil, append(errs, ValidationError{Field: "required_field", Message: "ocean is missing"})
	}
	var o schema.OCEAN
	for _, t := range schema.Traits {
		v := w.trait(t)
		if v == nil {
			errs = append(errs, ValidationError{Field: "required_field", Message: "ocean." + string(t) + " is missing"})
			continue
		}
		o.Set(t, *v)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if !score.InRange(o) {
		for _, t := range schema.Traits {
			v := o.Get(t)
			if c := score.Clamp(v); c != v {
				errs = append(errs, ValidationError{
					Field:   "ocean." + string(t),
					Message: fmt.Sprintf("score %v outside 0-5; clamped to %v", v, c),
				})
				o.Set(t, c)
			}
		}
	}
	if strings.TrimSpace(w.Explanation) == "" {
		errs = append(errs, ValidationError{Field: "explanation", Message: "explanation is empty"})
	}

	return &schema.Assessment{OCEAN: &o, Explanation: w.Explanation}, errs
}

// ValidateCompatibility parses and validates a couple compatibility response.
func ValidateCompatibility(raw string) (*schema.Compatibility, []ValidationError) {
	var errs []ValidationError

	var c schema.Compatibility
	if err := decodeLenient(raw, &c); err != nil {
		return nil, append(errs, ValidationError{Field: "json_parse", Message: err.Error()})
	}

	if c.Score == nil {
		return nil, append(errs, ValidationError{Field: "required_field", Message: "score is missing"})
	}
	if s := *c.Score; s < 0 || s > 100 {
		clamped := int(math.Max(0, math.Min(100, float64(s))))
		errs = append(errs, ValidationError{
			Field:   "score",
			Message: fmt.Sprintf("score %d outside 0-100; clamped to %d", s, clamped),
		})
		c.Score = &clamped
	}
	if strings.TrimSpace(c.Explanation) == "" {
		errs = append(errs, ValidationError{Field: "explanation", Message: "explanation is empty"})
	}

	return &c, errs
}

const traitGuide = `The OCEAN model consists of five personality traits:
- Openness: Appreciation for art, emotion, adventure, unusual ideas, curiosity, and variety of experience.
- Conscientiousness: Tendency to be organized, dependable, show self-discipline, act dutifully, aim for achievement, and prefer planned rather than spontaneous behavior.
- Extraversion: Energy, positive emotions, surgency, assertiveness, sociability, and the tendency to seek stimulation in the company of others.
- Agreeableness: Tendency to be compassionate and cooperative rather than suspicious and antagonistic towards others.
- Neuroticism: Tendency to experience unpleasant emotions easily, such as anger, anxiety, depression, and vulnerability.
`

const analyzeSystemPrompt = `Analyze the following posts from the given X user and assess their personality based on the OCEAN (Big Five) model.

` + traitGuide + `
Provide an OCEAN index from 0 to 5 for each trait, where 0 is very low and 5 is very high. Also provide a brief explanation for your assessment.

Output ONLY valid JSON conforming to this schema. No prose, no markdown, no explanation outside the JSON.
{"ocean": {"o": 0, "c": 0, "e": 0, "a": 0, "n": 0}, "explanation": "..."}
`

const compareSystemPrompt = `You are given the OCEAN (Big Five) personality assessments of two X users.

` + traitGuide + `
Assess how compatible the two users would be as a couple. Give a score from 0 (incompatible) to 100 (highly compatible) and a brief explanation that refers to specific traits.

Output ONLY valid JSON conforming to this schema. No prose, no markdown, no explanation outside the JSON.
{"score": 0, "explanation": "..."}
`

// buildAnalyzePrompt assembles the user prompt for Analyze: the profile as
// JSON and up to maxPosts posts in input order.
func buildAnalyzePrompt(user string, dump *schema.Dump, maxPosts int) string {
	if maxPosts <= 0 {
		maxPosts = DefaultMaxPosts
	}
	posts := dump.Posts
	if len(posts) > maxPosts {
		posts = posts[:maxPosts]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Username: @%s\n", user)
	if prof, err := json.Marshal(dump.Profile); err == nil && string(prof) != "{}" {
		fmt.Fprintf(&sb, "<profile>\n%s\n</profile>\n", prof)
	}
	fmt.Fprintf(&sb, "<user_tweets filter=\"top_%d\">\n", maxPosts)
	for i, p := range posts {
		if i > 0 {
			sb.WriteString("\n")
		}
		writePost(&sb, p)
	}
	sb.WriteString("</user_tweets>")
	return sb.String()
}

func writePost(sb *strings.Builder, p schema.Post) {
	if p.IsQuoteStatus {
		sb.WriteString("<post is_quote=\"true\">\n")
	} else {
		sb.WriteString("<post>\n")
	}
	sb.WriteString(p.Text)
	sb.WriteString("\n")

	var counts []string
	add := func(n *int, label string) {
		if n != nil {
			counts = append(counts, fmt.Sprintf("%d %s", *n, label))
		}
	}
	add(p.FavoriteCount, "likes")
	add(p.ReplyCount, "replies")
	add(p.RetweetCount, "retweets")
	add(p.QuoteCount, "quotes")
	if len(counts) > 0 {
		sb.WriteString(strings.Join(counts, ", "))
		sb.WriteString("\n")
	}
	sb.WriteString("</post>\n")
}

// buildComparePrompt lists both users' scores and explanations.
func buildComparePrompt(a, b *schema.Report) string {
	var sb strings.Builder
	for i, r := range []*schema.Report{a, b} {
		fmt.Fprintf(&sb, "User %d: @%s\n", i+1, r.Username)
		if o := r.Analysis.OCEAN; o != nil {
			fmt.Fprintf(&sb, "OCEAN: o=%g c=%g e=%g a=%g n=%g\n", o.O, o.C, o.E, o.A, o.N)
		}
		if r.Analysis.Explanation != "" {
			fmt.Fprintf(&sb, "Assessment: %s\n", r.Analysis.Explanation)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Produce the JSON compatibility assessment now.")
	return sb.String()
}

// buildRepairPrompt constructs the repair message. It includes the original
// user prompt and the previous invalid response so the LLM has full context.
func buildRepairPrompt(originalUserPrompt, previousResponse string, errs []ValidationError) string {
	var sb strings.Builder
	sb.WriteString(originalUserPrompt)
	sb.WriteString("\n\nYour previous response was:\n")
	sb.WriteString(previousResponse)
	sb.WriteString("\n\nThat response was invalid. Errors:\n")
	for _, e := range errs {
		fmt.Fprintf(&sb, "  - %s\n", e.Error())
	}
	sb.WriteString("\nPlease output only the corrected JSON conforming to the schema. Do not repeat the error.")
	return sb.String()
}

// ── Provider dispatch ─────────────────────────────────────────────────────────

// defaultNewProvider dispatches to the appropriate provider implementation.
func defaultNewProvider(providerName, model string) (Provider, error) {
	if model == "" {
		model = DefaultModel(providerName)
	}
	switch strings.ToLower(providerName) {
	case "anthropic", "":
		return newAnthropicProvider(model)
	case "openai":
		return newOpenAIProvider(model)
	case "xai":
		return newXAIProvider(model)
	case "google":
		return newGoogleProvider(model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", providerName)
	}
}

// ── Anthropic provider ───────────────────────────────────────────────────────

// anthropicProvider implements Provider using the Anthropic SDK.
type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(model string) (Provider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: ANTHROPIC_API_KEY environment variable not set")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicProvider{client: client, model: model}, nil
}

func (p *anthropicProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: messages.new: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("anthropic: response contained no text content blocks")
	}
	return strings.Join(parts, ""), nil
}
