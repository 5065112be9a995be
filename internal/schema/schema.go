// Package schema defines all canonical data types for the oceancheck parse and
// report formats.
package schema

import "time"

// Profile carries the header attributes of a profile dump. Every attribute is
// optional; a nil pointer means the attribute was not found or did not coerce.
type Profile struct {
	Bio            *string `json:"bio,omitempty"`
	ProfileURL     *string `json:"profile_url,omitempty"`
	Name           *string `json:"name,omitempty"`
	CreatedAt      *string `json:"created_at,omitempty"`
	FollowersCount *int    `json:"followers_count,omitempty"`
	StatusesCount  *int    `json:"statuses_count,omitempty"`
	Location       *string `json:"location,omitempty"`
}

// Post is one entry of a profile dump. Text is never empty in parser output.
type Post struct {
	CreatedAt     *string `json:"created_at,omitempty"`
	FavoriteCount *int    `json:"favorite_count,omitempty"`
	QuoteCount    *int    `json:"quote_count,omitempty"`
	ReplyCount    *int    `json:"reply_count,omitempty"`
	RetweetCount  *int    `json:"retweet_count,omitempty"`
	IsQuoteStatus bool    `json:"is_quote_status"`
	Text          string  `json:"text"`
}

// Dump is the structured form of a raw profile dump.
type Dump struct {
	Profile Profile `json:"profile"`
	Posts   []Post  `json:"posts"`
}

// ParseOutcome is the caller-facing result of a parse: callers must check
// Success before using Data.
type ParseOutcome struct {
	Success bool   `json:"success"`
	Data    *Dump  `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Trait names one of the five OCEAN dimensions.
type Trait string

const (
	TraitOpenness          Trait = "o"
	TraitConscientiousness Trait = "c"
	TraitExtraversion      Trait = "e"
	TraitAgreeableness     Trait = "a"
	TraitNeuroticism       Trait = "n"
)

// Traits lists the OCEAN dimensions in their conventional order.
var Traits = []Trait{
	TraitOpenness,
	TraitConscientiousness,
	TraitExtraversion,
	TraitAgreeableness,
	TraitNeuroticism,
}

// OCEAN holds one score per Big Five trait on a 0-5 scale.
type OCEAN struct {
	O float64 `json:"o"`
	C float64 `json:"c"`
	E float64 `json:"e"`
	A float64 `json:"a"`
	N float64 `json:"n"`
}

// Get returns the score for t, or 0 for an unknown trait.
func (o OCEAN) Get(t Trait) float64 {
	switch t {
	case TraitOpenness:
		return o.O
	case TraitConscientiousness:
		return o.C
	case TraitExtraversion:
		return o.E
	case TraitAgreeableness:
		return o.A
	case TraitNeuroticism:
		return o.N
	}
	return 0
}

// Set stores v for t. Unknown traits are ignored.
func (o *OCEAN) Set(t Trait, v float64) {
	switch t {
	case TraitOpenness:
		o.O = v
	case TraitConscientiousness:
		o.C = v
	case TraitExtraversion:
		o.E = v
	case TraitAgreeableness:
		o.A = v
	case TraitNeuroticism:
		o.N = v
	}
}

// Assessment contains only the fields populated by the model for a single
// user. OCEAN is a pointer so a missing object can be told apart from zeros.
type Assessment struct {
	OCEAN       *OCEAN `json:"ocean"`
	Explanation string `json:"explanation"`
}

// Compatibility contains only the fields populated by the model for a pair of
// users.
type Compatibility struct {
	Score       *int   `json:"score"`
	Explanation string `json:"explanation"`
}

// Meta records information about the model call.
type Meta struct {
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Report is the persisted personality report for one user.
type Report struct {
	Tool       string     `json:"tool"`
	Version    string     `json:"version"`
	RunID      string     `json:"run_id"`
	Username   string     `json:"username"`
	ProfileURL string     `json:"profile_url"`
	Profile    Profile    `json:"profile"`
	PostCount  int        `json:"post_count"`
	Analysis   Assessment `json:"analysis"`
	Meta       Meta       `json:"meta"`
}

// CompatibilityReport is the output of comparing two saved reports.
type CompatibilityReport struct {
	Tool       string        `json:"tool"`
	Version    string        `json:"version"`
	RunID      string        `json:"run_id"`
	Users      []string      `json:"users"`
	Scores     []OCEAN       `json:"scores"`
	LocalScore int           `json:"local_score"`
	LocalLabel string        `json:"local_label"`
	Deltas     OCEAN         `json:"deltas"`
	Model      Compatibility `json:"model"`
	Meta       Meta          `json:"meta"`
}
