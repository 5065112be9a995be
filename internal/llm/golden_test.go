package llm

import (
	"strings"
	"testing"

	"github.com/dshills/oceancheck/internal/schema"
)

const goldenAnalyzePrompt = `Username: @alice
<user_tweets filter="top_100">
<post>
first
3 likes, 1 replies
</post>

<post is_quote="true">
quoted
</post>

<post>
third
</post>
</user_tweets>`

func TestBuildAnalyzePrompt_Golden(t *testing.T) {
	got := buildAnalyzePrompt("alice", testDump(), 0)
	if got != goldenAnalyzePrompt {
		t.Errorf("prompt mismatch\n--- got ---\n%s\n--- want ---\n%s", got, goldenAnalyzePrompt)
	}
}

func TestBuildAnalyzePrompt_CapsPosts(t *testing.T) {
	got := buildAnalyzePrompt("alice", testDump(), 2)
	if !strings.Contains(got, `<user_tweets filter="top_2">`) {
		t.Errorf("expected top_2 filter:\n%s", got)
	}
	if n := strings.Count(got, "<post"); n != 2 {
		t.Errorf("expected 2 posts, got %d", n)
	}
	if strings.Contains(got, "third") {
		t.Error("posts past the cap must be dropped")
	}
}

func TestBuildAnalyzePrompt_Profile(t *testing.T) {
	name := "Alice"
	followers := 42
	dump := &schema.Dump{Profile: schema.Profile{Name: &name, FollowersCount: &followers}}

	got := buildAnalyzePrompt("alice", dump, 0)
	want := "Username: @alice\n<profile>\n{\"name\":\"Alice\",\"followers_count\":42}\n</profile>\n<user_tweets filter=\"top_100\">\n</user_tweets>"
	if got != want {
		t.Errorf("prompt mismatch\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestSystemPrompts(t *testing.T) {
	for name, p := range map[string]string{"analyze": analyzeSystemPrompt, "compare": compareSystemPrompt} {
		for _, want := range []string{"Openness", "Conscientiousness", "Extraversion", "Agreeableness", "Neuroticism", "Output ONLY valid JSON"} {
			if !strings.Contains(p, want) {
				t.Errorf("%s system prompt missing %q", name, want)
			}
		}
	}
	if !strings.Contains(analyzeSystemPrompt, `"ocean"`) {
		t.Error("analyze prompt must show the ocean schema")
	}
	if !strings.Contains(compareSystemPrompt, `"score"`) {
		t.Error("compare prompt must show the score schema")
	}
}
