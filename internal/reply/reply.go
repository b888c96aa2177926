// Package reply synthesizes canned assistant replies from keyword rules.
package reply

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// MaxEcho is the longest prefix of user content, in runes, echoed back by a
// fallback reply.
const MaxEcho = 200

// ReadyMessage is returned for empty or whitespace-only input.
const ReadyMessage = "I'm ready to help whenever you are. Ask me about budgets, debt, saving or investing."

// DefaultAgent is used when a conversation names no agent or an unknown one.
const DefaultAgent = "financial_advisor"

// Rule maps a keyword pattern to a reply.
type Rule struct {
	Pattern *regexp.Regexp
	Reply   string
}

// Persona is a named canned-reply ruleset.
type Persona struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Greeting string `json:"greeting"`
	Rules    []Rule `json:"-"`
	// Fallback is a format string receiving the truncated user content.
	Fallback string `json:"-"`
}

func rule(pattern, reply string) Rule {
	return Rule{Pattern: regexp.MustCompile(pattern), Reply: reply}
}

// Resolve returns the persona for name, falling back to DefaultAgent.
func Resolve(name string) Persona {
	if p, ok := personas[name]; ok {
		return p
	}
	return personas[DefaultAgent]
}

// Known reports whether name is a built-in persona.
func Known(name string) bool {
	_, ok := personas[name]
	return ok
}

// Names returns the built-in persona names, sorted.
func Names() []string {
	names := make([]string, 0, len(personas))
	for n := range personas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns every built-in persona ordered by name.
func All() []Persona {
	out := make([]Persona, 0, len(personas))
	for _, n := range Names() {
		out = append(out, personas[n])
	}
	return out
}

// Greeting returns the opening message for agentName.
func Greeting(agentName string) string {
	return Resolve(agentName).Greeting
}

// Synthesize returns the reply agentName gives to content. First matching
// rule wins; the match is case-insensitive.
func Synthesize(content, agentName string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ReadyMessage
	}
	p := Resolve(agentName)
	lower := strings.ToLower(trimmed)
	for _, r := range p.Rules {
		if r.Pattern.MatchString(lower) {
			return r.Reply
		}
	}
	return fmt.Sprintf(p.Fallback, Truncate(trimmed, MaxEcho))
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
