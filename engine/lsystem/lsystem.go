// Package lsystem implements Lindenmayer string rewriting and stack-based
// turtle interpretation of the result into line segments.
package lsystem

import (
	"fmt"
	"strings"
)

// Grammar is an immutable L-system description. Symbols absent from Rules
// are terminal and rewrite to themselves.
type Grammar struct {
	Axiom string
	Rules map[rune]string
	Angle float64 // turn increment in degrees
	Step  float64 // segment length in domain units
}

// Validate rejects grammars that cannot produce output.
func (g Grammar) Validate() error {
	if g.Axiom == "" {
		return fmt.Errorf("empty axiom")
	}
	if g.Step < 0 {
		return fmt.Errorf("negative step %v", g.Step)
	}
	return nil
}

// Rewrite applies the rules simultaneously to every symbol of axiom, n
// times. Output length grows multiplicatively per round; bounding n is the
// caller's responsibility.
func Rewrite(axiom string, rules map[rune]string, n int) string {
	cur := axiom
	for i := 0; i < n; i++ {
		var next strings.Builder
		next.Grow(len(cur) * 2)
		for _, sym := range cur {
			if repl, ok := rules[sym]; ok {
				next.WriteString(repl)
			} else {
				next.WriteRune(sym)
			}
		}
		cur = next.String()
	}
	return cur
}

// Expand rewrites the grammar's axiom n times.
func (g Grammar) Expand(n int) string {
	return Rewrite(g.Axiom, g.Rules, n)
}
