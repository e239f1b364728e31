// Package router compiles the declarative address matching rules from the
// configuration into an ordered list of checkers and answers, for a given
// recipient address, which mailboxes should receive a copy of the message.
package router

import (
	"fmt"
	"regexp"

	"github.com/mail4one/mail4one/internal/config"
)

const (
	// MatchAll is the reserved match name that accepts every address.
	// It is always available to rules without being declared.
	MatchAll = "default_match_all"

	// NullMbox is the reserved mailbox name that matches but never
	// receives mail. Combined with stop_check it blackholes addresses.
	NullMbox = "default_null_mbox"
)

// Predicate decides whether an address is accepted by a match.
type Predicate interface {
	Match(addr string) bool
}

// exactPredicate accepts addresses by exact set membership.
type exactPredicate struct {
	addrs map[string]struct{}
}

func (p exactPredicate) Match(addr string) bool {
	_, ok := p.addrs[addr]
	return ok
}

// regexPredicate accepts addresses matched by any of the compiled
// expressions, anchored at the start.
type regexPredicate struct {
	rexs []*regexp.Regexp
}

func (p regexPredicate) Match(addr string) bool {
	for _, re := range p.rexs {
		if re.MatchString(addr) {
			return true
		}
	}
	return false
}

// truePredicate accepts every address.
type truePredicate struct{}

func (truePredicate) Match(string) bool { return true }

// negatedPredicate inverts the wrapped predicate.
type negatedPredicate struct {
	inner Predicate
}

func (p negatedPredicate) Match(addr string) bool {
	return !p.inner.Match(addr)
}

// Checker is one compiled (mailbox, rule) pair. Checkers are evaluated in
// declaration order; see GetMboxes.
type Checker struct {
	Mbox      string
	Pred      Predicate
	StopCheck bool
}

// Router holds the compiled checker list for a configuration.
type Router struct {
	checkers []Checker
}

// compilePredicate builds the predicate for one match declaration.
// Exactly one of addrs and addr_rexs must be set.
func compilePredicate(m config.Match) (Predicate, error) {
	if len(m.Addrs) > 0 && len(m.AddrRexs) > 0 {
		return nil, fmt.Errorf("match %q: both addrs and addr_rexs are set", m.Name)
	}

	if len(m.Addrs) > 0 {
		addrs := make(map[string]struct{}, len(m.Addrs))
		for _, a := range m.Addrs {
			addrs[a] = struct{}{}
		}
		return exactPredicate{addrs: addrs}, nil
	}

	if len(m.AddrRexs) > 0 {
		rexs := make([]*regexp.Regexp, 0, len(m.AddrRexs))
		for _, expr := range m.AddrRexs {
			// Anchor at the start only, like a "match" as opposed
			// to a "search".
			re, err := regexp.Compile(`\A(?:` + expr + `)`)
			if err != nil {
				return nil, fmt.Errorf("match %q: %w", m.Name, err)
			}
			rexs = append(rexs, re)
		}
		return regexPredicate{rexs: rexs}, nil
	}

	return nil, fmt.Errorf("match %q: neither addrs nor addr_rexs is set", m.Name)
}

// New compiles matches and mailboxes into a Router. Referencing an unknown
// match name, or declaring a match with both or neither of addrs and
// addr_rexs, is an error.
func New(matches []config.Match, boxes []config.Mbox) (*Router, error) {
	preds := make(map[string]Predicate, len(matches)+1)
	for _, m := range matches {
		p, err := compilePredicate(m)
		if err != nil {
			return nil, err
		}
		preds[m.Name] = p
	}
	preds[MatchAll] = truePredicate{}

	var checkers []Checker
	for _, box := range boxes {
		for _, rule := range box.Rules {
			p, ok := preds[rule.MatchName]
			if !ok {
				return nil, fmt.Errorf("mailbox %q: unknown match %q", box.Name, rule.MatchName)
			}
			if rule.Negate {
				p = negatedPredicate{inner: p}
			}
			checkers = append(checkers, Checker{
				Mbox:      box.Name,
				Pred:      p,
				StopCheck: rule.StopCheck,
			})
		}
	}

	return &Router{checkers: checkers}, nil
}

// Len returns the number of compiled checkers.
func (r *Router) Len() int {
	return len(r.checkers)
}

// GetMboxes evaluates the checkers in order against addr. Every accepting
// checker contributes its mailbox, except the reserved null mailbox; an
// accepting checker with stop_check set ends the evaluation. The result
// preserves checker order and may contain duplicates. An address no rule
// accepts yields an empty list.
func (r *Router) GetMboxes(addr string) []string {
	var mboxes []string
	for _, c := range r.checkers {
		if !c.Pred.Match(addr) {
			continue
		}
		if c.Mbox != NullMbox {
			mboxes = append(mboxes, c.Mbox)
		}
		if c.StopCheck {
			break
		}
	}
	return mboxes
}
