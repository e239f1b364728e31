package router

import (
	"reflect"
	"testing"

	"github.com/mail4one/mail4one/internal/config"
)

// testRouter compiles a typical personal-server ruleset: known spammers
// go to a spam box and stop there, a VIP pattern additionally lands in
// an important box, and everything else falls through to a catch-all.
func testRouter(t *testing.T) *Router {
	t.Helper()

	matches := []config.Match{
		{Name: "spam_senders", Addrs: []string{"foo@bar.com"}},
		{Name: "vip", AddrRexs: []string{`first\.last@mydomain\.com`}},
	}
	boxes := []config.Mbox{
		{Name: "spam", Rules: []config.Rule{{MatchName: "spam_senders", StopCheck: true}}},
		{Name: "important", Rules: []config.Rule{{MatchName: "vip"}}},
		{Name: "all", Rules: []config.Rule{{MatchName: MatchAll}}},
	}

	r, err := New(matches, boxes)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestGetMboxes(t *testing.T) {
	r := testRouter(t)

	tests := []struct {
		name string
		addr string
		want []string
	}{
		{"spammer stops at spam box", "foo@bar.com", []string{"spam"}},
		{"regular mail hits catch-all", "foo@mydomain.com", []string{"all"}},
		{"vip lands in both boxes", "first.last@mydomain.com", []string{"important", "all"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.GetMboxes(tt.addr)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("GetMboxes(%q) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestRegexAnchoredAtStart(t *testing.T) {
	matches := []config.Match{
		{Name: "promo", AddrRexs: []string{`promo.*@shop\.example`}},
	}
	boxes := []config.Mbox{
		{Name: "promotions", Rules: []config.Rule{{MatchName: "promo"}}},
	}

	r, err := New(matches, boxes)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := r.GetMboxes("promo-july@shop.example"); len(got) != 1 {
		t.Errorf("anchored prefix should match, got %v", got)
	}
	// A match must start at the beginning of the address, not anywhere
	// inside it.
	if got := r.GetMboxes("re-promo@shop.example"); len(got) != 0 {
		t.Errorf("mid-string match should not route, got %v", got)
	}
}

func TestNullMboxBlackholes(t *testing.T) {
	matches := []config.Match{
		{Name: "blocked", Addrs: []string{"noreply@annoying.example"}},
	}
	boxes := []config.Mbox{
		{Name: NullMbox, Rules: []config.Rule{{MatchName: "blocked", StopCheck: true}}},
		{Name: "all", Rules: []config.Rule{{MatchName: MatchAll}}},
	}

	r, err := New(matches, boxes)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := r.GetMboxes("noreply@annoying.example"); len(got) != 0 {
		t.Errorf("blackholed address should route nowhere, got %v", got)
	}
	if got := r.GetMboxes("friend@real.example"); !reflect.DeepEqual(got, []string{"all"}) {
		t.Errorf("other addresses should still route, got %v", got)
	}
}

func TestNegatedRule(t *testing.T) {
	matches := []config.Match{
		{Name: "mine", Addrs: []string{"me@mydomain.com"}},
	}
	boxes := []config.Mbox{
		{Name: "others", Rules: []config.Rule{{MatchName: "mine", Negate: true}}},
	}

	r, err := New(matches, boxes)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := r.GetMboxes("me@mydomain.com"); len(got) != 0 {
		t.Errorf("negated match should not route its own address, got %v", got)
	}
	if got := r.GetMboxes("stranger@mydomain.com"); !reflect.DeepEqual(got, []string{"others"}) {
		t.Errorf("negated match should route everything else, got %v", got)
	}
}

func TestDuplicatesPreserved(t *testing.T) {
	matches := []config.Match{
		{Name: "a", Addrs: []string{"x@y.example"}},
		{Name: "b", AddrRexs: []string{`x@`}},
	}
	boxes := []config.Mbox{
		{Name: "inbox", Rules: []config.Rule{{MatchName: "a"}, {MatchName: "b"}}},
	}

	r, err := New(matches, boxes)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Both rules accept, both contribute; deduplication is the
	// caller's concern.
	if got := r.GetMboxes("x@y.example"); !reflect.DeepEqual(got, []string{"inbox", "inbox"}) {
		t.Errorf("GetMboxes() = %v, want duplicate inbox entries", got)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name    string
		matches []config.Match
		boxes   []config.Mbox
	}{
		{
			name:    "both addrs and addr_rexs",
			matches: []config.Match{{Name: "bad", Addrs: []string{"a@b"}, AddrRexs: []string{"a@"}}},
		},
		{
			name:    "neither addrs nor addr_rexs",
			matches: []config.Match{{Name: "bad"}},
		},
		{
			name:    "invalid regex",
			matches: []config.Match{{Name: "bad", AddrRexs: []string{"("}}},
		},
		{
			name:  "unknown match reference",
			boxes: []config.Mbox{{Name: "inbox", Rules: []config.Rule{{MatchName: "nope"}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.matches, tt.boxes); err == nil {
				t.Error("New() expected error, got nil")
			}
		})
	}
}
