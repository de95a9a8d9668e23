package recon

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/profile"
)

// Rule names accepted by NewClassifier.
const (
	RuleOpenUnfiltered   = "open_unfiltered"
	RuleStatelessFilter  = "stateless_filter"
	RuleStatefulFirewall = "stateful_firewall"
	RuleFullyFiltered    = "fully_filtered"
	RuleInconsistent     = "inconsistent"

	// Opt-in variants that demand corroborating evidence before firing.
	RuleStatelessFilterStrict  = "stateless_filter_strict"
	RuleStatefulFirewallStrict = "stateful_firewall_strict"
)

// DefaultRuleOrder is the precedence used when none is configured.
var DefaultRuleOrder = []string{RuleOpenUnfiltered, RuleStatelessFilter, RuleStatefulFirewall, RuleFullyFiltered, RuleInconsistent}

// Evidence is the state map of a single port.
type Evidence map[string]probe.State

// kind returns the state of the canonical profile for k.
func (e Evidence) kind(k profile.Kind) probe.State {
	if s, ok := e[string(k)]; ok && s != "" {
		return s
	}
	return probe.StateUnknown
}

// names returns profile names with canonical kinds first, then the rest sorted.
func (e Evidence) names() []string {
	out := make([]string, 0, len(e))
	seen := make(map[string]bool, len(e))
	for _, k := range profile.Kinds() {
		if _, ok := e[string(k)]; ok {
			out = append(out, string(k))
			seen[string(k)] = true
		}
	}
	var rest []string
	for name := range e {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func (e Evidence) known() []string {
	var out []string
	for _, name := range e.names() {
		if e[name].Known() {
			out = append(out, name)
		}
	}
	return out
}

// String renders the map as "SYN=open ACK=filtered ...".
func (e Evidence) String() string {
	parts := make([]string, 0, len(e))
	for _, name := range e.names() {
		parts = append(parts, fmt.Sprintf("%s=%s", name, e[name]))
	}
	return strings.Join(parts, " ")
}

// Rule is one row of the decision table.
type Rule struct {
	Name           string
	Classification Classification
	Confidence     Confidence
	// Match returns the rationale when the rule applies.
	Match func(Evidence) (string, bool)
}

// Classifier applies an ordered rule table to port evidence. It is pure.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier with the given rule precedence. An empty
// order means DefaultRuleOrder. The inconsistent rule is always evaluated last.
func NewClassifier(order []string) (*Classifier, error) {
	if len(order) == 0 {
		order = DefaultRuleOrder
	}

	byName := make(map[string]Rule)
	for _, r := range builtinRules() {
		byName[r.Name] = r
	}

	seen := make(map[string]bool, len(order))
	rules := make([]Rule, 0, len(byName))
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == RuleInconsistent {
			continue
		}
		r, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown classifier rule %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate classifier rule %q", name)
		}
		seen[name] = true
		rules = append(rules, r)
	}
	return &Classifier{rules: rules}, nil
}

// Rules returns the configured precedence.
func (c *Classifier) Rules() []string {
	out := make([]string, 0, len(c.rules)+1)
	for _, r := range c.rules {
		out = append(out, r.Name)
	}
	return append(out, RuleInconsistent)
}

// Classify labels a single port.
func (c *Classifier) Classify(e Evidence) (Classification, Confidence, string) {
	if len(e.known()) == 0 {
		return ClassUndetermined, ConfidenceNone, "no technique produced a usable observation for this port"
	}
	for _, r := range c.rules {
		if why, ok := r.Match(e); ok {
			return r.Classification, r.Confidence, why
		}
	}
	return ClassInconsistent, ConfidenceLow, "techniques disagree, review raw states: " + e.String()
}

// Apply classifies every verdict in place.
func (c *Classifier) Apply(verdicts []PortVerdict) {
	for i := range verdicts {
		class, conf, why := c.Classify(Evidence(verdicts[i].States))
		verdicts[i].Classification = class
		verdicts[i].Confidence = conf
		verdicts[i].Rationale = why
	}
}

func builtinRules() []Rule {
	return []Rule{
		{
			Name:           RuleOpenUnfiltered,
			Classification: ClassOpenUnfiltered,
			Confidence:     ConfidenceHigh,
			Match: func(e Evidence) (string, bool) {
				if e.kind(profile.KindSYN) == probe.StateOpen && e.kind(profile.KindACK) == probe.StateOpen {
					return "SYN reports open and ACK reports unfiltered: no rule blocks this port", true
				}
				return "", false
			},
		},
		{
			Name:           RuleStatelessFilter,
			Classification: ClassStatelessFilter,
			Confidence:     ConfidenceMedium,
			Match:          matchStatelessFilter,
		},
		{
			Name:           RuleStatefulFirewall,
			Classification: ClassStatefulFirewall,
			Confidence:     ConfidenceHigh,
			Match:          matchStatefulFirewall,
		},
		{
			Name:           RuleStatelessFilterStrict,
			Classification: ClassStatelessFilter,
			Confidence:     ConfidenceMedium,
			Match:          matchStatelessFilterStrict,
		},
		{
			Name:           RuleStatefulFirewallStrict,
			Classification: ClassStatefulFirewall,
			Confidence:     ConfidenceHigh,
			Match: func(e Evidence) (string, bool) {
				why, ok := matchStatefulFirewall(e)
				if !ok {
					return "", false
				}
				// WINDOW is also ACK-based; it must not contradict ACK.
				switch e.kind(profile.KindWindow) {
				case probe.StateUnknown, probe.StateFiltered, probe.StateOpenFiltered:
					return why, true
				}
				return "", false
			},
		},
		{
			Name:           RuleFullyFiltered,
			Classification: ClassFullyFiltered,
			Confidence:     ConfidenceLow,
			Match: func(e Evidence) (string, bool) {
				known := e.known()
				for _, name := range known {
					switch e[name] {
					case probe.StateFiltered, probe.StateOpenFiltered:
					default:
						return "", false
					}
				}
				return fmt.Sprintf("every responding technique (%s) reports filtered or no response", strings.Join(known, ", ")), true
			},
		},
	}
}

func matchStatefulFirewall(e Evidence) (string, bool) {
	if e.kind(profile.KindSYN) != probe.StateOpen || e.kind(profile.KindACK) != probe.StateFiltered {
		return "", false
	}
	return "SYN reports open while ACK reports filtered: the handshake is allowed but unsolicited ACKs are dropped", true
}

// flagScans splits FIN/NULL/XMAS into those reporting open and those that
// got no response.
func flagScans(e Evidence) (open, silent []string) {
	for _, k := range []profile.Kind{profile.KindFIN, profile.KindNULL, profile.KindXMAS} {
		switch e.kind(k) {
		case probe.StateOpen:
			open = append(open, string(k))
		case probe.StateOpenFiltered:
			silent = append(silent, string(k))
		}
	}
	return open, silent
}

func synBlocked(e Evidence) (probe.State, bool) {
	syn := e.kind(profile.KindSYN)
	return syn, syn == probe.StateFiltered || syn == probe.StateOpenFiltered
}

func matchStatelessFilter(e Evidence) (string, bool) {
	syn, ok := synBlocked(e)
	if !ok {
		return "", false
	}
	open, silent := flagScans(e)
	switch {
	case len(open) > 0:
		return fmt.Sprintf("SYN reports %s while %s report open: flag-based probes pass a filter that blocks SYN", syn, strings.Join(open, ", ")), true
	case len(silent) > 0:
		return fmt.Sprintf("SYN reports %s while %s get no response: a packet filter is dropping SYN without tracking state", syn, strings.Join(silent, ", ")), true
	}
	return "", false
}

// matchStatelessFilterStrict accepts silent flag scans only when some other
// technique drew a definite reply.
func matchStatelessFilterStrict(e Evidence) (string, bool) {
	syn, ok := synBlocked(e)
	if !ok {
		return "", false
	}
	open, silent := flagScans(e)
	if len(open) > 0 {
		return matchStatelessFilter(e)
	}
	if len(silent) == 0 {
		return "", false
	}

	var responders []string
	for _, name := range e.known() {
		if name == string(profile.KindSYN) {
			continue
		}
		if s := e[name]; s == probe.StateOpen || s == probe.StateClosed {
			responders = append(responders, name)
		}
	}
	if len(responders) == 0 {
		return "", false
	}
	return fmt.Sprintf("SYN reports %s while %s get no response and %s answer: the filter matches on SYN only",
		syn, strings.Join(silent, ", "), strings.Join(responders, ", ")), true
}
