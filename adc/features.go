package adc

import "strings"

// Feature is a four-letter ADC extension tag such as "BASE" or "TIGR".
type Feature string

// FeatureSet is an unordered set of supported features, as carried by a
// SUP message's "+XXXX"/"-XXXX" tokens or an INF's SU key.
type FeatureSet map[Feature]bool

// ParseSupportTokens turns SUP's "+XXXX"/"-XXXX" tokens (tokens[1:]) into a
// FeatureSet; a "-" entry is recorded as false (explicitly unsupported).
func ParseSupportTokens(tokens []string) FeatureSet {
	fs := make(FeatureSet, len(tokens))
	for _, t := range tokens {
		if len(t) != 5 {
			continue
		}
		switch t[0] {
		case '+':
			fs[Feature(t[1:])] = true
		case '-':
			fs[Feature(t[1:])] = false
		}
	}
	return fs
}

// Has reports whether a feature is present and enabled.
func (fs FeatureSet) Has(f Feature) bool { return fs[f] }

// SupportTokens renders the set back into SUP tokens ("+XXXX"/"-XXXX"),
// in no particular order.
func (fs FeatureSet) SupportTokens() []string {
	out := make([]string, 0, len(fs))
	for f, on := range fs {
		if on {
			out = append(out, "+"+string(f))
		} else {
			out = append(out, "-"+string(f))
		}
	}
	return out
}

// ParseSUList parses an INF "SU" value: a comma-separated list of feature
// tags, all implicitly supported.
func ParseSUList(su string) FeatureSet {
	fs := make(FeatureSet)
	if su == "" {
		return fs
	}
	for _, f := range strings.Split(su, ",") {
		if f != "" {
			fs[Feature(f)] = true
		}
	}
	return fs
}

// FeatureClause is one "(+|-)XXXX" predicate from an F-type selector.
type FeatureClause struct {
	Feature Feature
	Require bool // true: peer must have the feature; false: must lack it
}

// ParseFeatureSelector parses the "(+|-)XXXX" clauses that follow an
// F-type command's SID token (spec.md §4.3 broadcast_feature).
func ParseFeatureSelector(tokens []string) ([]FeatureClause, error) {
	clauses := make([]FeatureClause, 0, len(tokens))
	for _, t := range tokens {
		if len(t) != 5 || (t[0] != '+' && t[0] != '-') {
			return nil, ErrBadToken
		}
		clauses = append(clauses, FeatureClause{
			Feature: Feature(t[1:]),
			Require: t[0] == '+',
		})
	}
	return clauses, nil
}

// Matches reports whether a peer's feature set satisfies every clause.
func Matches(clauses []FeatureClause, peer FeatureSet) bool {
	for _, c := range clauses {
		if peer.Has(c.Feature) != c.Require {
			return false
		}
	}
	return true
}
