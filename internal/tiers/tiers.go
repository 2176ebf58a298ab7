// Package tiers provides the rate-indexed lookup over configured
// subscription tiers.
package tiers

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"gopkg.in/yaml.v3"
)

// Rate is a full-precision payment rate. It serializes as a numeric string
// so values wider than 64 bits survive JSON and YAML round trips intact.
type Rate struct {
	value big.Int
}

// NewRate creates a Rate from a uint64
func NewRate(v uint64) Rate {
	var r Rate
	r.value.SetUint64(v)
	return r
}

// ParseRate parses a base-10 numeric string into a Rate. Negative values
// are rejected.
func ParseRate(s string) (Rate, error) {
	var r Rate
	if _, ok := r.value.SetString(s, 10); !ok {
		return Rate{}, fmt.Errorf("invalid payment rate %q: not a base-10 integer", s)
	}
	if r.value.Sign() < 0 {
		return Rate{}, fmt.Errorf("invalid payment rate %q: must not be negative", s)
	}
	return r, nil
}

// Cmp compares r against other, returning -1, 0 or 1.
func (r Rate) Cmp(other Rate) int {
	return r.value.Cmp(&other.value)
}

// String returns the base-10 representation
func (r Rate) String() string {
	return r.value.String()
}

// MarshalJSON encodes the rate as a numeric string
func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.value.String() + `"`), nil
}

// UnmarshalJSON decodes a numeric string, accepting a bare number as well
func (r *Rate) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	parsed, err := ParseRate(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalYAML encodes the rate as a numeric string
func (r Rate) MarshalYAML() (any, error) {
	return r.value.String(), nil
}

// UnmarshalYAML decodes a scalar numeric string
func (r *Rate) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseRate(node.Value)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Tier is one billing tier: the payment rate that buys it and the query
// capacity it grants.
type Tier struct {
	PaymentRate       Rate    `json:"payment_rate" yaml:"payment_rate"`
	QueriesPerMinute  uint32  `json:"queries_per_minute" yaml:"queries_per_minute"`
	MonthlyQueryLimit *uint64 `json:"monthly_query_limit,omitempty" yaml:"monthly_query_limit,omitempty"`
}

// Tiers is an immutable rate-ordered tier table. Lookups are pure and total:
// every rate maps to some tier, with the zero-capability tier as the floor.
type Tiers struct {
	tiers []Tier
}

// New builds a tier table from the given definitions. The slice is copied
// and sorted ascending by payment rate; the sort is stable, so tiers sharing
// a rate keep their insertion order and the first inserted one wins lookups.
func New(defs []Tier) *Tiers {
	sorted := make([]Tier, len(defs))
	copy(sorted, defs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PaymentRate.Cmp(sorted[j].PaymentRate) < 0
	})
	return &Tiers{tiers: sorted}
}

// All returns the tiers in ascending rate order
func (t *Tiers) All() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// Len returns the number of configured tiers
func (t *Tiers) Len() int {
	return len(t.tiers)
}

// TierForRate returns the highest tier whose payment rate does not exceed
// rate. When even the lowest tier costs more than rate, the zero-capability
// default tier is returned.
func (t *Tiers) TierForRate(rate Rate) Tier {
	// First tier strictly above rate; everything before it qualifies.
	idx := sort.Search(len(t.tiers), func(i int) bool {
		return t.tiers[i].PaymentRate.Cmp(rate) > 0
	})
	if idx == 0 {
		return Tier{}
	}
	// Equal rates keep insertion order, so walk back to the first of the
	// qualifying run sharing the winning rate.
	winner := idx - 1
	for winner > 0 && t.tiers[winner-1].PaymentRate.Cmp(t.tiers[winner].PaymentRate) == 0 {
		winner--
	}
	return t.tiers[winner]
}

// NextTierAbove returns the lowest tier whose payment rate is strictly above
// rate. ok is false when rate is at or beyond the top tier.
func (t *Tiers) NextTierAbove(rate Rate) (Tier, bool) {
	idx := sort.Search(len(t.tiers), func(i int) bool {
		return t.tiers[i].PaymentRate.Cmp(rate) > 0
	})
	if idx == len(t.tiers) {
		return Tier{}, false
	}
	return t.tiers[idx], true
}
