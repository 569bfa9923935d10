// Package ordering validates that a record stream is chronological.
// It never sorts: the source order is authoritative and only checked.
package ordering

import (
	"fmt"
	"strings"

	"tick-wrangler/market"
)

// Policy decides what happens to records sharing the previous timestamp.
// A strictly decreasing timestamp is rejected under every policy.
type Policy uint8

const (
	// AllowDuplicates keeps ties in input order.
	AllowDuplicates Policy = iota
	// Strict requires strictly increasing timestamps; a tie aborts.
	Strict
	// DropDuplicates keeps the first record of a tie and reports the rest.
	DropDuplicates
)

func (p Policy) String() string {
	switch p {
	case Strict:
		return "strict"
	case DropDuplicates:
		return "drop-duplicates"
	default:
		return "allow-duplicates"
	}
}

// ParsePolicy accepts strict | drop-duplicates | allow-duplicates ("" is the default).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow-duplicates", "allow_duplicates", "allow":
		return AllowDuplicates, nil
	case "strict":
		return Strict, nil
	case "drop-duplicates", "drop_duplicates", "drop":
		return DropDuplicates, nil
	}
	return AllowDuplicates, fmt.Errorf("unknown ordering policy %q", s)
}

// Decision is the outcome of Accept.
type Decision uint8

const (
	Keep Decision = iota
	Drop
)

// Orderer checks one stream in a single forward pass; its only state is
// the last accepted timestamp.
type Orderer struct {
	policy Policy
	last   int64
	seen   bool
}

func New(policy Policy) *Orderer {
	return &Orderer{policy: policy}
}

func (o *Orderer) Policy() Policy { return o.policy }

// Accept validates the record at input row with timestamp ts.
// Drop comes with a *market.RowError (ErrDuplicateTimestamp) for the reject
// report; a non-nil error with Keep means abort (ErrOutOfOrder).
func (o *Orderer) Accept(row int, ts int64) (Decision, error) {
	if !o.seen {
		o.seen = true
		o.last = ts
		return Keep, nil
	}
	switch {
	case ts > o.last:
		o.last = ts
		return Keep, nil
	case ts < o.last:
		return Keep, o.outOfOrder(row, ts, fmt.Sprintf("timestamp %d precedes last accepted %d", ts, o.last))
	}
	switch o.policy {
	case Strict:
		return Keep, o.outOfOrder(row, ts, fmt.Sprintf("timestamp %d repeats last accepted (strict policy)", ts))
	case DropDuplicates:
		return Drop, market.NewRowError(market.ErrDuplicateTimestamp, row, "", "", "dropped by drop-duplicates policy").WithTimestamp(ts)
	default:
		return Keep, nil
	}
}

// Last returns the last accepted timestamp and whether any was accepted.
func (o *Orderer) Last() (int64, bool) { return o.last, o.seen }

func (o *Orderer) outOfOrder(row int, ts int64, cause string) error {
	return market.NewRowError(market.ErrOutOfOrder, row, "", "", cause).WithTimestamp(ts)
}
