// Package contractid parses and formats option contract identifiers.
//
// Two input formats are accepted: a dashed human form
// (ROOT-YYYY-MM-DD-STRIKE-{C|P}, root may itself contain dashes) and OCC
// form (root + YYMMDD + {C|P} + 8-digit strike scaled by 1e3). Parse failures
// never panic: callers get a zero Contract and ok=false, and degrade
// gracefully (feature enrichment just skips underlying lookups).
package contractid

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Right is the option type, call or put.
type Right string

const (
	Call Right = "C"
	Put  Right = "P"
)

// Contract is the decoded form of an option symbol.
type Contract struct {
	Root   string
	Expiry time.Time // UTC, midnight
	Strike float64
	Right  Right
}

// String re-renders the contract in dashed form.
func (c Contract) String() string {
	return fmt.Sprintf("%s-%s-%s-%s", c.Root, c.Expiry.Format("2006-01-02"), formatStrike(c.Strike), c.Right)
}

func formatStrike(strike float64) string {
	s := strconv.FormatFloat(strike, 'f', -1, 64)
	return s
}

// Parse decodes a dashed or OCC contract identifier. ok is false when the
// identifier matches neither format; callers must treat that as "not a
// contract" rather than an error worth propagating.
func Parse(id string) (c Contract, ok bool) {
	if id == "" {
		return Contract{}, false
	}
	if c, ok := parseDashed(id); ok {
		return c, true
	}
	if c, ok := parseOCC(id); ok {
		return c, true
	}
	return Contract{}, false
}

// parseDashed handles ROOT-YYYY-MM-DD-STRIKE-{C|P}. The root may contain
// dashes, so we parse from the right: right is the last token, strike is the
// second-to-last, and the three before that are the date, leaving the root
// as everything else.
func parseDashed(id string) (Contract, bool) {
	parts := strings.Split(id, "-")
	if len(parts) < 6 {
		return Contract{}, false
	}
	right := Right(strings.ToUpper(parts[len(parts)-1]))
	if right != Call && right != Put {
		return Contract{}, false
	}
	strike, err := strconv.ParseFloat(parts[len(parts)-2], 64)
	if err != nil || strike < 0 {
		return Contract{}, false
	}
	day := parts[len(parts)-3]
	month := parts[len(parts)-4]
	year := parts[len(parts)-5]
	dateStr := fmt.Sprintf("%s-%s-%s", year, month, day)
	expiry, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return Contract{}, false
	}
	root := strings.Join(parts[:len(parts)-5], "-")
	if root == "" {
		return Contract{}, false
	}
	return Contract{Root: root, Expiry: expiry, Strike: strike, Right: right}, true
}

// parseOCC handles the last-15-characters-are-fixed-width OCC encoding:
// YYMMDD{C|P}SSSSSSSS, strike scaled by 1e3. Everything before is the root.
func parseOCC(id string) (Contract, bool) {
	if len(id) < 16 {
		return Contract{}, false
	}
	tail := id[len(id)-15:]
	root := strings.TrimSpace(id[:len(id)-15])
	if root == "" {
		return Contract{}, false
	}
	yy, mm, dd := tail[0:2], tail[2:4], tail[4:6]
	rightStr := strings.ToUpper(tail[6:7])
	right := Right(rightStr)
	if right != Call && right != Put {
		return Contract{}, false
	}
	strikeRaw := tail[7:15]
	strikeInt, err := strconv.ParseInt(strikeRaw, 10, 64)
	if err != nil {
		return Contract{}, false
	}
	year, err := strconv.Atoi(yy)
	if err != nil {
		return Contract{}, false
	}
	fullYear := 2000 + year
	dateStr := fmt.Sprintf("%04d-%s-%s", fullYear, mm, dd)
	expiry, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return Contract{}, false
	}
	return Contract{
		Root:   root,
		Expiry: expiry,
		Strike: float64(strikeInt) / 1000.0,
		Right:  right,
	}, true
}

// DaysToExpiry returns whole days between `from` (UTC) and the contract's
// expiry date, truncated to the calendar date (ignores time-of-day).
func (c Contract) DaysToExpiry(from time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	return int(c.Expiry.Sub(fromDay).Hours() / 24)
}

// IsZeroDTE reports whether the contract expires on the same UTC calendar
// date as `at`.
func (c Contract) IsZeroDTE(at time.Time) bool {
	atUTC := at.UTC()
	return c.Expiry.Year() == atUTC.Year() && c.Expiry.Month() == atUTC.Month() && c.Expiry.Day() == atUTC.Day()
}
