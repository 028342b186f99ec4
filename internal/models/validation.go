package models

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 1000
	MaxUserIDLength      = 255

	// AllocationScale matches the NUMERIC(6,3) allocation column.
	AllocationScale = 3
)

var (
	// AllocationTolerance is how far the allocation total may stray from 100.
	AllocationTolerance = decimal.RequireFromString("0.01")
	hundred             = decimal.NewFromInt(100)

	tickerRegex = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)
)

func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func ValidTicker(s string) bool {
	return tickerRegex.MatchString(s)
}

// RoundAllocation rounds a percentage the way the database stores it.
func RoundAllocation(a float64) float64 {
	return decimal.NewFromFloat(a).Round(AllocationScale).InexactFloat64()
}

// AllocationTotal sums target allocations without float drift.
func AllocationTotal(positions []Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(decimal.NewFromFloat(p.TargetAllocation))
	}
	return total
}

// AllocationsBalanced reports whether the allocations sum to 100 within
// AllocationTolerance.
func AllocationsBalanced(positions []Position) bool {
	return AllocationTotal(positions).Sub(hundred).Abs().LessThanOrEqual(AllocationTolerance)
}

// ValidatePortfolio trims the name, then checks scalar fields and
// positions, reporting every offending field at once.
func ValidatePortfolio(p *Portfolio) error {
	fields := map[string]string{}

	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.Name == "":
		fields["name"] = "is required"
	case utf8.RuneCountInString(p.Name) > MaxNameLength:
		fields["name"] = fmt.Sprintf("must not exceed %d characters", MaxNameLength)
	}

	switch {
	case strings.TrimSpace(p.UserID) == "":
		fields["user_id"] = "is required"
	case utf8.RuneCountInString(p.UserID) > MaxUserIDLength:
		fields["user_id"] = fmt.Sprintf("must not exceed %d characters", MaxUserIDLength)
	}

	if utf8.RuneCountInString(p.Description) > MaxDescriptionLength {
		fields["description"] = fmt.Sprintf("must not exceed %d characters", MaxDescriptionLength)
	}
	if !p.StrategyType.Valid() {
		fields["strategy_type"] = "must be one of: conservative, moderate, aggressive"
	}
	if !p.RebalancingFrequency.Valid() {
		fields["rebalancing_frequency"] = "must be one of: daily, weekly, monthly, quarterly, annually"
	}

	collectPositionErrors(p.Positions, fields)

	if len(fields) > 0 {
		return apperrors.Validation("invalid portfolio", fields)
	}
	return nil
}

// ValidatePositions checks a replacement set of positions.
func ValidatePositions(positions []Position) error {
	fields := map[string]string{}
	collectPositionErrors(positions, fields)
	if len(fields) > 0 {
		return apperrors.Validation("invalid positions", fields)
	}
	return nil
}

func collectPositionErrors(positions []Position, fields map[string]string) {
	if len(positions) == 0 {
		return
	}

	seen := make(map[string]int, len(positions))
	for i, p := range positions {
		key := fmt.Sprintf("positions[%d]", i)
		if !ValidTicker(p.TickerSymbol) {
			fields[key+".ticker"] = "must be 1-10 characters of A-Z, 0-9, '.' or '-' starting with a letter"
		} else if first, dup := seen[p.TickerSymbol]; dup {
			fields[key+".ticker"] = fmt.Sprintf("duplicates positions[%d]", first)
		} else {
			seen[p.TickerSymbol] = i
		}
		if p.TargetAllocation <= 0 || p.TargetAllocation > 100 {
			fields[key+".allocation"] = "must be greater than 0 and at most 100"
		}
	}

	if !AllocationsBalanced(positions) {
		fields["positions"] = fmt.Sprintf("allocations sum to %s%%, expected 100%%",
			AllocationTotal(positions).StringFixed(2))
	}
}
