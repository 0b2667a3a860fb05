package ves

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sig-0/vedollar/storage/types"
)

// RedenominationFactor is the VES -> VED rescaling factor
const RedenominationFactor int64 = 1_000_000

// Location is the fixed Venezuelan timezone (UTC-4) all sources report in
var Location = time.FixedZone("VET", -4*60*60)

// RedenominationDay is the VES -> VED cutover instant. Anything strictly
// before it is expressed in VES
var RedenominationDay = time.Date(2021, time.October, 1, 0, 0, 0, 0, Location)

// Normalize aligns a raw fixed-point rate to the post-redenomination unit.
// It must be applied exactly once per observation, at parse time
func Normalize(raw int64, at time.Time) int64 {
	if !at.Before(RedenominationDay) {
		return raw
	}

	return floorDiv(raw, RedenominationFactor)
}

// toFixedPoint scales a decimal rate to the fixed-point representation,
// truncating any precision beyond it
func toFixedPoint(v decimal.Decimal) int64 {
	return v.Mul(decimal.NewFromInt(types.Scale)).Truncate(0).IntPart()
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}

	return q
}
