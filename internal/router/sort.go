package router

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"bridgeScope/internal/model"
)

var one = decimal.NewFromInt(1)

// SortRoutes orders routes by USD output per unit of input, best first. Routes
// from preferred keep their place ahead of a competitor unless the competitor's
// ratio beats theirs by more than margin. Equal routes keep their order.
func SortRoutes(routes []model.BridgeRoute, preferred string, margin decimal.Decimal) {
	boost := one.Add(margin)
	isPreferred := func(r model.BridgeRoute) bool {
		return preferred != "" && strings.EqualFold(r.Source, preferred)
	}

	sort.SliceStable(routes, func(i, j int) bool {
		a, b := routes[i], routes[j]
		switch {
		case isPreferred(a) && !isPreferred(b):
			return !outranks(b, one, a, boost)
		case isPreferred(b) && !isPreferred(a):
			return outranks(a, one, b, boost)
		default:
			return outranks(a, one, b, one)
		}
	})
}

// outranks reports whether a's ratio scaled by wa exceeds b's ratio scaled by wb.
// Ratios are compared by cross-multiplication so wei-sized inputs lose no precision.
// A route with no input scores zero.
func outranks(a model.BridgeRoute, wa decimal.Decimal, b model.BridgeRoute, wb decimal.Decimal) bool {
	if !hasInput(a) {
		return false
	}
	if !hasInput(b) {
		return a.AmountOutUSD.Mul(wa).IsPositive()
	}
	lhs := a.AmountOutUSD.Mul(wa).Mul(decimal.NewFromBigInt(b.AmountIn, 0))
	rhs := b.AmountOutUSD.Mul(wb).Mul(decimal.NewFromBigInt(a.AmountIn, 0))
	return lhs.GreaterThan(rhs)
}

func hasInput(r model.BridgeRoute) bool {
	return r.AmountIn != nil && r.AmountIn.Sign() > 0
}
