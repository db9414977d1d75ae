// Package classify maps market tickers onto (category, subcategory) labels
// used to group legs in the operator UI. Classification is best-effort and
// total: any ticker it does not recognize lands in (Other, Unknown).
package classify

import "strings"

// Category is the top-level grouping, usually a league.
type Category string

// Subcategory is the market type within a category.
type Subcategory string

const (
	CategoryNFL   Category = "NFL"
	CategoryNBA   Category = "NBA"
	CategoryNHL   Category = "NHL"
	CategoryOther Category = "Other"

	SubSpreads    Subcategory = "Spreads"
	SubTotals     Subcategory = "Totals"
	SubMoneylines Subcategory = "Moneylines"
	SubMultiGame  Subcategory = "Multi-Game Parlays"
	SubOther      Subcategory = "Other"
	SubUnknown    Subcategory = "Unknown"
)

// Classify labels a market ticker and side string. Rules are checked in
// precedence order within a league: spread keywords, then total keywords,
// then moneyline patterns, then player-prop stat keywords. The first match
// wins. It never fails.
func Classify(marketTicker, side string) (Category, Subcategory) {
	ticker := strings.ToUpper(marketTicker)
	sideUpper := strings.ToUpper(side)

	switch {
	case strings.Contains(ticker, "NFL"):
		return CategoryNFL, classifyNFL(ticker, sideUpper)
	case strings.Contains(ticker, "NBA"):
		return CategoryNBA, classifyNBA(ticker, sideUpper)
	case strings.Contains(ticker, "NHL"):
		return CategoryNHL, classifyNHL(ticker, sideUpper)
	case strings.Contains(ticker, "SPORTSMULTIGAME"):
		return CategoryOther, SubMultiGame
	default:
		return CategoryOther, SubUnknown
	}
}

func isSpread(ticker string) bool {
	return strings.Contains(ticker, "SPRD") || strings.Contains(ticker, "SPREAD")
}

func isTotal(ticker, side string) bool {
	return strings.Contains(ticker, "TOTL") || strings.Contains(ticker, "TOTAL") ||
		strings.Contains(side, "OVER") || strings.Contains(side, "UNDER")
}

func classifyNFL(ticker, side string) Subcategory {
	switch {
	case isSpread(ticker):
		return SubSpreads
	case isTotal(ticker, side):
		return SubTotals
	case strings.Contains(ticker, "NFLGAME"):
		return SubMoneylines
	case strings.Contains(ticker, "NFLANYTD") || strings.Contains(ticker, "NFLFIRSTTD"):
		return "Player Props - Touchdowns"
	case strings.Contains(ticker, "NFLSINGLEGAME"):
		switch {
		case strings.Contains(ticker, "PASS") || strings.Contains(ticker, "YDS"):
			return "Player Props - Passing"
		case strings.Contains(ticker, "RUSH"):
			return "Player Props - Rushing"
		case strings.Contains(ticker, "REC"):
			return "Player Props - Receiving"
		default:
			return "Player Props - Other"
		}
	default:
		return SubOther
	}
}

func classifyNBA(ticker, side string) Subcategory {
	switch {
	case isSpread(ticker):
		return SubSpreads
	case isTotal(ticker, side):
		return SubTotals
	case strings.Contains(ticker, "NBAGAME"):
		return SubMoneylines
	case strings.Contains(ticker, "NBAPTS") || strings.Contains(ticker, "POINTS"):
		return "Player Props - Points"
	case strings.Contains(ticker, "AST") || strings.Contains(ticker, "ASSISTS"):
		return "Player Props - Assists"
	case strings.Contains(ticker, "REB") || strings.Contains(ticker, "REBOUNDS"):
		return "Player Props - Rebounds"
	case strings.Contains(ticker, "THREE") || strings.Contains(ticker, "3PT"):
		return "Player Props - Threes"
	case strings.Contains(ticker, "NBASINGLEGAME"):
		return "Player Props - Other"
	default:
		return SubOther
	}
}

func classifyNHL(ticker, side string) Subcategory {
	switch {
	case isSpread(ticker):
		return SubSpreads
	case isTotal(ticker, side):
		return SubTotals
	case strings.Contains(ticker, "NHLGAME"):
		return SubMoneylines
	default:
		return SubOther
	}
}
