// Package points derives the requested Steam points quantity from a raw
// marketplace order.
package points

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/funpay-tools/steampoints-bot/internal/funpay"
)

var (
	// Explicit "1000 points" / "1000 очков" phrase in a lot title.
	rePointsPhrase = regexp.MustCompile(`(?i)(\d[\d\s]*)\s*(?:очков|очка|очки|points?|pts)`)
	// "от 100" / "from 100" marks lots where the buyer picks the quantity
	// explicitly; such titles must not drive inference. \b is ASCII-only
	// in RE2 and never fires before Cyrillic, so the boundary is spelled
	// out by hand.
	reStartingFrom = regexp.MustCompile(`(?i)(?:^|[^\p{L}\d])(?:от|from)\s+\d`)
	reNumber       = regexp.MustCompile(`\d[\d\s]*`)
)

// Resolver derives the total requested unit count from an order snapshot.
type Resolver struct {
	// MinPoints is the smallest per-unit value title inference may accept.
	MinPoints int
	// LotMultipliers maps lot id to a fixed points-per-unit value that
	// overrides any inference.
	LotMultipliers map[int64]int
	// TitleInference enables deriving the per-unit value from lot titles.
	TitleInference bool
}

// Resolve returns the total requested units and a provenance tag.
// Precedence: lot multiplier or title inference (x item count), then buyer
// params in their stored order, then the raw item count. ok is false when
// nothing yields a positive integer.
func (r *Resolver) Resolve(order *funpay.Order) (units int, source string, ok bool) {
	if order == nil {
		return 0, "not_found", false
	}

	if perUnit, src, found := r.perUnitValue(order); found {
		count := order.Amount
		if count < 1 {
			count = 1
		}
		return perUnit * count, fmt.Sprintf("%s:x%d", src, count), true
	}

	for _, p := range order.BuyerParams {
		if n, parsed := parseUnits(p.Value); parsed {
			return n, "buyer_params:" + p.Name, true
		}
	}

	if order.Amount >= 1 {
		return order.Amount, "amount", true
	}

	return 0, "not_found", false
}

func (r *Resolver) perUnitValue(order *funpay.Order) (int, string, bool) {
	if m, found := r.LotMultipliers[order.LotID]; found && m > 0 {
		return m, "lot_multiplier", true
	}
	if !r.TitleInference {
		return 0, "", false
	}
	if n, found := r.inferFromTitle(order.Title); found {
		return n, "title", true
	}
	return 0, "", false
}

// inferFromTitle extracts a per-unit points value from a lot title. An
// explicit "N points" phrase wins; otherwise the largest embedded number
// that is >= MinPoints and a multiple of 100 is used. A "starting from N"
// marker disables inference entirely.
func (r *Resolver) inferFromTitle(title string) (int, bool) {
	title = strings.TrimSpace(title)
	if title == "" || reStartingFrom.MatchString(title) {
		return 0, false
	}
	if m := rePointsPhrase.FindStringSubmatch(title); m != nil {
		if n, ok := parseUnits(m[1]); ok {
			return n, true
		}
	}
	best := 0
	for _, raw := range reNumber.FindAllString(title, -1) {
		n, ok := parseUnits(raw)
		if !ok {
			continue
		}
		if n >= r.MinPoints && n%100 == 0 && n > best {
			best = n
		}
	}
	return best, best > 0
}

// parseUnits parses a positive integer, tolerating surrounding whitespace
// and embedded thousands spaces. Any failure means absence.
func parseUnits(s string) (int, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
