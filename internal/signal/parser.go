package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Alert template recognition. Patterns follow the alert service's fixed
// phrasing: a strategy line, an expiration, signed legs, a limit range and
// a size indicator.
var (
	legRe         = regexp.MustCompile(`(?i)([+-]\d+)\s+(\d+(?:\.\d+)?)\s*([CP])\b`)
	sellOpenRe    = regexp.MustCompile(`(?i)sell\s+(?:to\s+open\s+)?(?:the\s+)?(\d+(?:\.\d+)?)\s*(call|put)\b`)
	buyOpenRe     = regexp.MustCompile(`(?i)buy\s+(?:to\s+open\s+)?(?:the\s+)?(\d+(?:\.\d+)?)\s*(call|put)\b`)
	limitRangeRe  = regexp.MustCompile(`(?i)limit\s+\.?(\d+(?:\.\d+)?)\s*[-–]\s*\.?(\d+(?:\.\d+)?)\s*(debit|credit)?`)
	limitSingleRe = regexp.MustCompile(`(?i)limit\s+\.?(\d+(?:\.\d+)?)\s*(debit|credit)?`)
	sizePctRe     = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%\s*size`)
	buyingPowerRe = regexp.MustCompile(`(?i)\$\d+(?:,\d+)*(?:\.\d+)?\s*(?:in\s+)?(?:buying\s+power|bp)\b`)
	contractsRe   = regexp.MustCompile(`(?i)\b(\d+)\s*(?:contract|lot)s?\b`)
	sharesRe      = regexp.MustCompile(`(?i)\b(\d+)\s*shares?\b`)
	dateExpRe     = regexp.MustCompile(`(?i)(\d{1,2})/(\d{1,2})/(\d{2,4})\s*(?:exp|expiration)?`)
	monthExpRe    = regexp.MustCompile(`(?i)\b([a-z]+)\s+exp\b`)
	upperWordRe   = regexp.MustCompile(`\b([A-Z]{1,5})\b`)
	putWordRe     = regexp.MustCompile(`(?i)\bputs?\b`)
	callWordRe    = regexp.MustCompile(`(?i)\bcalls?\b`)
	putLegRe      = regexp.MustCompile(`\d+\s*P\b`)
	callLegRe     = regexp.MustCompile(`\d+\s*C\b`)
	strikeRightRe = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*([CP])\b`)
	dollarRightRe = regexp.MustCompile(`(?i)\$(\d+(?:\.\d+)?)\s+(calls?|puts?)`)
)

var exitRes = compileAll(
	`\bexit\b`,
	`\btake profits?\b`,
	`\bcut\s+(?:the\s+)?position\b`,
	`\bclose\s+(?:the\s+)?position\b`,
	`\bclose\s+(?:it|this)\b`,
	`\bclosing\b.*\bposition\b`,
	`\bselling?\s+to\s+close\b`,
	`\bbuy\s+to\s+close\b`,
	`\btrim(?:ming)?\b`,
)

var nonSignalRes = compileAll(
	`\bwill be assigned\b`,
	`\bgot assigned\b`,
	`\bwas assigned\b`,
	`\bassignment\b`,
	`\bwatch out\b`,
	`\bmarket is doing\b`,
	`\bmarket update\b`,
	`\bhit max profit\b`,
)

// Long-form patterns keep the ticker class case-sensitive. The alert
// templates always write tickers in caps; matching lowercase words here
// turns phrases like "long term" into entries for ticker TERM.
var longRes = compileExact(
	`\b(?i:long)\s+[A-Z]{1,5}\b`,
	`\b(?i:buy(?:ing)?)\s+\d+\s*(?i:shares?)\s+(?:(?i:of)\s+)?[A-Z]{1,5}\b`,
	`\b(?i:buy(?:ing)?)\s+[A-Z]{1,5}\s+(?i:calls?|puts?)\b`,
	`\b(?i:going\s+long)\b`,
)

var longTickerRes = compileExact(
	`\b(?i:going\s+long)\s+(?:(?i:on)\s+)?([A-Z]{1,5})\b`,
	`\b(?i:long)\s+([A-Z]{1,5})\b`,
	`\b(?i:buy(?:ing)?)\s+\d+\s*(?i:shares?)\s+(?:(?i:of)\s+)?([A-Z]{1,5})\b`,
	`\b(?i:buy(?:ing)?)\s+([A-Z]{1,5})\s+(?i:calls?|puts?)\b`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

func compileExact(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func anyMatch(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var knownTickers = []string{
	"SPY", "QQQ", "IWM", "DIA", "SPX", "NDX", "GLD", "SLV", "TLT", "XLF",
	"AAPL", "MSFT", "GOOGL", "GOOG", "AMZN", "META", "TSLA", "NVDA", "AMD",
	"NFLX", "BA", "DIS", "JPM", "WMT", "HD", "NKE", "COST", "MCD", "KO",
	"XOM", "CVX", "CRM", "ADBE", "PYPL", "SHOP", "UBER", "COIN", "ROKU",
	"GME", "AMC", "PLTR", "SOFI", "RIVN", "LCID", "F", "GM", "INTC", "MU",
	"VIX", "USO", "EEM", "FXI", "EWZ", "GDX", "XLE", "XLK",
}

var excludedWords = map[string]bool{
	"LEAP": true, "LEAPS": true, "CALL": true, "PUT": true, "BEAR": true,
	"BULL": true, "DAY": true, "NEXT": true, "THE": true, "AND": true,
	"BUY": true, "SELL": true, "OPEN": true, "CLOSE": true, "LIMIT": true,
	"SIZE": true, "EXP": true, "WITH": true, "FOR": true, "DEBIT": true,
	"CREDIT": true, "SPREAD": true, "IRON": true, "CONDOR": true,
	"LIKE": true, "SHARE": true, "AGO": true, "BULLISH": true, "BEARISH": true,
	"TRIM": true, "EXIT": true, "ON": true, "OF": true, "A": true, "AN": true,
}

// Fingerprint returns the stable hash of an alert's normalized text, used
// as the dedupe key across the system's lifetime.
func Fingerprint(raw string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

// Parse converts raw alert text into a ParsedSignal or explains why it is
// not a signal. Exactly one of the return values is non-nil; Parse never
// panics on any input. now anchors expiration-year resolution and the
// arrival timestamp.
func Parse(raw string, now time.Time) (*ParsedSignal, *NotSignal) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &NotSignal{Reason: "empty alert"}
	}

	if reason := nonSignalReason(text); reason != "" {
		return nil, &NotSignal{Reason: reason}
	}

	if anyMatch(exitRes, text) {
		ticker := extractTickerAnywhere(text)
		if ticker == "" {
			return nil, &NotSignal{Reason: "exit language without a recognizable ticker"}
		}
		return newSignal(raw, now, &ParsedSignal{
			Ticker:    ticker,
			Strategy:  Exit,
			Legs:      extractLegs(text),
			LimitKind: Debit,
			Quantity:  1,
		}), nil
	}

	if sig := parseLongPosition(text, now); sig != nil {
		return newSignal(raw, now, sig), nil
	}

	return parseSpread(raw, text, now)
}

func newSignal(raw string, now time.Time, sig *ParsedSignal) *ParsedSignal {
	sig.Raw = raw
	sig.ReceivedAt = now
	sig.Fingerprint = Fingerprint(raw)
	return sig
}

func nonSignalReason(text string) string {
	lower := strings.ToLower(text)
	if anyMatch(nonSignalRes, text) && !hasTradeStructure(text) {
		return "commentary without trade structure"
	}
	if len(text) < 40 && !anyMatch(longRes, text) && !anyMatch(exitRes, text) {
		return "too short to be an alert"
	}
	if strings.HasPrefix(lower, "like\n") || strings.HasPrefix(lower, "share\n") {
		return "feed chrome, not an alert"
	}
	return ""
}

func hasTradeStructure(text string) bool {
	return legRe.MatchString(text) &&
		strings.Contains(strings.ToLower(text), "limit") &&
		hasSizeIndicator(text)
}

func parseSpread(raw, text string, now time.Time) (*ParsedSignal, *NotSignal) {
	ticker := extractTickerAnywhere(text)
	if ticker == "" {
		return nil, &NotSignal{Reason: "no recognizable ticker"}
	}
	legs := extractLegs(text)
	if len(legs) == 0 {
		return nil, &NotSignal{Reason: "no option legs found"}
	}
	expiration := extractExpiration(text, now)
	if expiration == nil {
		return nil, &NotSignal{Reason: "no expiration date found"}
	}

	sig := &ParsedSignal{
		Ticker:     ticker,
		Expiration: expiration,
		Legs:       legs,
		Quantity:   1,
	}

	limitMin, limitMax, limitKind, haveLimit := extractLimit(text)
	sig.LimitKind = limitKind
	if haveLimit {
		sig.LimitMin, sig.LimitMax = limitMin, limitMax
	}
	sizePct, haveSize := extractSizePct(text)
	sig.SizePct = sizePct
	sig.Strategy = determineStrategy(text, limitKind)

	// Recognizable trade alerts missing a mandatory detail are kept, flagged
	// DEGRADED, so they land in review instead of vanishing.
	switch {
	case !haveLimit:
		sig.Degraded = true
		sig.DegradedReason = "missing limit price"
	case !haveSize && !hasSizeIndicator(text):
		sig.Degraded = true
		sig.DegradedReason = "missing size indicator"
	}

	return newSignal(raw, now, sig), nil
}

func parseLongPosition(text string, now time.Time) *ParsedSignal {
	if !anyMatch(longRes, text) {
		return nil
	}
	ticker := ""
	for _, re := range longTickerRes {
		if m := re.FindStringSubmatch(text); m != nil && !excludedWords[strings.ToUpper(m[1])] {
			ticker = strings.ToUpper(m[1])
			break
		}
	}
	if ticker == "" {
		ticker = extractTickerAnywhere(text)
	}
	if ticker == "" {
		return nil
	}

	quantity := extractLongQuantity(text)
	expiration := extractExpiration(text, now)
	right, haveRight := extractLongRight(text)
	strike := extractLongStrike(text)

	sig := &ParsedSignal{
		Ticker:     ticker,
		Expiration: expiration,
		Quantity:   quantity,
		LimitKind:  Debit,
	}
	if haveRight || expiration != nil || !strike.IsZero() {
		sig.Strategy = LongOption
		if haveRight {
			sig.Legs = []Leg{{Side: Buy, Ratio: 1, Strike: strike, Right: right}}
		}
	} else {
		sig.Strategy = LongStock
	}
	if pct, ok := extractSizePct(text); ok {
		sig.SizePct = pct
	}
	return sig
}

var knownTickerRes = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(knownTickers))
	for i, t := range knownTickers {
		out[i] = regexp.MustCompile(`(?i)\b` + t + `\b`)
	}
	return out
}()

func extractTickerAnywhere(text string) string {
	for i, re := range knownTickerRes {
		if re.MatchString(text) {
			return knownTickers[i]
		}
	}
	for _, m := range upperWordRe.FindAllStringSubmatch(text, -1) {
		w := m[1]
		if excludedWords[w] {
			continue
		}
		if len(w) >= 2 || w == "F" || w == "V" || w == "X" {
			return w
		}
	}
	return ""
}

func extractLegs(text string) []Leg {
	var legs []Leg
	for _, m := range legRe.FindAllStringSubmatch(text, -1) {
		signed, err := strconv.Atoi(m[1])
		if err != nil || signed == 0 {
			continue
		}
		side := Buy
		if signed < 0 {
			side = Sell
			signed = -signed
		}
		legs = append(legs, Leg{Side: side, Ratio: signed, Strike: dec(m[2]), Right: rightFromLetter(m[3])})
	}
	if len(legs) > 0 {
		return legs
	}
	for _, m := range sellOpenRe.FindAllStringSubmatch(text, -1) {
		legs = append(legs, Leg{Side: Sell, Ratio: 1, Strike: dec(m[1]), Right: rightFromWord(m[2])})
	}
	for _, m := range buyOpenRe.FindAllStringSubmatch(text, -1) {
		legs = append(legs, Leg{Side: Buy, Ratio: 1, Strike: dec(m[1]), Right: rightFromWord(m[2])})
	}
	return legs
}

func extractLimit(text string) (min, max decimal.Decimal, kind LimitKind, ok bool) {
	if m := limitRangeRe.FindStringSubmatch(text); m != nil {
		min, max = dec(m[1]), dec(m[2])
		if min.GreaterThan(max) {
			min, max = max, min
		}
		return min, max, kindFromWord(m[3]), true
	}
	if m := limitSingleRe.FindStringSubmatch(text); m != nil {
		p := dec(m[1])
		return p, p, kindFromWord(m[2]), true
	}
	return decimal.Zero, decimal.Zero, Debit, false
}

func hasSizeIndicator(text string) bool {
	return sizePctRe.MatchString(text) || buyingPowerRe.MatchString(text) || contractsRe.MatchString(text)
}

func extractSizePct(text string) (decimal.Decimal, bool) {
	m := sizePctRe.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, false
	}
	return dec(m[1]).Div(decimal.NewFromInt(100)), true
}

// extractExpiration normalizes "6/17/2027 exp", "12/12/25 exp" and
// "December exp" forms to a calendar date. Two-digit years resolve to the
// nearest future occurrence relative to now.
func extractExpiration(text string, now time.Time) *time.Time {
	if m := dateExpRe.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			if year < 100 {
				year += 2000
				candidate := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
				if candidate.Before(now.Truncate(24 * time.Hour)) {
					year += 100
				}
			}
			d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	if m := monthExpRe.FindStringSubmatch(text); m != nil {
		if month, ok := monthByName(m[1]); ok {
			d := time.Date(now.Year(), month, 15, 0, 0, 0, 0, time.UTC)
			if d.Before(now.Truncate(24 * time.Hour)) {
				d = d.AddDate(1, 0, 0)
			}
			return &d
		}
	}
	return nil
}

func monthByName(name string) (time.Month, bool) {
	name = strings.ToLower(name)
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if name == full || (len(name) == 3 && name == full[:3]) {
			return m, true
		}
	}
	return 0, false
}

func extractLongQuantity(text string) int {
	for _, re := range []*regexp.Regexp{sharesRe, contractsRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}

func extractLongRight(text string) (Right, bool) {
	switch {
	case callWordRe.MatchString(text), callLegRe.MatchString(text):
		return Call, true
	case putWordRe.MatchString(text), putLegRe.MatchString(text):
		return Put, true
	}
	return Call, false
}

func extractLongStrike(text string) decimal.Decimal {
	if m := strikeRightRe.FindStringSubmatch(text); m != nil {
		return dec(m[1])
	}
	if m := dollarRightRe.FindStringSubmatch(text); m != nil {
		return dec(m[1])
	}
	return decimal.Zero
}

func determineStrategy(text string, kind LimitKind) Strategy {
	hasPut := putWordRe.MatchString(text) || putLegRe.MatchString(text)
	hasCall := callWordRe.MatchString(text) || callLegRe.MatchString(text)
	if kind == Credit {
		if hasPut && !hasCall {
			return PutCreditSpread
		}
		return CallCreditSpread
	}
	if hasPut && !hasCall {
		return PutDebitSpread
	}
	return CallDebitSpread
}

func kindFromWord(w string) LimitKind {
	if strings.EqualFold(w, "credit") {
		return Credit
	}
	return Debit
}

func rightFromLetter(s string) Right {
	if strings.EqualFold(s, "P") {
		return Put
	}
	return Call
}

func rightFromWord(s string) Right {
	if strings.HasPrefix(strings.ToLower(s), "put") {
		return Put
	}
	return Call
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("regex captured non-numeric %q", s))
	}
	return d
}
