package trigger

import "regexp"

// Rule is one entry in the classification decision list. Rules are
// evaluated in order and the first match wins; a rule without a
// pattern always matches.
type Rule struct {
	Type       string
	Confidence float64
	pattern    *regexp.Regexp
}

func (r Rule) matches(text string) bool {
	return r.pattern == nil || r.pattern.MatchString(text)
}

// defaultRules orders the categories by priority. "arrived late and
// damaged" is a delivery issue, not a damage issue, because the
// delivery rule is tested first.
var defaultRules = []Rule{
	{
		Type:       "delivery_issue",
		Confidence: 0.9,
		pattern:    regexp.MustCompile(`late|delay|deliver|ship|tracking|never arrived|lost package`),
	},
	{
		Type:       "damaged_item",
		Confidence: 0.85,
		pattern:    regexp.MustCompile(`damag|broken|crack|defect|scratch|leak`),
	},
	{
		Type:       "billing_issue",
		Confidence: 0.8,
		pattern:    regexp.MustCompile(`bill|charg|refund|invoice|payment|overpaid`),
	},
	{
		Type:       "cancellation_request",
		Confidence: 0.75,
		pattern:    regexp.MustCompile(`cancel|return|send it back`),
	},
	{
		Type:       "account_access",
		Confidence: 0.7,
		pattern:    regexp.MustCompile(`account|password|locked out|log ?in|sign ?in`),
	},
	{
		Type:       "general_inquiry",
		Confidence: 0.4,
	},
}

// classify walks the decision list. The fallback guarantees a match.
func classify(text string) Rule {
	for _, rule := range defaultRules {
		if rule.matches(text) {
			return rule
		}
	}
	return defaultRules[len(defaultRules)-1]
}
