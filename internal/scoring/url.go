package scoring

import (
	"fmt"
	"strings"
	"unicode"

	"phishguard/backend/internal/match"
)

// URLScorer applies the lexical rule table to a URL.
type URLScorer struct {
	policy   URLPolicy
	tlds     []string
	keywords []string
	trusted  []string
}

// NewURLScorer constructs a scorer from the provided policy.
func NewURLScorer(policy URLPolicy) *URLScorer {
	return &URLScorer{
		policy:   policy,
		tlds:     normalizeList(policy.SuspiciousTLDs, true),
		keywords: normalizeList(policy.SuspiciousKeywords, false),
		trusted:  normalizeList(policy.TrustedDomains, true),
	}
}

// Score computes the lexical risk of the URL. A URL that cannot be parsed is itself weak evidence
// of tampering, so it scores the configured malformed score instead of failing.
func (s *URLScorer) Score(raw string) PartialScore {
	profile, err := match.ParseURL(raw)
	if err != nil {
		return NewPartialScore(SignalURL, s.policy.MalformedScore, "malformed URL")
	}
	return s.ScoreProfile(profile)
}

// ScoreProfile scores an already parsed URL.
func (s *URLScorer) ScoreProfile(profile match.URLProfile) PartialScore {
	if profile.IsLocal() {
		return NewPartialScore(SignalURL, 0, "trusted/local")
	}
	for _, domain := range s.trusted {
		if match.HostMatches(profile.Host, domain) {
			return NewPartialScore(SignalURL, 0, "trusted domain")
		}
	}

	p := s.policy
	score := 0
	var reasons []string

	if profile.IsIP() {
		score += p.IPLiteralPenalty
		reasons = append(reasons, "IP address used as host")
	}
	if profile.Scheme != "https" {
		score += p.InsecureSchemePenalty
		reasons = append(reasons, fmt.Sprintf("unencrypted connection (%s)", profile.Scheme))
	}
	if p.MaxURLLength > 0 && len(strings.TrimSpace(profile.Original)) > p.MaxURLLength {
		score += p.LongURLPenalty
		reasons = append(reasons, "long URL")
	}

	if !profile.IsIP() {
		for _, tld := range s.tlds {
			if match.HostUnderSuffix(profile.Host, tld) {
				score += p.SuspiciousTLDPenalty
				reasons = append(reasons, fmt.Sprintf("suspicious TLD .%s", tld))
				break
			}
		}
	}

	if hits := s.keywordHits(profile.PathAndQuery()); len(hits) > 0 {
		score += p.KeywordPenalty
		reasons = append(reasons, "suspicious keywords in path: "+strings.Join(hits, ", "))
	}

	if !profile.IsIP() {
		if p.MaxHostLabels > 0 && len(profile.Labels) > p.MaxHostLabels {
			score += p.SubdomainPenalty
			reasons = append(reasons, "many subdomains")
		}
		sld := profile.SLD
		if strings.Count(sld, "-") > p.MaxSLDHyphens {
			score += p.HyphenPenalty
			reasons = append(reasons, "multiple hyphens in domain")
		}
		if endsWithDigit(sld) {
			if len(sld) > p.LongDigitSLDLength {
				score += p.LongDigitSLDPenalty
				reasons = append(reasons, "long domain ending in digits")
			} else {
				score += p.DigitSLDPenalty
				reasons = append(reasons, "domain ends in digits")
			}
		}
	}

	return NewPartialScore(SignalURL, score, reasons...)
}

func (s *URLScorer) keywordHits(pathQuery string) []string {
	if pathQuery == "" {
		return nil
	}
	limit := s.policy.MaxReportedKeywords
	var hits []string
	for _, keyword := range s.keywords {
		if !strings.Contains(pathQuery, keyword) {
			continue
		}
		hits = append(hits, keyword)
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits
}

func endsWithDigit(label string) bool {
	if label == "" {
		return false
	}
	r := rune(label[len(label)-1])
	return unicode.IsDigit(r)
}

func normalizeList(in []string, trimDots bool) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, item := range in {
		item = strings.ToLower(strings.TrimSpace(item))
		if trimDots {
			item = strings.Trim(item, ".")
		}
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
