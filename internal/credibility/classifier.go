package credibility

import (
	"net/url"
	"strings"

	"github.com/venedict/inquest/internal/model"
)

// Classifier maps source URLs to credibility tiers using configured
// domain lists and suffix rules. Tier drives the source_quality signal
// fed into confidence aggregation.
type Classifier struct {
	cfg       model.CredibilityConfig
	primary   map[string]bool
	secondary map[string]bool
}

// NewClassifier builds a classifier from configuration
func NewClassifier(cfg model.CredibilityConfig) *Classifier {
	c := &Classifier{
		cfg:       cfg,
		primary:   make(map[string]bool, len(cfg.PrimaryDomains)),
		secondary: make(map[string]bool, len(cfg.SecondaryDomains)),
	}
	for _, d := range cfg.PrimaryDomains {
		c.primary[d] = true
	}
	for _, d := range cfg.SecondaryDomains {
		c.secondary[d] = true
	}
	return c
}

// Classify returns the credibility tier for a URL
func (c *Classifier) Classify(rawURL string) model.CredibilityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return model.TierTertiary
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")

	if c.matches(c.primary, host) {
		return model.TierPrimary
	}
	for _, suffix := range c.cfg.PrimarySuffixes {
		if strings.HasSuffix(host, suffix) {
			return model.TierPrimary
		}
	}
	if c.matches(c.secondary, host) {
		return model.TierSecondary
	}
	return model.TierTertiary
}

// matches checks the host and its parent domains against the tier map
func (c *Classifier) matches(tier map[string]bool, host string) bool {
	if tier[host] {
		return true
	}
	for domain := range tier {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// Score converts a tier into a [0,1] credibility score. Written to the
// Source exactly once, by the verification stage.
func Score(tier model.CredibilityTier) float64 {
	switch tier {
	case model.TierPrimary:
		return 0.9
	case model.TierSecondary:
		return 0.7
	case model.TierTertiary:
		return 0.4
	default:
		return 0.5
	}
}
