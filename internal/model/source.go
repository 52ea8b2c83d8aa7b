package model

import "time"

// CredibilityTier represents the classification of source credibility
type CredibilityTier int

const (
	TierUnknown   CredibilityTier = 0 // Not yet classified
	TierPrimary   CredibilityTier = 1 // Government, academic, official documents
	TierSecondary CredibilityTier = 2 // Encyclopedias, major publishers, reputable media
	TierTertiary  CredibilityTier = 3 // Blogs, forums, personal websites
)

func (t CredibilityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// SearchHit is a raw result returned by a search provider before any
// content has been fetched.
type SearchHit struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// Source is a fetched web source. Content is immutable after extraction;
// CredibilityScore is written exactly once, by the verification stage.
type Source struct {
	ID               string          `json:"id"`
	URL              string          `json:"url"`
	Title            string          `json:"title"`
	Content          string          `json:"content,omitempty"`
	Snippet          string          `json:"snippet,omitempty"`
	Domain           string          `json:"domain"`
	Tier             CredibilityTier `json:"tier"`
	CredibilityScore float64         `json:"credibility_score"` // [0,1], set by verification
	PublishedAt      *time.Time      `json:"published_at,omitempty"`
	RetrievedAt      time.Time       `json:"retrieved_at"`
	SubQueryID       string          `json:"sub_query_id,omitempty"` // Which sub-query surfaced it
}

// CitationStyle selects the formatting convention for citations
type CitationStyle string

const (
	StyleAPA     CitationStyle = "apa"
	StyleMLA     CitationStyle = "mla"
	StyleChicago CitationStyle = "chicago"
	StyleIEEE    CitationStyle = "ieee"
	StyleHarvard CitationStyle = "harvard"
)

// Citation is a formatted reference to a single Source
type Citation struct {
	SourceID  string        `json:"source_id"`
	Style     CitationStyle `json:"style"`
	Formatted string        `json:"formatted"`
	InText    string        `json:"in_text,omitempty"`
}
