package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind identifies the canonical schema of a source.
type Kind string

const (
	KindNews    Kind = "news"
	KindOnChain Kind = "onchain"
)

// ParseKind accepts "news", "onchain" and "on-chain" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "news":
		return KindNews, nil
	case "onchain", "on-chain", "on_chain":
		return KindOnChain, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", s)
	}
}

// Columns lists the numeric canonical columns of the kind, in storage order.
func (k Kind) Columns() []string {
	switch k {
	case KindNews:
		return []string{"sentiment_score", "news_volume"}
	case KindOnChain:
		return []string{"onchain_active_addresses", "onchain_tx_volume", "stablecoin_ratio"}
	default:
		return nil
	}
}

// Record is one normalized, timestamped observation.
type Record interface {
	Time() time.Time
	Kind() Kind
	// Values returns the numeric fields ordered like Kind().Columns().
	Values() []float64
}

// NewsRecord is a canonical news sentiment observation.
type NewsRecord struct {
	Timestamp      time.Time `json:"timestamp" validate:"required"`
	SentimentScore float64   `json:"sentiment_score" validate:"gte=-1,lte=1"`
	NewsVolume     float64   `json:"news_volume" validate:"gte=0"`
	Source         string    `json:"source" validate:"required"`
	Headline       string    `json:"headline,omitempty"`
	URL            string    `json:"url,omitempty"`
}

func (r NewsRecord) Time() time.Time { return r.Timestamp }
func (r NewsRecord) Kind() Kind      { return KindNews }
func (r NewsRecord) Values() []float64 {
	return []float64{r.SentimentScore, r.NewsVolume}
}

// OnChainRecord is a canonical on-chain metrics observation.
type OnChainRecord struct {
	Timestamp              time.Time `json:"timestamp" validate:"required"`
	OnChainActiveAddresses float64   `json:"onchain_active_addresses" validate:"gte=0"`
	OnChainTxVolume        float64   `json:"onchain_tx_volume" validate:"gte=0"`
	StablecoinRatio        float64   `json:"stablecoin_ratio"`
}

func (r OnChainRecord) Time() time.Time { return r.Timestamp }
func (r OnChainRecord) Kind() Kind      { return KindOnChain }
func (r OnChainRecord) Values() []float64 {
	return []float64{r.OnChainActiveAddresses, r.OnChainTxVolume, r.StablecoinRatio}
}

// SortRecords orders records by time and collapses equal timestamps, keeping the last one seen.
func SortRecords(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time().Before(out[j].Time()) })

	deduped := out[:0]
	for i, r := range out {
		if i+1 < len(out) && out[i+1].Time().Equal(r.Time()) {
			continue
		}
		deduped = append(deduped, r)
	}
	return deduped
}
