package postprocess

import (
	"encoding/json"
	"math"

	"github.com/Brownie44l1/crcseg-api/internal/mask"
)

// Statistics summarises a binary mask at model resolution.
type Statistics struct {
	TotalPixels      int     `json:"total_pixels"`
	CancerPixels     int     `json:"cancer_pixels"`
	BackgroundPixels int     `json:"background_pixels"`
	CancerPercentage float64 `json:"cancer_percentage"`
}

func ComputeStatistics(b *mask.Binary) Statistics {
	total := b.Total()
	positive := b.Count()
	s := Statistics{
		TotalPixels:      total,
		CancerPixels:     positive,
		BackgroundPixels: total - positive,
	}
	if total > 0 {
		s.CancerPercentage = float64(positive) / float64(total) * 100
	}
	return s
}

// MarshalJSON rounds the percentage to two decimals for display only.
func (s Statistics) MarshalJSON() ([]byte, error) {
	type plain Statistics
	p := plain(s)
	p.CancerPercentage = math.Round(s.CancerPercentage*100) / 100
	return json.Marshal(p)
}
