package agent

import (
	"github.com/theearthwanderer/rentalagent/internal/model"
)

// listingSummary is the metadata-light projection surfaced to the model.
// Keeping it small bounds prompt token cost; the caller still receives
// the complete rows through the full view.
type listingSummary struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Price        int      `json:"price"`
	Beds         float64  `json:"beds"`
	Baths        float64  `json:"baths"`
	City         string   `json:"city"`
	Neighborhood string   `json:"neighborhood"`
	Distance     *float64 `json:"distance,omitempty"`
}

// searchSummary is the model-facing view of one search invocation
type searchSummary struct {
	TotalMatches int              `json:"total_matches"`
	Showing      int              `json:"showing"`
	Listings     []listingSummary `json:"listings"`
}

// summarizeSearch truncates a full result set to the top-K summary view,
// preserving result order.
func summarizeSearch(results []model.SearchResult, topK int) searchSummary {
	n := len(results)
	if n > topK {
		n = topK
	}

	listings := make([]listingSummary, n)
	for i := 0; i < n; i++ {
		r := results[i]
		listings[i] = listingSummary{
			ID:           r.ID,
			Title:        r.Title,
			Price:        r.Price,
			Beds:         r.Beds,
			Baths:        r.Baths,
			City:         r.City,
			Neighborhood: r.Neighborhood,
			Distance:     r.Distance,
		}
	}

	return searchSummary{
		TotalMatches: len(results),
		Showing:      n,
		Listings:     listings,
	}
}

// asSearchResults recovers the typed result slice from a capability's
// interface return value.
func asSearchResults(result interface{}) ([]model.SearchResult, bool) {
	listings, ok := result.([]model.SearchResult)
	return listings, ok
}
