package model

// SortOrder selects how search results are ordered after fetch.
type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
	SortNewest    SortOrder = "newest"
)

// Valid reports whether s is a recognized sort order.
func (s SortOrder) Valid() bool {
	switch s {
	case SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest:
		return true
	}
	return false
}

// SearchFilters represents the structured predicate set applied to a search.
// All predicates are combined conjunctively. Boolean flags constrain the
// query only when explicitly true; omission or false imposes nothing.
type SearchFilters struct {
	MinPrice        *int     `json:"min_price,omitempty"`
	MaxPrice        *int     `json:"max_price,omitempty"`
	MinBeds         *int     `json:"min_beds,omitempty"`
	MaxBeds         *int     `json:"max_beds,omitempty"`
	MinBaths        *int     `json:"min_baths,omitempty"`
	PetsAllowed     *bool    `json:"pets_allowed,omitempty"`
	Parking         *bool    `json:"parking,omitempty"`
	Laundry         *bool    `json:"laundry,omitempty"`
	AirConditioning *bool    `json:"air_conditioning,omitempty"`
	MinVibe         *float64 `json:"min_vibe,omitempty"`
	City            *string  `json:"city,omitempty"`
	Neighborhood    *string  `json:"neighborhood,omitempty"`
}

// SearchQuery is one search engine invocation.
type SearchQuery struct {
	Query   string        `json:"query,omitempty"`
	Filters SearchFilters `json:"filters"`
	Sort    SortOrder     `json:"sort_by,omitempty"`
}

// IngestListing is one row of a batch ingestion request. The embedding is
// computed server-side from title and description in passage mode.
type IngestListing struct {
	ID           string   `json:"id" binding:"required"`
	Title        string   `json:"title" binding:"required"`
	Price        int      `json:"price"`
	Beds         float64  `json:"beds"`
	Baths        float64  `json:"baths"`
	City         string   `json:"city"`
	Neighborhood string   `json:"neighborhood"`
	Description  string   `json:"description"`
	Amenities    []string `json:"amenities,omitempty"`
	VibeScore    float64  `json:"vibe_score"`
	ExternalURL  string   `json:"external_url"`
	Source       string   `json:"source"`
}

// IngestBatchRequest represents a batch listing ingestion request
type IngestBatchRequest struct {
	Listings []IngestListing `json:"listings" binding:"required"`
}

// IngestBatchResponse represents the response for batch ingestion
type IngestBatchResponse struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}
