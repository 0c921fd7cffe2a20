package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/theearthwanderer/rentalagent/internal/model"

	"github.com/rs/zerolog/log"
)

// SearchListingsName identifies the search capability; the agent applies
// the model-facing summary view to results of this capability.
const SearchListingsName = "search_listings"

// Searcher is the slice of the search engine this capability needs
type Searcher interface {
	Search(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error)
}

// SearchListingsArgs is the typed argument structure for search_listings
type SearchListingsArgs struct {
	Query           *string  `json:"query,omitempty"`
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
	SortBy          *string  `json:"sort_by,omitempty"`
}

// SearchListings exposes the search engine to the model
type SearchListings struct {
	engine Searcher
}

// NewSearchListings creates the search_listings capability
func NewSearchListings(engine Searcher) *SearchListings {
	return &SearchListings{engine: engine}
}

func (s *SearchListings) Name() string {
	return SearchListingsName
}

func (s *SearchListings) Description() string {
	return "Search for rentals. Supports semantic query, boolean filters, and sorting."
}

func (s *SearchListings) Schema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]Property{
			"query":            {Type: "string", Description: "Natural language query. If omitted, performs a pure filter search (e.g. just by price/location)."},
			"min_price":        {Type: "integer", Description: "Minimum price in USD"},
			"max_price":        {Type: "integer", Description: "Maximum price in USD"},
			"min_beds":         {Type: "integer", Description: "Minimum number of bedrooms"},
			"max_beds":         {Type: "integer", Description: "Maximum number of bedrooms"},
			"min_baths":        {Type: "integer", Description: "Minimum number of bathrooms"},
			"pets_allowed":     {Type: "boolean", Description: "If true, only show listings allowing pets"},
			"parking":          {Type: "boolean", Description: "If true, only show listings with parking"},
			"laundry":          {Type: "boolean", Description: "If true, only show listings with laundry"},
			"air_conditioning": {Type: "boolean", Description: "If true, only show listings with AC"},
			"min_vibe":         {Type: "number", Description: "Minimum vibe score (0-5)"},
			"city":             {Type: "string", Description: "City to filter by"},
			"neighborhood":     {Type: "string", Description: "Neighborhood to filter by"},
			"sort_by":          {Type: "string", Description: "Sort order", Enum: []string{"relevance", "price_asc", "price_desc", "newest"}},
		},
	}
}

// Execute runs a search. Returns the full result view; summarization for
// the model happens upstream.
func (s *SearchListings) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var decoded SearchListingsArgs
	if err := decodeArgs(args, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	q := model.SearchQuery{
		Filters: model.SearchFilters{
			MinPrice:        decoded.MinPrice,
			MaxPrice:        decoded.MaxPrice,
			MinBeds:         decoded.MinBeds,
			MaxBeds:         decoded.MaxBeds,
			MinBaths:        decoded.MinBaths,
			PetsAllowed:     decoded.PetsAllowed,
			Parking:         decoded.Parking,
			Laundry:         decoded.Laundry,
			AirConditioning: decoded.AirConditioning,
			MinVibe:         decoded.MinVibe,
			City:            decoded.City,
			Neighborhood:    decoded.Neighborhood,
		},
		Sort: model.SortRelevance,
	}
	if decoded.Query != nil {
		q.Query = *decoded.Query
	}
	if decoded.SortBy != nil {
		q.Sort = model.SortOrder(*decoded.SortBy)
	}

	log.Info().Str("query", q.Query).Interface("filters", q.Filters).Str("sort_by", string(q.Sort)).Msg("search_listings invoked")

	return s.engine.Search(ctx, q)
}

// decodeArgs maps loosely typed invocation arguments onto a typed struct
func decodeArgs(args map[string]interface{}, target interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
