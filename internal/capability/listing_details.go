package capability

import (
	"context"
	"fmt"

	"github.com/theearthwanderer/rentalagent/internal/model"

	"github.com/rs/zerolog/log"
)

// GetListingDetailsName identifies the listing detail capability
const GetListingDetailsName = "get_listing_details"

// ListingFetcher is the slice of the search engine this capability needs
type ListingFetcher interface {
	GetListing(ctx context.Context, id string) (*model.Listing, error)
}

// GetListingDetailsArgs is the typed argument structure for get_listing_details
type GetListingDetailsArgs struct {
	ListingID string `json:"listing_id"`
}

// GetListingDetails retrieves full details for one listing by id
type GetListingDetails struct {
	engine ListingFetcher
}

// NewGetListingDetails creates the get_listing_details capability
func NewGetListingDetails(engine ListingFetcher) *GetListingDetails {
	return &GetListingDetails{engine: engine}
}

func (g *GetListingDetails) Name() string {
	return GetListingDetailsName
}

func (g *GetListingDetails) Description() string {
	return "Retrieve full details for a specific listing by its ID. Use this when the user asks for more information about a specific apartment."
}

func (g *GetListingDetails) Schema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]Property{
			"listing_id": {Type: "string", Description: "ID of the listing to retrieve details for"},
		},
		Required: []string{"listing_id"},
	}
}

// Execute fetches the listing. A missing listing resolves to an error
// payload, not a Go error, so the turn loop keeps going.
func (g *GetListingDetails) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var decoded GetListingDetailsArgs
	if err := decodeArgs(args, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	log.Info().Str("listing_id", decoded.ListingID).Msg("get_listing_details invoked")

	listing, err := g.engine.GetListing(ctx, decoded.ListingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return map[string]string{"error": "Listing not found"}, nil
	}

	return listing, nil
}
