package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/theearthwanderer/rentalagent/internal/model"
	"github.com/theearthwanderer/rentalagent/internal/utils"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
)

// ListingStore is the listing store collaborator: approximate nearest
// neighbor search plus attribute filtering with a hard row cap.
type ListingStore interface {
	Query(ctx context.Context, vector []float32, filters model.SearchFilters, limit int) ([]model.SearchResult, error)
	GetListingByID(ctx context.Context, id string) (*model.Listing, error)
	InsertListings(ctx context.Context, listings []model.Listing) (int, []string)
}

// SearchEngine combines vector similarity ranking with structured filtering.
// It returns only the full result view; summarization for the model is the
// agent's responsibility, keeping this contract representation-agnostic.
type SearchEngine struct {
	store     ListingStore
	embedder  EmbeddingClient
	resultCap int
}

// NewSearchEngine creates a new search engine
func NewSearchEngine(store ListingStore, embedder EmbeddingClient, resultCap int) *SearchEngine {
	if resultCap <= 0 {
		resultCap = 50
	}
	return &SearchEngine{
		store:     store,
		embedder:  embedder,
		resultCap: resultCap,
	}
}

// Search executes one search invocation. With query text present the text
// is embedded in query mode and the store returns rows by ascending
// distance; without it the store runs a pure filter scan in its default
// order. Non-relevance sorts are applied client-side with a stable sort so
// ties keep their relevance order.
func (e *SearchEngine) Search(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error) {
	sortOrder := q.Sort
	if sortOrder == "" {
		sortOrder = model.SortRelevance
	}
	if !sortOrder.Valid() {
		log.Warn().Str("sort_by", string(q.Sort)).Msg("unrecognized sort order, falling back to relevance")
		sortOrder = model.SortRelevance
	}

	var vector []float32
	if q.Query != "" {
		var err error
		vector, err = e.embedder.EmbedText(ctx, q.Query, EmbedModeQuery)
		if err != nil {
			return nil, fmt.Errorf("embedding query text: %w", err)
		}
	}

	results, err := e.store.Query(ctx, vector, q.Filters, e.resultCap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchBackendUnavailable, err)
	}
	// Zero matches serialize as an empty list, never null
	if results == nil {
		results = []model.SearchResult{}
	}

	// The vector never leaves this layer.
	for i := range results {
		results[i].Embedding = pgvector.Vector{}
	}

	switch sortOrder {
	case model.SortPriceAsc:
		sort.SliceStable(results, func(i, j int) bool { return results[i].Price < results[j].Price })
	case model.SortPriceDesc:
		sort.SliceStable(results, func(i, j int) bool { return results[i].Price > results[j].Price })
	case model.SortNewest:
		sort.SliceStable(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	case model.SortRelevance:
		// store-native similarity order is the contract, no re-sort
	}

	log.Debug().Str("query", q.Query).Int("results", len(results)).Str("sort_by", string(sortOrder)).Msg("search executed")

	return results, nil
}

// GetListing retrieves a single listing by ID with the embedding stripped.
// Returns nil without error when the listing does not exist.
func (e *SearchEngine) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	listing, err := e.store.GetListingByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchBackendUnavailable, err)
	}
	if listing == nil {
		return nil, nil
	}
	listing.Embedding = pgvector.Vector{}
	return listing, nil
}

// Ingest embeds incoming listings in passage mode, derives the boolean
// amenity flags, and writes them to the store. Rows whose embedding does
// not match the deployment dimensionality are rejected by the store.
func (e *SearchEngine) Ingest(ctx context.Context, rows []model.IngestListing) (int, []string) {
	if len(rows) == 0 {
		return 0, nil
	}

	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.Title + ". " + r.Description
	}

	vectors, err := e.embedder.EmbedTexts(ctx, texts, EmbedModePassage)
	if err != nil {
		return 0, []string{fmt.Sprintf("embedding listings: %v", err)}
	}
	if len(vectors) != len(rows) {
		return 0, []string{fmt.Sprintf("embedding count mismatch: %d vectors for %d listings", len(vectors), len(rows))}
	}

	listings := make([]model.Listing, len(rows))
	for i, r := range rows {
		flags := utils.DeriveAmenityFlags(r.Amenities, r.Description)
		source := r.Source
		if source == "" {
			source = "seed"
		}
		listings[i] = model.Listing{
			ID:              r.ID,
			Title:           r.Title,
			Price:           r.Price,
			Beds:            r.Beds,
			Baths:           r.Baths,
			City:            r.City,
			Neighborhood:    r.Neighborhood,
			Description:     r.Description,
			Amenities:       r.Amenities,
			PetsAllowed:     flags.PetsAllowed,
			Parking:         flags.Parking,
			Laundry:         flags.Laundry,
			AirConditioning: flags.AirConditioning,
			VibeScore:       r.VibeScore,
			ExternalURL:     r.ExternalURL,
			Source:          source,
			IsActive:        true,
			Embedding:       pgvector.NewVector(vectors[i]),
		}
	}

	return e.store.InsertListings(ctx, listings)
}
