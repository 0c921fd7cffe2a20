package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/theearthwanderer/rentalagent/internal/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const listingColumns = `
	id, title, price, beds, baths, city, neighborhood, description,
	amenities, pets_allowed, parking, laundry, air_conditioning,
	vibe_score, external_url, source, is_active, created_at, updated_at`

// PostgresRepository handles listing store operations
type PostgresRepository struct {
	db         *sqlx.DB
	dimensions int
}

// NewPostgresRepository creates a new PostgreSQL repository.
// dimensions is the fixed embedding dimensionality for this deployment;
// writes carrying a vector of any other length are rejected.
func NewPostgresRepository(dsn string, maxConn, maxIdleConn, dimensions int) (*PostgresRepository, error) {
	// Disable prepared statement caching to avoid "unnamed prepared statement does not exist" errors
	if !strings.Contains(dsn, "?") {
		dsn += "?prefer_simple_protocol=true"
	} else {
		dsn += "&prefer_simple_protocol=true"
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db, dimensions: dimensions}, nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Query executes a search against the listing store. When vector is non-nil
// rows come back ordered by ascending cosine distance with a distance column;
// otherwise the scan uses the store default order (newest first). The limit
// is applied in SQL, not after fetch.
func (r *PostgresRepository) Query(ctx context.Context, vector []float32, filters model.SearchFilters, limit int) ([]model.SearchResult, error) {
	whereClauses := []string{"is_active = true"}
	args := []interface{}{}
	argIndex := 1

	if vector != nil {
		// $1 is reserved for the query vector
		args = append(args, pgvector.NewVector(vector))
		argIndex = 2
	}

	addClause := func(cond string, value interface{}) {
		whereClauses = append(whereClauses, fmt.Sprintf(cond, argIndex))
		args = append(args, value)
		argIndex++
	}

	if filters.MinPrice != nil {
		addClause("price >= $%d", *filters.MinPrice)
	}
	if filters.MaxPrice != nil {
		addClause("price <= $%d", *filters.MaxPrice)
	}
	if filters.MinBeds != nil {
		addClause("beds >= $%d", *filters.MinBeds)
	}
	if filters.MaxBeds != nil {
		addClause("beds <= $%d", *filters.MaxBeds)
	}
	if filters.MinBaths != nil {
		addClause("baths >= $%d", *filters.MinBaths)
	}
	if filters.MinVibe != nil {
		addClause("vibe_score >= $%d", *filters.MinVibe)
	}
	if filters.City != nil {
		addClause("city = $%d", *filters.City)
	}
	if filters.Neighborhood != nil {
		addClause("neighborhood = $%d", *filters.Neighborhood)
	}

	// Boolean flags constrain only when explicitly true: users ask for
	// amenities they want, never for their absence.
	if filters.PetsAllowed != nil && *filters.PetsAllowed {
		whereClauses = append(whereClauses, "pets_allowed = true")
	}
	if filters.Parking != nil && *filters.Parking {
		whereClauses = append(whereClauses, "parking = true")
	}
	if filters.Laundry != nil && *filters.Laundry {
		whereClauses = append(whereClauses, "laundry = true")
	}
	if filters.AirConditioning != nil && *filters.AirConditioning {
		whereClauses = append(whereClauses, "air_conditioning = true")
	}

	whereClause := strings.Join(whereClauses, " AND ")

	var query string
	if vector != nil {
		query = fmt.Sprintf(`
			SELECT %s, embedding <=> $1 AS distance
			FROM listings
			WHERE %s
			ORDER BY distance ASC
			LIMIT $%d
		`, listingColumns, whereClause, argIndex)
	} else {
		query = fmt.Sprintf(`
			SELECT %s
			FROM listings
			WHERE %s
			ORDER BY created_at DESC
			LIMIT $%d
		`, listingColumns, whereClause, argIndex)
	}
	args = append(args, limit)

	var results []model.SearchResult
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch listings: %w", err)
	}

	return results, nil
}

// GetListingByID retrieves a single listing by its ID.
// Returns nil without error when no row matches.
func (r *PostgresRepository) GetListingByID(ctx context.Context, id string) (*model.Listing, error) {
	var listing model.Listing
	query := fmt.Sprintf(`
		SELECT %s
		FROM listings
		WHERE id = $1 AND is_active = true
	`, listingColumns)

	err := r.db.GetContext(ctx, &listing, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

// InsertListings upserts listings with their embeddings in one transaction.
// Rows whose embedding length does not match the configured dimensionality
// are rejected individually; the rest of the batch proceeds.
func (r *PostgresRepository) InsertListings(ctx context.Context, listings []model.Listing) (int, []string) {
	success := 0
	var errs []string

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		errs = append(errs, fmt.Sprintf("failed to start transaction: %v", err))
		return success, errs
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO listings (
			id, title, price, beds, baths, city, neighborhood, description,
			amenities, pets_allowed, parking, laundry, air_conditioning,
			vibe_score, external_url, source, is_active, embedding, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, price = EXCLUDED.price, beds = EXCLUDED.beds,
			baths = EXCLUDED.baths, city = EXCLUDED.city, neighborhood = EXCLUDED.neighborhood,
			description = EXCLUDED.description, amenities = EXCLUDED.amenities,
			pets_allowed = EXCLUDED.pets_allowed, parking = EXCLUDED.parking,
			laundry = EXCLUDED.laundry, air_conditioning = EXCLUDED.air_conditioning,
			vibe_score = EXCLUDED.vibe_score, external_url = EXCLUDED.external_url,
			source = EXCLUDED.source, is_active = EXCLUDED.is_active,
			embedding = EXCLUDED.embedding, updated_at = NOW()
	`)
	if err != nil {
		errs = append(errs, fmt.Sprintf("failed to prepare statement: %v", err))
		return success, errs
	}
	defer stmt.Close()

	for _, l := range listings {
		if len(l.Embedding.Slice()) != r.dimensions {
			errs = append(errs, fmt.Sprintf("listing %s: embedding dimension %d, expected %d", l.ID, len(l.Embedding.Slice()), r.dimensions))
			continue
		}
		_, err := stmt.ExecContext(ctx,
			l.ID, l.Title, l.Price, l.Beds, l.Baths, l.City, l.Neighborhood, l.Description,
			l.Amenities, l.PetsAllowed, l.Parking, l.Laundry, l.AirConditioning,
			l.VibeScore, l.ExternalURL, l.Source, l.IsActive, l.Embedding,
		)
		if err != nil {
			errs = append(errs, fmt.Sprintf("listing %s: %v", l.ID, err))
			continue
		}
		success++
	}

	if err := tx.Commit(); err != nil {
		errs = append(errs, fmt.Sprintf("failed to commit transaction: %v", err))
		return 0, errs
	}

	return success, errs
}
