package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"property-tracker/models"
)

const listingColumns = 12

// PostgresCatalog stores the cached-only catalog in the listings table.
type PostgresCatalog struct {
	db *sql.DB
}

// NewPostgresCatalog opens a connection to PostgreSQL, runs schema
// migrations, and returns a ready-to-use PostgresCatalog.
func NewPostgresCatalog(ctx context.Context, dsn string) (*PostgresCatalog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pc := &PostgresCatalog{db: db}
	if err := pc.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pc, nil
}

func (pc *PostgresCatalog) migrate(ctx context.Context) error {
	_, err := pc.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id             SERIAL PRIMARY KEY,
			source         VARCHAR(32)  NOT NULL,
			title          TEXT         NOT NULL,
			price          BIGINT       NOT NULL DEFAULT 0,
			area           NUMERIC(10,2) NOT NULL DEFAULT 0,
			rooms          INTEGER      NOT NULL DEFAULT 0,
			location       TEXT         NOT NULL DEFAULT '',
			days_on_market INTEGER,
			year_built     INTEGER      NOT NULL DEFAULT 0,
			heating_type   TEXT         NOT NULL DEFAULT 'Unknown',
			features       TEXT[]       NOT NULL DEFAULT '{}',
			url            TEXT         NOT NULL DEFAULT '',
			scraped_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_price    ON listings(price);
		CREATE INDEX IF NOT EXISTS idx_listings_location ON listings(location);
		CREATE INDEX IF NOT EXISTS idx_listings_source   ON listings(source);
	`)
	return err
}

// WriteCatalog replaces every stored listing in one transaction.
func (pc *PostgresCatalog) WriteCatalog(ctx context.Context, listings []models.Listing) error {
	tx, err := pc.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM listings"); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}

	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := insertBatch(ctx, tx, listings[i:end]); err != nil {
			return fmt.Errorf("postgres: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func insertBatch(ctx context.Context, tx *sql.Tx, batch []models.Listing) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*listingColumns)

	for idx, l := range batch {
		base := idx * listingColumns
		placeholders := make([]string, listingColumns)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")

		var days sql.NullInt64
		if l.DaysOnMarket != nil {
			days = sql.NullInt64{Int64: int64(*l.DaysOnMarket), Valid: true}
		}
		features := l.Features
		if features == nil {
			features = []string{}
		}
		valueArgs = append(valueArgs,
			string(l.Source), l.Title, l.Price, l.Area, l.Rooms, l.Location,
			days, l.YearBuilt, l.HeatingType, pq.Array(features), l.URL, l.ScrapedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (source, title, price, area, rooms, location,
			days_on_market, year_built, heating_type, features, url, scraped_at)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	_, err := tx.ExecContext(ctx, query, valueArgs...)
	return err
}

// LoadCatalog retrieves all stored listings in insertion order.
func (pc *PostgresCatalog) LoadCatalog(ctx context.Context) ([]models.Listing, error) {
	rows, err := pc.db.QueryContext(ctx, `
		SELECT source, title, price, area, rooms, location, days_on_market,
			year_built, heating_type, features, url, scraped_at
		FROM listings
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	listings := []models.Listing{}
	for rows.Next() {
		var (
			l      models.Listing
			source string
			days   sql.NullInt64
		)
		if err := rows.Scan(
			&source, &l.Title, &l.Price, &l.Area, &l.Rooms, &l.Location, &days,
			&l.YearBuilt, &l.HeatingType, pq.Array(&l.Features), &l.URL, &l.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		l.Source = models.Source(source)
		if days.Valid {
			l.DaysOnMarket = models.IntPtr(int(days.Int64))
		}
		if l.Features == nil {
			l.Features = []string{}
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (pc *PostgresCatalog) Close() error {
	return pc.db.Close()
}
