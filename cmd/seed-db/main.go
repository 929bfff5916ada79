// Command seed-db populates a fresh database with a demo catalog, a few
// sample promotions, and an admin API key for local development.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/BraraBy/eCom-P-sub000/internal/storage/postgres"
)

type productJSON struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	ImageURL string          `json:"image_url"`
}

type promotionSeed struct {
	title          string
	code           string
	kind           string
	percent        decimal.Decimal
	amount         decimal.Decimal
	minOrderAmount decimal.Decimal
	description    string
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or ECOM_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ECOM_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ECOM_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or ECOM_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("ECOM_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedPromotions(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("seeding products", slog.Int("count", len(products)))

	categoryIDs := make(map[string]int64)
	for _, p := range products {
		categoryID, ok := categoryIDs[p.Category]
		if !ok {
			categoryID, err = ensureCategory(ctx, pool, p.Category)
			if err != nil {
				return errors.Wrapf(err, "ensure category %s", p.Category)
			}
			categoryIDs[p.Category] = categoryID
		}

		var exists bool
		if err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE name = $1)`, p.Name,
		).Scan(&exists); err != nil {
			return errors.Wrapf(err, "check product %s", p.Name)
		}
		if exists {
			continue
		}

		if _, err := pool.Exec(ctx,
			`INSERT INTO products (name, price, category_id, image_url) VALUES ($1, $2, $3, $4)`,
			p.Name, p.Price, categoryID, p.ImageURL,
		); err != nil {
			return errors.Wrapf(err, "insert product %s", p.Name)
		}

		slog.Info("inserted product", slog.String("name", p.Name), slog.String("category", p.Category))
	}

	return nil
}

func ensureCategory(ctx context.Context, pool *pgxpool.Pool, name string) (int64, error) {
	var id int64
	err := pool.QueryRow(ctx, `SELECT id FROM categories WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}

	if err := pool.QueryRow(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, name,
	).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding sample promotions")

	promos := []promotionSeed{
		{
			title:       "Happy Hours",
			code:        "HAPPYHOURS",
			kind:        "percent",
			percent:     decimal.NewFromInt(18),
			description: "Happy Hours: 18% off the order",
		},
		{
			title:          "Ten Off Fifty",
			code:           "TENOFF50",
			kind:           "amount",
			amount:         decimal.NewFromInt(10),
			minOrderAmount: decimal.NewFromInt(50),
			description:    "$10 off orders of $50 or more",
		},
	}

	for _, p := range promos {
		if _, err := pool.Exec(ctx,
			`INSERT INTO promotions (title, description, code, kind, discount_percent, discount_amount, min_order_amount, active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
			 ON CONFLICT (LOWER(code)) DO UPDATE SET
			   title = EXCLUDED.title,
			   description = EXCLUDED.description,
			   kind = EXCLUDED.kind,
			   discount_percent = EXCLUDED.discount_percent,
			   discount_amount = EXCLUDED.discount_amount,
			   min_order_amount = EXCLUDED.min_order_amount,
			   active = TRUE`,
			p.title, p.description, p.code, p.kind, p.percent, p.amount, p.minOrderAmount,
		); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", p.code)
		}

		slog.Info("upserted promotion", slog.String("code", p.code), slog.String("title", p.title))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx,
		`INSERT INTO api_keys (key_hash, name, active) VALUES ($1, $2, TRUE)
		 ON CONFLICT (key_hash) DO UPDATE SET active = TRUE`,
		keyHash, "Default admin key",
	); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("upserted API key", slog.String("name", "Default admin key"))

	return nil
}
