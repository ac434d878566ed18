// Package main implements a standalone seed script that creates the
// storefront schema and populates the catalog with realistic Tunisian
// grocery products via direct SQL.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	origin      TEXT NOT NULL DEFAULT '',
	image_url   TEXT NOT NULL DEFAULT '',
	price       BIGINT NOT NULL CHECK (price >= 0),
	stock       INTEGER NOT NULL CHECK (stock >= 0),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	status           TEXT NOT NULL,
	total_amount     BIGINT NOT NULL,
	currency         TEXT NOT NULL,
	shipping_address TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS order_items (
	id         TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	product_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	price      BIGINT NOT NULL,
	quantity   INTEGER NOT NULL CHECK (quantity > 0)
);

CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id);
`

type seedProduct struct {
	name     string
	category string
	origin   string
	price    int64 // millimes
	stock    int
}

var products = []seedProduct{
	{"Dattes Deglet Nour 500g", "epicerie", "Tozeur", 12500, 80},
	{"Huile d'olive extra vierge 1L", "epicerie", "Sfax", 28900, 45},
	{"Harissa artisanale 250g", "epicerie", "Nabeul", 4500, 120},
	{"Couscous fin 1kg", "epicerie", "Tunis", 3200, 200},
	{"Fromage de chevre 200g", "frais", "Beja", 8700, 25},
	{"Miel de thym 500g", "epicerie", "Kasserine", 35000, 18},
	{"Eau minerale 6x1.5L", "boissons", "Ain Oktor", 5400, 300},
	{"The vert a la menthe 100g", "boissons", "Tunis", 6100, 90},
	{"Makroudh aux dattes 400g", "patisserie", "Kairouan", 9800, 60},
	{"Citrons confits 350g", "epicerie", "Cap Bon", 5500, 0},
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("POSTGRES_USER", "smartshop"),
		getEnv("POSTGRES_PASSWORD", "smartshop_secret"),
		getEnv("POSTGRES_HOST", "localhost"),
		getEnv("POSTGRES_PORT", "5432"),
		getEnv("POSTGRES_DB", "smartshop"),
	)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("create schema: %v", err)
	}
	log.Println("schema ready")

	inserted := 0
	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (id, name, category, origin, price, stock, updated_at)
			SELECT $1, $2, $3, $4, $5, $6, now()
			WHERE NOT EXISTS (SELECT 1 FROM products WHERE name = $2)`,
			uuid.New().String(), p.name, p.category, p.origin, p.price, p.stock,
		)
		if err != nil {
			log.Fatalf("insert product %q: %v", p.name, err)
		}
		inserted++
	}

	log.Printf("seeded %d products", inserted)
}
