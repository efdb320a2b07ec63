// Dev-only database seeder: drops and recreates the booking tables, then
// loads a couple of shows, promo codes, and users to click around with.
// Never point this at a real database.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"cinebook/internal/config"
	"cinebook/internal/models"
)

func main() {
	ctx := context.Background()

	_ = godotenv.Load()
	cfg := config.Load().Database

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())

	log.Println("Dropping tables...")
	dropTables(ctx, db)

	log.Println("Creating tables...")
	createTables(ctx, db)

	log.Println("Seeding sample data...")
	seedData(ctx, db)

	log.Println("Done.")
}

func dropTables(ctx context.Context, db *bun.DB) {
	tables := []interface{}{
		(*models.BookingSeat)(nil),
		(*models.Booking)(nil),
		(*models.SeatClaim)(nil),
		(*models.ShowTierPrice)(nil),
		(*models.PromoCode)(nil),
		(*models.User)(nil),
		(*models.Show)(nil),
	}
	for _, m := range tables {
		_, _ = db.NewDropTable().Model(m).IfExists().Cascade().Exec(ctx)
	}
}

func createTables(ctx context.Context, db *bun.DB) {
	tables := []interface{}{
		(*models.Show)(nil),
		(*models.ShowTierPrice)(nil),
		(*models.SeatClaim)(nil),
		(*models.Booking)(nil),
		(*models.BookingSeat)(nil),
		(*models.PromoCode)(nil),
		(*models.User)(nil),
	}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("Failed to create table for %T: %v", m, err)
		}
	}
}

func seedData(ctx context.Context, db *bun.DB) {
	now := time.Now()

	shows := []models.Show{
		{
			ID:         "show001",
			MovieTitle: "The Midnight Reel",
			ScreenName: "Screen 1",
			StartTime:  now.Add(26 * time.Hour),
			BasePrice:  12.50,
			CreatedAt:  now,
		},
		{
			ID:         "show002",
			MovieTitle: "Orbit Decay",
			ScreenName: "Screen 2",
			StartTime:  now.Add(50 * time.Hour),
			BasePrice:  10.00,
			CreatedAt:  now,
		},
	}
	if _, err := db.NewInsert().Model(&shows).Exec(ctx); err != nil {
		log.Fatalf("Failed to seed shows: %v", err)
	}

	// show002 overrides the PREMIUM multiplier with a flat price.
	tierPrices := []models.ShowTierPrice{
		{ShowID: "show002", Tier: "PREMIUM", Price: 18.00},
	}
	if _, err := db.NewInsert().Model(&tierPrices).Exec(ctx); err != nil {
		log.Fatalf("Failed to seed tier prices: %v", err)
	}

	validUntil := now.AddDate(0, 2, 0)
	promos := []models.PromoCode{
		{
			Code:          "SAVE20",
			Description:   "20 percent off, capped at 10",
			DiscountType:  models.DiscountPercentage,
			DiscountValue: 20,
			MaxDiscount:   10,
			MinAmount:     15,
			Active:        true,
			ValidFrom:     now,
			ValidUntil:    validUntil,
			CreatedAt:     now,
		},
		{
			Code:          "MOVIE5",
			Description:   "5 off any booking",
			DiscountType:  models.DiscountFixed,
			DiscountValue: 5,
			Active:        true,
			ValidFrom:     now,
			ValidUntil:    validUntil,
			UsageLimit:    100,
			CreatedAt:     now,
		},
	}
	if _, err := db.NewInsert().Model(&promos).Exec(ctx); err != nil {
		log.Fatalf("Failed to seed promo codes: %v", err)
	}

	users := []models.User{
		{ID: "user001", Email: "alice@example.com", FullName: "Alice Wonderland", LoyaltyPoints: 500, CreatedAt: now},
		{ID: "user002", Email: "bob@example.com", FullName: "Bob Builder", CreatedAt: now},
	}
	if _, err := db.NewInsert().Model(&users).Exec(ctx); err != nil {
		log.Fatalf("Failed to seed users: %v", err)
	}
}
