// Package analytics aggregates booking data for the admin dashboard.
// Read-only: every query runs against the bookings tables the booking
// service writes, never against the ledger.
package analytics

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"cinebook/internal/models"
)

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// ShowAnalytics is the aggregated sales picture for one show.
type ShowAnalytics struct {
	ShowID          string              `json:"show_id"`
	TotalRevenue    float64             `json:"total_revenue"`
	TotalBeforeDisc float64             `json:"total_before_discounts"`
	TotalSeatsSold  int                 `json:"total_seats_sold"`
	DailySales      []DailySalesMetrics `json:"daily_sales"`
	SalesByTier     []TierSalesMetrics  `json:"sales_by_tier"`
}

// DailySalesMetrics contains metrics for a single day.
type DailySalesMetrics struct {
	Date      string  `json:"date"`
	Revenue   float64 `json:"revenue"`
	SeatsSold int     `json:"seats_sold"`
}

// TierSalesMetrics contains sales metrics for one seat tier.
type TierSalesMetrics struct {
	Tier      string  `json:"tier"`
	SeatsSold int     `json:"seats_sold"`
	Revenue   float64 `json:"revenue"`
}

// PromoUsage tracks promo code redemptions by day.
type PromoUsage struct {
	Date          string  `json:"date"`
	PromoCode     string  `json:"promo_code"`
	UsageCount    int     `json:"usage_count"`
	TotalDiscount float64 `json:"total_discount_amount"`
}

// ShowPromoAnalytics represents promo usage for one show.
type ShowPromoAnalytics struct {
	ShowID     string       `json:"show_id"`
	PromoUsage []PromoUsage `json:"promo_usage"`
}

// GetShowAnalytics returns revenue analytics for a show, optionally
// filtered by booking status (usually CONFIRMED).
func (s *Service) GetShowAnalytics(ctx context.Context, showID string, status string) (*ShowAnalytics, error) {
	var bookings []models.Booking
	query := s.db.NewSelect().
		Model(&bookings).
		Where("show_id = ?", showID)

	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, err
	}

	var seatCount int
	rawSQL := "SELECT COUNT(*) FROM booking_seats s JOIN bookings b ON s.booking_id = b.id WHERE b.show_id = ?"
	args := []interface{}{showID}

	if status != "" {
		rawSQL += " AND b.status = ?"
		args = append(args, status)
	}

	if err := s.db.NewRaw(rawSQL, args...).Scan(ctx, &seatCount); err != nil {
		return nil, err
	}

	type dailySalesRaw struct {
		SalesDate     time.Time `bun:"sales_date"`
		DailyRevenue  float64   `bun:"daily_revenue"`
		DailyQuantity int       `bun:"seats_sold_on_date"`
	}

	var dailySales []dailySalesRaw
	rawSQL = `
		SELECT
			DATE(b.created_at) AS sales_date,
			SUM(b.amount) AS daily_revenue,
			COALESCE(SUM(seat_count), 0) AS seats_sold_on_date
		FROM (
			SELECT id, show_id, amount, status, created_at
			FROM bookings
			WHERE show_id = ?
	`
	args = []interface{}{showID}

	if status != "" {
		rawSQL += " AND status = ?"
		args = append(args, status)
	}

	rawSQL += `
		) b
		LEFT JOIN (
			SELECT booking_id, COUNT(*) AS seat_count
			FROM booking_seats
			GROUP BY booking_id
		) s ON s.booking_id = b.id
		GROUP BY DATE(b.created_at)
		ORDER BY sales_date
	`

	if err := s.db.NewRaw(rawSQL, args...).Scan(ctx, &dailySales); err != nil {
		return nil, err
	}

	var totalRevenue float64
	var totalBeforeDisc float64
	for _, b := range bookings {
		totalRevenue += b.Amount
		totalBeforeDisc += b.OriginalAmount
	}

	type tierSalesRaw struct {
		Tier        string  `bun:"tier"`
		SeatCount   int     `bun:"seat_count"`
		TierRevenue float64 `bun:"tier_revenue"`
	}

	var tierSales []tierSalesRaw
	rawSQL = `
		SELECT
			s.tier,
			COUNT(*) AS seat_count,
			SUM(s.price) AS tier_revenue
		FROM booking_seats s
		JOIN bookings b ON s.booking_id = b.id
		WHERE b.show_id = ?
	`
	args = []interface{}{showID}

	if status != "" {
		rawSQL += " AND b.status = ?"
		args = append(args, status)
	}

	rawSQL += `
		GROUP BY s.tier
		ORDER BY s.tier
	`

	if err := s.db.NewRaw(rawSQL, args...).Scan(ctx, &tierSales); err != nil {
		return nil, err
	}

	result := &ShowAnalytics{
		ShowID:          showID,
		TotalRevenue:    totalRevenue,
		TotalBeforeDisc: totalBeforeDisc,
		TotalSeatsSold:  seatCount,
		DailySales:      make([]DailySalesMetrics, 0, len(dailySales)),
		SalesByTier:     make([]TierSalesMetrics, 0, len(tierSales)),
	}

	for _, ds := range dailySales {
		result.DailySales = append(result.DailySales, DailySalesMetrics{
			Date:      ds.SalesDate.Format("2006-01-02"),
			Revenue:   ds.DailyRevenue,
			SeatsSold: ds.DailyQuantity,
		})
	}

	for _, ts := range tierSales {
		result.SalesByTier = append(result.SalesByTier, TierSalesMetrics{
			Tier:      ts.Tier,
			SeatsSold: ts.SeatCount,
			Revenue:   ts.TierRevenue,
		})
	}

	return result, nil
}

// GetShowPromoAnalytics returns promo code usage for a show by day.
func (s *Service) GetShowPromoAnalytics(ctx context.Context, showID string, status string) (*ShowPromoAnalytics, error) {
	type promoUsageRaw struct {
		UsageDate         time.Time `bun:"usage_date"`
		PromoCode         string    `bun:"promo_code"`
		CodeUsageCount    int       `bun:"code_usage_count"`
		DiscountAmountSum float64   `bun:"discount_amount_sum"`
	}

	var promoUsage []promoUsageRaw
	query := s.db.NewSelect().
		ColumnExpr("DATE(bookings.created_at) AS usage_date").
		ColumnExpr("bookings.promo_code").
		ColumnExpr("COUNT(*) AS code_usage_count").
		ColumnExpr("SUM(bookings.discount_amount) AS discount_amount_sum").
		TableExpr("bookings").
		Where("bookings.show_id = ? AND bookings.promo_code IS NOT NULL AND bookings.promo_code != ''", showID)

	if status != "" {
		query = query.Where("bookings.status = ?", status)
	}

	err := query.
		GroupExpr("DATE(bookings.created_at), bookings.promo_code").
		OrderExpr("DATE(bookings.created_at), bookings.promo_code").
		Scan(ctx, &promoUsage)
	if err != nil {
		return nil, err
	}

	result := &ShowPromoAnalytics{
		ShowID:     showID,
		PromoUsage: make([]PromoUsage, 0, len(promoUsage)),
	}

	for _, pu := range promoUsage {
		result.PromoUsage = append(result.PromoUsage, PromoUsage{
			Date:          pu.UsageDate.Format("2006-01-02"),
			PromoCode:     pu.PromoCode,
			UsageCount:    pu.CodeUsageCount,
			TotalDiscount: pu.DiscountAmountSum,
		})
	}

	return result, nil
}
