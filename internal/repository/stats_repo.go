package repository

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stockroomhq/stockroom/internal/models"
)

// StatsRepository computes aggregate queries over the products table for the
// dashboard, category, low-stock, analytics, and report pages.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// DashboardCounts holds the headline dashboard aggregates.
type DashboardCounts struct {
	TotalProducts  int     `db:"total_products" json:"totalProducts"`
	TotalValue     float64 `db:"total_value" json:"totalValue"`
	LowStock       int     `db:"low_stock" json:"lowStock"`
	OutOfStock     int     `db:"out_of_stock" json:"outOfStock"`
	Categories     int     `db:"categories" json:"categories"`
	RecentProducts int     `db:"recent_products" json:"recentProducts"`
}

// CategoryCount is a per-category product tally.
type CategoryCount struct {
	Category string `db:"category" json:"name"`
	Count    int    `db:"count" json:"count"`
}

// DayCount is a per-day product creation tally.
type DayCount struct {
	Day   time.Time `db:"day" json:"day"`
	Count int       `db:"count" json:"count"`
}

// MonthCount is a per-month product creation tally.
type MonthCount struct {
	Month time.Time `db:"month" json:"month"`
	Count int       `db:"count" json:"count"`
}

// LowStockCounts holds aggregates for the low-stock page.
type LowStockCounts struct {
	LowStockCount   int `db:"low_stock_count" json:"lowStockCount"`
	OutOfStockCount int `db:"out_of_stock_count" json:"outOfStockCount"`
	TotalUnitsLeft  int `db:"total_units_left" json:"totalUnitsLeft"`
}

// CategoryValuation is a per-category inventory valuation line.
type CategoryValuation struct {
	Category   string  `db:"category" json:"category"`
	Products   int     `db:"products" json:"products"`
	Units      int     `db:"units" json:"units"`
	StockValue float64 `db:"stock_value" json:"stockValue"`
}

// DashboardCounts returns the headline aggregates in a single query.
func (r *StatsRepository) DashboardCounts(lowStockThreshold int) (*DashboardCounts, error) {
	const q = `
	    SELECT COUNT(*) AS total_products,
	        COALESCE(SUM(price), 0) AS total_value,
	        COUNT(*) FILTER (WHERE stock > 0 AND stock < $1) AS low_stock,
	        COUNT(*) FILTER (WHERE stock = 0) AS out_of_stock,
	        COUNT(DISTINCT category) AS categories,
	        COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '7 days') AS recent_products
	    FROM products`

	var counts DashboardCounts
	if err := r.db.Get(&counts, q, lowStockThreshold); err != nil {
		return nil, err
	}
	return &counts, nil
}

// TopCategory returns the category with the most products, or sql.ErrNoRows
// when no product has a category.
func (r *StatsRepository) TopCategory() (*CategoryCount, error) {
	const q = `
	    SELECT category, COUNT(*) AS count FROM products
	    WHERE category IS NOT NULL
	    GROUP BY category
	    ORDER BY count DESC, category
	    LIMIT 1`

	var top CategoryCount
	if err := r.db.Get(&top, q); err != nil {
		return nil, err
	}
	return &top, nil
}

// DailyCreatedCounts returns per-day creation counts for the last `days`
// days, including zero-count days, oldest first.
func (r *StatsRepository) DailyCreatedCounts(days int) ([]DayCount, error) {
	const q = `
	    SELECT d::date AS day, COUNT(p.id) AS count
	    FROM generate_series(
	        CURRENT_DATE - ($1 - 1) * INTERVAL '1 day',
	        CURRENT_DATE,
	        INTERVAL '1 day') AS d
	    LEFT JOIN products p ON p.created_at::date = d::date
	    GROUP BY d
	    ORDER BY d`

	counts := []DayCount{}
	if err := r.db.Select(&counts, q, days); err != nil {
		return nil, err
	}
	return counts, nil
}

// MonthlyCreatedCounts returns per-month creation counts for the last
// `months` months, including zero-count months, oldest first.
func (r *StatsRepository) MonthlyCreatedCounts(months int) ([]MonthCount, error) {
	const q = `
	    SELECT m::date AS month, COUNT(p.id) AS count
	    FROM generate_series(
	        date_trunc('month', CURRENT_DATE) - ($1 - 1) * INTERVAL '1 month',
	        date_trunc('month', CURRENT_DATE),
	        INTERVAL '1 month') AS m
	    LEFT JOIN products p ON date_trunc('month', p.created_at) = m
	    GROUP BY m
	    ORDER BY m`

	counts := []MonthCount{}
	if err := r.db.Select(&counts, q, months); err != nil {
		return nil, err
	}
	return counts, nil
}

// CategoryCounts returns product counts per non-null category.
func (r *StatsRepository) CategoryCounts() ([]CategoryCount, error) {
	const q = `
	    SELECT category, COUNT(*) AS count FROM products
	    WHERE category IS NOT NULL
	    GROUP BY category
	    ORDER BY count DESC, category`

	counts := []CategoryCount{}
	if err := r.db.Select(&counts, q); err != nil {
		return nil, err
	}
	return counts, nil
}

// TopCategories returns the `limit` largest categories by product count.
func (r *StatsRepository) TopCategories(limit int) ([]CategoryCount, error) {
	const q = `
	    SELECT category, COUNT(*) AS count FROM products
	    WHERE category IS NOT NULL
	    GROUP BY category
	    ORDER BY count DESC, category
	    LIMIT $1`

	counts := []CategoryCount{}
	if err := r.db.Select(&counts, q, limit); err != nil {
		return nil, err
	}
	return counts, nil
}

// LowStock returns products below the stock threshold, lowest stock first.
func (r *StatsRepository) LowStock(threshold int) ([]models.Product, error) {
	const q = `SELECT * FROM products WHERE stock < $1 ORDER BY stock ASC, id ASC`
	products := []models.Product{}
	if err := r.db.Select(&products, q, threshold); err != nil {
		return nil, err
	}
	return products, nil
}

// LowStockCounts returns aggregates for the low-stock page.
func (r *StatsRepository) LowStockCounts(threshold int) (*LowStockCounts, error) {
	const q = `
	    SELECT COUNT(*) FILTER (WHERE stock > 0 AND stock < $1) AS low_stock_count,
	        COUNT(*) FILTER (WHERE stock = 0) AS out_of_stock_count,
	        COALESCE(SUM(stock) FILTER (WHERE stock < $1), 0) AS total_units_left
	    FROM products`

	var counts LowStockCounts
	if err := r.db.Get(&counts, q, threshold); err != nil {
		return nil, err
	}
	return &counts, nil
}

// PriciestProduct returns the highest-priced product, or sql.ErrNoRows for an
// empty catalog.
func (r *StatsRepository) PriciestProduct() (*models.Product, error) {
	const q = `SELECT * FROM products ORDER BY price DESC, id ASC LIMIT 1`
	var p models.Product
	if err := r.db.Get(&p, q); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return &p, nil
}

// CategoryValuation returns per-category unit counts and stock value.
// Uncategorized products are grouped under "Uncategorized".
func (r *StatsRepository) CategoryValuation() ([]CategoryValuation, error) {
	const q = `
	    SELECT COALESCE(category, 'Uncategorized') AS category,
	        COUNT(*) AS products,
	        COALESCE(SUM(stock), 0) AS units,
	        COALESCE(SUM(price * stock), 0) AS stock_value
	    FROM products
	    GROUP BY COALESCE(category, 'Uncategorized')
	    ORDER BY stock_value DESC, category`

	lines := []CategoryValuation{}
	if err := r.db.Select(&lines, q); err != nil {
		return nil, err
	}
	return lines, nil
}
