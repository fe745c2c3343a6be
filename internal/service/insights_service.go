package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stockroomhq/stockroom/internal/cache"
	"github.com/stockroomhq/stockroom/internal/models"
	"github.com/stockroomhq/stockroom/internal/repository"
	"github.com/stockroomhq/stockroom/internal/storage"
)

// LowStockThreshold marks products as running low. A later iteration may
// make this configurable per product.
const LowStockThreshold = 10

// StatsStore is the subset of aggregate queries the insights pages need.
type StatsStore interface {
	DashboardCounts(lowStockThreshold int) (*repository.DashboardCounts, error)
	TopCategory() (*repository.CategoryCount, error)
	DailyCreatedCounts(days int) ([]repository.DayCount, error)
	MonthlyCreatedCounts(months int) ([]repository.MonthCount, error)
	CategoryCounts() ([]repository.CategoryCount, error)
	TopCategories(limit int) ([]repository.CategoryCount, error)
	LowStock(threshold int) ([]models.Product, error)
	LowStockCounts(threshold int) (*repository.LowStockCounts, error)
	PriciestProduct() (*models.Product, error)
	CategoryValuation() ([]repository.CategoryValuation, error)
}

// StatsCache caches assembled aggregate payloads. Implemented by
// cache.StatsCache; nil disables caching.
type StatsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, v interface{}) error
}

// InsightsService assembles the dashboard, category, low-stock, analytics,
// and report aggregates. Every figure is derived from catalog rows; nothing
// is fabricated.
type InsightsService struct {
	stats StatsStore
	blob  storage.BlobStore
	cache StatsCache
}

// NewInsightsService constructs an InsightsService. cache may be nil.
func NewInsightsService(stats StatsStore, blob storage.BlobStore, statsCache StatsCache) *InsightsService {
	return &InsightsService{stats: stats, blob: blob, cache: statsCache}
}

// DashboardData is the dashboard page payload.
type DashboardData struct {
	Stats       repository.DashboardCounts `json:"stats"`
	TopCategory string                     `json:"topCategory"`
	AvgValue    float64                    `json:"avgValue"`
	WeeklyData  []WeeklyPoint              `json:"weeklyData"`
}

// WeeklyPoint is one day in the dashboard's creation chart.
type WeeklyPoint struct {
	Day        string  `json:"day"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Dashboard returns the headline aggregates, served from cache when fresh.
func (s *InsightsService) Dashboard(ctx context.Context) (*DashboardData, error) {
	var cached DashboardData
	if s.cacheGet(ctx, cache.KeyDashboard, &cached) {
		return &cached, nil
	}

	counts, err := s.stats.DashboardCounts(LowStockThreshold)
	if err != nil {
		return nil, fmt.Errorf("dashboard counts: %w", err)
	}

	topCategory := "Not set"
	if top, err := s.stats.TopCategory(); err == nil {
		topCategory = top.Category
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("top category: %w", err)
	}

	avgValue := 0.0
	if counts.TotalProducts > 0 {
		avgValue = round2(counts.TotalValue / float64(counts.TotalProducts))
	}

	daily, err := s.stats.DailyCreatedCounts(7)
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}
	weekly := make([]WeeklyPoint, 0, len(daily))
	for _, d := range daily {
		point := WeeklyPoint{Day: d.Day.Format("Mon"), Count: d.Count}
		if counts.TotalProducts > 0 {
			point.Percentage = round1(float64(d.Count) / float64(counts.TotalProducts) * 100)
		}
		weekly = append(weekly, point)
	}

	data := &DashboardData{
		Stats:       *counts,
		TopCategory: topCategory,
		AvgValue:    avgValue,
		WeeklyData:  weekly,
	}
	s.cacheSet(ctx, cache.KeyDashboard, data)
	return data, nil
}

// CategoriesData is the category page payload.
type CategoriesData struct {
	Categories []repository.CategoryCount `json:"categories"`
	Stats      CategoryStats              `json:"stats"`
}

// CategoryStats summarizes the categorized part of the catalog.
type CategoryStats struct {
	TotalCategories int     `json:"totalCategories"`
	TotalProducts   int     `json:"totalProducts"`
	AvgPerCategory  float64 `json:"avgPerCategory"`
}

// Categories returns per-category product counts with summary stats.
func (s *InsightsService) Categories(ctx context.Context) (*CategoriesData, error) {
	counts, err := s.stats.CategoryCounts()
	if err != nil {
		return nil, fmt.Errorf("category counts: %w", err)
	}

	totalProducts := 0
	for _, c := range counts {
		totalProducts += c.Count
	}
	stats := CategoryStats{
		TotalCategories: len(counts),
		TotalProducts:   totalProducts,
	}
	if len(counts) > 0 {
		stats.AvgPerCategory = round1(float64(totalProducts) / float64(len(counts)))
	}

	return &CategoriesData{Categories: counts, Stats: stats}, nil
}

// LowStockItem is one row on the low-stock page.
type LowStockItem struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Stock     int     `json:"stock"`
	Threshold int     `json:"threshold"`
	Category  string  `json:"category"`
	Image     *string `json:"image"`
}

// LowStockData is the low-stock page payload.
type LowStockData struct {
	Products []LowStockItem            `json:"lowStockProducts"`
	Stats    repository.LowStockCounts `json:"stats"`
}

// LowStock returns products under the threshold, lowest stock first, with
// image references resolved to public URLs.
func (s *InsightsService) LowStock(ctx context.Context) (*LowStockData, error) {
	products, err := s.stats.LowStock(LowStockThreshold)
	if err != nil {
		return nil, fmt.Errorf("low stock products: %w", err)
	}
	counts, err := s.stats.LowStockCounts(LowStockThreshold)
	if err != nil {
		return nil, fmt.Errorf("low stock counts: %w", err)
	}

	items := make([]LowStockItem, 0, len(products))
	for _, p := range products {
		item := LowStockItem{
			ID:        p.ID,
			Name:      p.Name,
			Stock:     p.Stock,
			Threshold: LowStockThreshold,
			Category:  "Uncategorized",
		}
		if p.Category != nil {
			item.Category = *p.Category
		}
		if p.FeaturedImage != nil {
			url := s.blob.URL(*p.FeaturedImage)
			item.Image = &url
		}
		items = append(items, item)
	}

	return &LowStockData{Products: items, Stats: *counts}, nil
}

// AnalyticsData is the analytics page payload.
type AnalyticsData struct {
	Metrics        AnalyticsMetrics `json:"metrics"`
	MonthlyCreated []MonthlyPoint   `json:"monthlyCreated"`
	TopCategories  []CategoryShare  `json:"topCategories"`
	TopPriced      *TopProduct      `json:"topPriced"`
}

// AnalyticsMetrics are the headline analytics figures.
type AnalyticsMetrics struct {
	TotalRevenue  float64 `json:"totalRevenue"`
	TotalProducts int     `json:"totalProducts"`
	AvgValue      float64 `json:"avgValue"`
}

// MonthlyPoint is one month in the creation time series.
type MonthlyPoint struct {
	Month      string  `json:"month"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// CategoryShare is a category's share of the largest category.
type CategoryShare struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

// TopProduct names the highest-priced product.
type TopProduct struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Analytics returns catalog-derived analytics. Order/sales metrics are
// omitted until a real order ledger exists to aggregate over.
func (s *InsightsService) Analytics(ctx context.Context) (*AnalyticsData, error) {
	var cached AnalyticsData
	if s.cacheGet(ctx, cache.KeyAnalytics, &cached) {
		return &cached, nil
	}

	counts, err := s.stats.DashboardCounts(LowStockThreshold)
	if err != nil {
		return nil, fmt.Errorf("analytics counts: %w", err)
	}

	data := &AnalyticsData{
		Metrics: AnalyticsMetrics{
			TotalRevenue:  round2(counts.TotalValue),
			TotalProducts: counts.TotalProducts,
		},
	}
	if counts.TotalProducts > 0 {
		data.Metrics.AvgValue = round2(counts.TotalValue / float64(counts.TotalProducts))
	}

	monthly, err := s.stats.MonthlyCreatedCounts(12)
	if err != nil {
		return nil, fmt.Errorf("monthly counts: %w", err)
	}
	maxMonth := 0
	for _, m := range monthly {
		if m.Count > maxMonth {
			maxMonth = m.Count
		}
	}
	data.MonthlyCreated = make([]MonthlyPoint, 0, len(monthly))
	for _, m := range monthly {
		point := MonthlyPoint{Month: m.Month.Format("Jan"), Count: m.Count}
		if maxMonth > 0 {
			point.Percentage = round1(float64(m.Count) / float64(maxMonth) * 100)
		}
		data.MonthlyCreated = append(data.MonthlyCreated, point)
	}

	top, err := s.stats.TopCategories(5)
	if err != nil {
		return nil, fmt.Errorf("top categories: %w", err)
	}
	maxCount := 0
	for _, c := range top {
		if c.Count > maxCount {
			maxCount = c.Count
		}
	}
	data.TopCategories = make([]CategoryShare, 0, len(top))
	for _, c := range top {
		share := CategoryShare{Name: c.Category, Count: c.Count}
		if maxCount > 0 {
			share.Value = math.Round(float64(c.Count) / float64(maxCount) * 100)
		}
		data.TopCategories = append(data.TopCategories, share)
	}

	if priciest, err := s.stats.PriciestProduct(); err == nil {
		data.TopPriced = &TopProduct{Name: priciest.Name, Price: priciest.Price}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("priciest product: %w", err)
	}

	s.cacheSet(ctx, cache.KeyAnalytics, data)
	return data, nil
}

// InventoryReport is the per-category valuation report payload.
type InventoryReport struct {
	GeneratedAt time.Time                      `json:"generatedAt"`
	Lines       []repository.CategoryValuation `json:"lines"`
	TotalUnits  int                            `json:"totalUnits"`
	TotalValue  float64                        `json:"totalValue"`
}

// InventoryReport values the current stock per category.
func (s *InsightsService) InventoryReport(ctx context.Context) (*InventoryReport, error) {
	lines, err := s.stats.CategoryValuation()
	if err != nil {
		return nil, fmt.Errorf("inventory valuation: %w", err)
	}

	report := &InventoryReport{GeneratedAt: time.Now(), Lines: lines}
	for _, line := range lines {
		report.TotalUnits += line.Units
		report.TotalValue += line.StockValue
	}
	report.TotalValue = round2(report.TotalValue)
	return report, nil
}

// cacheGet reads a cached payload; cache errors are non-fatal.
func (s *InsightsService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Stats cache read failed")
		return false
	}
	return hit
}

// cacheSet writes a payload; cache errors are non-fatal.
func (s *InsightsService) cacheSet(ctx context.Context, key string, v interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, v); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Stats cache write failed")
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
