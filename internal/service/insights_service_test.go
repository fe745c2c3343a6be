package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockroomhq/stockroom/internal/models"
	"github.com/stockroomhq/stockroom/internal/repository"
	"github.com/stockroomhq/stockroom/internal/storage"
)

// stubStats returns canned aggregates.
type stubStats struct {
	counts      repository.DashboardCounts
	topCategory *repository.CategoryCount
	daily       []repository.DayCount
	monthly     []repository.MonthCount
	categories  []repository.CategoryCount
	lowStock    []models.Product
	lowCounts   repository.LowStockCounts
	priciest    *models.Product
	valuation   []repository.CategoryValuation
}

func (s *stubStats) DashboardCounts(int) (*repository.DashboardCounts, error) {
	c := s.counts
	return &c, nil
}

func (s *stubStats) TopCategory() (*repository.CategoryCount, error) {
	if s.topCategory == nil {
		return nil, sql.ErrNoRows
	}
	return s.topCategory, nil
}

func (s *stubStats) DailyCreatedCounts(int) ([]repository.DayCount, error)     { return s.daily, nil }
func (s *stubStats) MonthlyCreatedCounts(int) ([]repository.MonthCount, error) { return s.monthly, nil }
func (s *stubStats) CategoryCounts() ([]repository.CategoryCount, error)       { return s.categories, nil }
func (s *stubStats) TopCategories(limit int) ([]repository.CategoryCount, error) {
	if limit > len(s.categories) {
		limit = len(s.categories)
	}
	return s.categories[:limit], nil
}
func (s *stubStats) LowStock(int) ([]models.Product, error) { return s.lowStock, nil }
func (s *stubStats) LowStockCounts(int) (*repository.LowStockCounts, error) {
	c := s.lowCounts
	return &c, nil
}
func (s *stubStats) PriciestProduct() (*models.Product, error) {
	if s.priciest == nil {
		return nil, sql.ErrNoRows
	}
	return s.priciest, nil
}
func (s *stubStats) CategoryValuation() ([]repository.CategoryValuation, error) {
	return s.valuation, nil
}

func TestDashboardAggregates(t *testing.T) {
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC) // a Monday
	stats := &stubStats{
		counts: repository.DashboardCounts{
			TotalProducts: 3,
			TotalValue:    100,
			LowStock:      1,
			Categories:    2,
		},
		topCategory: &repository.CategoryCount{Category: "Furniture", Count: 2},
		daily: []repository.DayCount{
			{Day: day, Count: 1},
			{Day: day.AddDate(0, 0, 1), Count: 2},
		},
	}
	svc := NewInsightsService(stats, storage.NewMemoryStore(), nil)

	data, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Furniture", data.TopCategory)
	assert.InDelta(t, 33.33, data.AvgValue, 0.001)
	require.Len(t, data.WeeklyData, 2)
	assert.Equal(t, "Mon", data.WeeklyData[0].Day)
	assert.InDelta(t, 33.3, data.WeeklyData[0].Percentage, 0.001)
	assert.InDelta(t, 66.7, data.WeeklyData[1].Percentage, 0.001)
}

func TestDashboardEmptyCatalog(t *testing.T) {
	svc := NewInsightsService(&stubStats{}, storage.NewMemoryStore(), nil)

	data, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Not set", data.TopCategory)
	assert.Zero(t, data.AvgValue)
}

func TestCategoriesStats(t *testing.T) {
	stats := &stubStats{
		categories: []repository.CategoryCount{
			{Category: "Furniture", Count: 5},
			{Category: "Lighting", Count: 2},
		},
	}
	svc := NewInsightsService(stats, storage.NewMemoryStore(), nil)

	data, err := svc.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, data.Stats.TotalCategories)
	assert.Equal(t, 7, data.Stats.TotalProducts)
	assert.InDelta(t, 3.5, data.Stats.AvgPerCategory, 0.001)
}

func TestLowStockDefaultsAndImageURL(t *testing.T) {
	key := "products/abc.png"
	stats := &stubStats{
		lowStock: []models.Product{
			{ID: 1, Name: "Lamp", Stock: 2, FeaturedImage: &key},
			{ID: 2, Name: "Chair", Stock: 0, Category: ptr("Furniture")},
		},
		lowCounts: repository.LowStockCounts{LowStockCount: 1, OutOfStockCount: 1, TotalUnitsLeft: 2},
	}
	svc := NewInsightsService(stats, storage.NewMemoryStore(), nil)

	data, err := svc.LowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, data.Products, 2)
	assert.Equal(t, "Uncategorized", data.Products[0].Category)
	require.NotNil(t, data.Products[0].Image)
	assert.Equal(t, "https://blobs.test/products/abc.png", *data.Products[0].Image)
	assert.Equal(t, "Furniture", data.Products[1].Category)
	assert.Nil(t, data.Products[1].Image)
	assert.Equal(t, LowStockThreshold, data.Products[0].Threshold)
}

func TestAnalyticsShares(t *testing.T) {
	month := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stats := &stubStats{
		counts: repository.DashboardCounts{TotalProducts: 4, TotalValue: 400},
		monthly: []repository.MonthCount{
			{Month: month, Count: 4},
			{Month: month.AddDate(0, 1, 0), Count: 1},
		},
		categories: []repository.CategoryCount{
			{Category: "Furniture", Count: 4},
			{Category: "Lighting", Count: 1},
		},
		priciest: &models.Product{Name: "Grand Piano", Price: 9999},
	}
	svc := NewInsightsService(stats, storage.NewMemoryStore(), nil)

	data, err := svc.Analytics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 400.0, data.Metrics.TotalRevenue)
	assert.Equal(t, 100.0, data.Metrics.AvgValue)
	require.Len(t, data.MonthlyCreated, 2)
	assert.Equal(t, "Jan", data.MonthlyCreated[0].Month)
	assert.Equal(t, 100.0, data.MonthlyCreated[0].Percentage)
	assert.Equal(t, 25.0, data.MonthlyCreated[1].Percentage)
	require.Len(t, data.TopCategories, 2)
	assert.Equal(t, 100.0, data.TopCategories[0].Value)
	assert.Equal(t, 25.0, data.TopCategories[1].Value)
	require.NotNil(t, data.TopPriced)
	assert.Equal(t, "Grand Piano", data.TopPriced.Name)
}

func TestAnalyticsEmptyCatalog(t *testing.T) {
	svc := NewInsightsService(&stubStats{}, storage.NewMemoryStore(), nil)

	data, err := svc.Analytics(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data.TopPriced)
	assert.Zero(t, data.Metrics.AvgValue)
}

func TestInventoryReportTotals(t *testing.T) {
	stats := &stubStats{
		valuation: []repository.CategoryValuation{
			{Category: "Furniture", Products: 2, Units: 10, StockValue: 500.5},
			{Category: "Uncategorized", Products: 1, Units: 3, StockValue: 99.5},
		},
	}
	svc := NewInsightsService(stats, storage.NewMemoryStore(), nil)

	report, err := svc.InventoryReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 13, report.TotalUnits)
	assert.Equal(t, 600.0, report.TotalValue)
	assert.False(t, report.GeneratedAt.IsZero())
	assert.Len(t, report.Lines, 2)
}
