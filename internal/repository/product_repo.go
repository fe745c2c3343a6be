package repository

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/stockroomhq/stockroom/internal/models"
)

// ProductRepository handles data access for products.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ProductFilter holds filters for paginated product queries.
type ProductFilter struct {
	Search   string
	Category string
	Page     int
	Limit    int
}

// ProductPage contains one page of products plus pagination totals.
type ProductPage struct {
	Products   []models.Product
	TotalItems int
	TotalPages int
	Page       int
	Limit      int
}

// GetPaged returns products newest-first with optional free-text search and
// exact category filter, plus the total count. Search matches name,
// description, or sku as a case-insensitive substring. Page begins at 1.
func (r *ProductRepository) GetPaged(filter *ProductFilter) (*ProductPage, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 12
	}
	offset := (filter.Page - 1) * filter.Limit

	const baseWhere = `WHERE ($1 = ''
	        OR name ILIKE '%' || $1 || '%'
	        OR description ILIKE '%' || $1 || '%'
	        OR sku ILIKE '%' || $1 || '%')
	    AND ($2 = '' OR category = $2)`

	// Count total
	countQuery := `SELECT COUNT(1) FROM products ` + baseWhere
	var total int
	if err := r.db.Get(&total, countQuery, filter.Search, filter.Category); err != nil {
		return nil, err
	}

	// Fetch page
	listQuery := `SELECT * FROM products ` + baseWhere + `
	    ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`
	products := []models.Product{}
	if err := r.db.Select(&products, listQuery, filter.Search, filter.Category, filter.Limit, offset); err != nil {
		return nil, err
	}

	return &ProductPage{
		Products:   products,
		TotalItems: total,
		TotalPages: (total + filter.Limit - 1) / filter.Limit,
		Page:       filter.Page,
		Limit:      filter.Limit,
	}, nil
}

// GetByID returns a single product by id.
func (r *ProductRepository) GetByID(id int) (*models.Product, error) {
	const q = `SELECT * FROM products WHERE id = $1 LIMIT 1`
	var p models.Product
	if err := r.db.Get(&p, q, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetBySKU returns a single product by sku.
func (r *ProductRepository) GetBySKU(sku string) (*models.Product, error) {
	const q = `SELECT * FROM products WHERE sku = $1 LIMIT 1`
	var p models.Product
	if err := r.db.Get(&p, q, sku); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new product and backfills store-assigned fields.
func (r *ProductRepository) Create(product *models.Product) error {
	const q = `INSERT INTO products
	        (name, description, price, category, stock, sku, featured_image, featured_image_original_name)
	    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	    RETURNING id, created_at, updated_at`

	return r.db.QueryRowx(q,
		product.Name,
		product.Description,
		product.Price,
		product.Category,
		product.Stock,
		product.SKU,
		product.FeaturedImage,
		product.FeaturedImageName,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
}

// Update updates an existing product. Concurrent updates are last-write-wins.
func (r *ProductRepository) Update(product *models.Product) error {
	const q = `UPDATE products
	    SET name = $1, description = $2, price = $3, category = $4,
	        stock = $5, sku = $6, featured_image = $7,
	        featured_image_original_name = $8, updated_at = NOW()
	    WHERE id = $9
	    RETURNING updated_at`

	err := r.db.QueryRowx(q,
		product.Name,
		product.Description,
		product.Price,
		product.Category,
		product.Stock,
		product.SKU,
		product.FeaturedImage,
		product.FeaturedImageName,
		product.ID,
	).Scan(&product.UpdatedAt)
	return err
}

// Delete deletes a product by ID. Returns sql.ErrNoRows if nothing matched.
func (r *ProductRepository) Delete(id int) error {
	res, err := r.db.Exec(`DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetDistinctCategories returns all distinct non-null categories.
func (r *ProductRepository) GetDistinctCategories() ([]string, error) {
	const q = `SELECT DISTINCT category FROM products WHERE category IS NOT NULL ORDER BY category`
	categories := []string{}
	if err := r.db.Select(&categories, q); err != nil {
		return nil, err
	}
	return categories, nil
}

// CountByImageRef returns how many product rows reference a blob key.
func (r *ProductRepository) CountByImageRef(ref string) (int, error) {
	var n int
	if err := r.db.Get(&n, `SELECT COUNT(1) FROM products WHERE featured_image = $1`, ref); err != nil {
		return 0, err
	}
	return n, nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation (used to map SKU collisions to a field error).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
