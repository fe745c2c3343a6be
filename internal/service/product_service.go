package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stockroomhq/stockroom/internal/models"
	"github.com/stockroomhq/stockroom/internal/repository"
	"github.com/stockroomhq/stockroom/internal/storage"
	"github.com/stockroomhq/stockroom/internal/utils"
)

const (
	// PageSize is the fixed page size for product listings.
	PageSize = 12

	// MaxImageBytes caps uploaded product images at 10MB.
	MaxImageBytes = 10 << 20

	maxNameLen        = 255
	maxDescriptionLen = 1000
	maxCategoryLen    = 100
	maxSKULen         = 50
	maxPrice          = 999999.99

	// ImageKeyPrefix is the object key prefix for product image blobs. The
	// reaper scans the same prefix for orphans.
	ImageKeyPrefix = "products/"
)

// allowedImageTypes maps accepted image content types to object key extensions.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ProductStore is the subset of repository methods the catalog service needs.
type ProductStore interface {
	GetPaged(filter *repository.ProductFilter) (*repository.ProductPage, error)
	GetByID(id int) (*models.Product, error)
	GetBySKU(sku string) (*models.Product, error)
	Create(product *models.Product) error
	Update(product *models.Product) error
	Delete(id int) error
	GetDistinctCategories() ([]string, error)
}

// StatsInvalidator drops cached aggregates after a product write.
type StatsInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ProductService owns the product lifecycle: validated creation, partial
// update with image replacement, deletion with image cleanup, and the
// search/filter/paginate listing. The service — never the store — keeps
// featured image references consistent with blob storage.
type ProductService struct {
	store ProductStore
	blob  storage.BlobStore
	stats StatsInvalidator
}

// NewProductService constructs a ProductService. stats may be nil when no
// cache is configured.
func NewProductService(store ProductStore, blob storage.BlobStore, stats StatsInvalidator) *ProductService {
	return &ProductService{store: store, blob: blob, stats: stats}
}

// ProductInput carries create/update fields. Name, Description, and Price are
// mandatory on every call; nil optional fields mean "absent" — defaulted on
// create, left unchanged on update.
type ProductInput struct {
	Name        string
	Description string
	Price       *float64
	Category    *string
	Stock       *int
	SKU         *string
}

// ProductPatch carries partial-update fields; nil means "leave unchanged".
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *float64
	Category    *string
	Stock       *int
	SKU         *string
}

// ImageUpload is an uploaded image file.
type ImageUpload struct {
	Data         []byte
	ContentType  string
	OriginalName string
}

// ListFilter holds the listing query parameters.
type ListFilter struct {
	Search   string
	Category string
	Page     int
}

// ListResult is one page of products plus the data the listing view needs to
// build its filter controls.
type ListResult struct {
	Products   []models.Product `json:"products"`
	Categories []string         `json:"categories"`
	Filters    ListFilters      `json:"filters"`

	Page       int `json:"-"`
	Limit      int `json:"-"`
	TotalItems int `json:"-"`
	TotalPages int `json:"-"`
}

// ListFilters echoes the applied filters back to the caller.
type ListFilters struct {
	Search   string `json:"search"`
	Category string `json:"category"`
}

// List returns one page of products, newest first. Search matches name,
// description, or sku case-insensitively; category filters exactly. The
// distinct category set is always unfiltered. Filtering is pure: an empty
// page is a valid result, not an error.
func (s *ProductService) List(ctx context.Context, filter *ListFilter) (*ListResult, error) {
	page, err := s.store.GetPaged(&repository.ProductFilter{
		Search:   filter.Search,
		Category: filter.Category,
		Page:     filter.Page,
		Limit:    PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	categories, err := s.store.GetDistinctCategories()
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	for i := range page.Products {
		s.resolveImageURL(&page.Products[i])
	}

	return &ListResult{
		Products:   page.Products,
		Categories: categories,
		Filters:    ListFilters{Search: filter.Search, Category: filter.Category},
		Page:       page.Page,
		Limit:      page.Limit,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages,
	}, nil
}

// Get fetches one product by id with its image reference resolved to a
// public URL. Returns utils.ErrNotFound for unknown ids.
func (s *ProductService) Get(ctx context.Context, id int) (*models.Product, error) {
	product, err := s.store.GetByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}
	s.resolveImageURL(product)
	return product, nil
}

// Create validates input, stores the optional image blob, then persists the
// row. If the row insert fails after the blob write, the fresh blob is
// deleted so no orphan survives the operation.
func (s *ProductService) Create(ctx context.Context, input *ProductInput, image *ImageUpload) (*models.Product, error) {
	if errs := validateInput(input, image); len(errs) > 0 {
		return nil, errs
	}
	if err := s.checkSKUAvailable(input.SKU, 0); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:        input.Name,
		Description: input.Description,
		Price:       *input.Price,
		Category:    normalizeOptional(input.Category),
		SKU:         normalizeOptional(input.SKU),
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}

	if image != nil {
		key, err := s.storeImage(ctx, image)
		if err != nil {
			return nil, err
		}
		product.FeaturedImage = &key
		product.FeaturedImageName = &image.OriginalName
	}

	if err := s.store.Create(product); err != nil {
		// Compensate: the blob was written first, remove it again.
		if product.FeaturedImage != nil {
			if derr := s.blob.Delete(ctx, *product.FeaturedImage); derr != nil {
				log.Warn().Err(derr).Str("key", *product.FeaturedImage).Msg("Failed to remove blob after create failure")
			}
		}
		if repository.IsUniqueViolation(err) {
			return nil, utils.ValidationErrors{"sku": "This SKU is already in use"}
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.invalidateStats(ctx)
	s.resolveImageURL(product)
	log.Info().Int("product_id", product.ID).Str("name", product.Name).Msg("Product created")
	return product, nil
}

// Update rewrites a product. Name, description, and price are mandatory;
// absent optional fields keep their stored values, while an explicit empty
// value clears them. When a new image is supplied, the new blob is written
// first and the old blob is deleted only after the row update has committed
// the new reference; on row failure the new blob is removed and the old
// image stays intact.
func (s *ProductService) Update(ctx context.Context, id int, input *ProductInput, image *ImageUpload) (*models.Product, error) {
	product, err := s.store.GetByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}
	return s.applyUpdate(ctx, product, input, image)
}

// Patch applies a partial update: only the fields present on the patch
// change, everything else keeps its stored value. Image handling matches
// Update.
func (s *ProductService) Patch(ctx context.Context, id int, patch *ProductPatch, image *ImageUpload) (*models.Product, error) {
	product, err := s.store.GetByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}

	input := &ProductInput{
		Name:        product.Name,
		Description: product.Description,
		Price:       &product.Price,
		Category:    product.Category,
		Stock:       &product.Stock,
		SKU:         product.SKU,
	}
	if patch.Name != nil {
		input.Name = *patch.Name
	}
	if patch.Description != nil {
		input.Description = *patch.Description
	}
	if patch.Price != nil {
		input.Price = patch.Price
	}
	if patch.Category != nil {
		input.Category = patch.Category
	}
	if patch.Stock != nil {
		input.Stock = patch.Stock
	}
	if patch.SKU != nil {
		input.SKU = patch.SKU
	}

	return s.applyUpdate(ctx, product, input, image)
}

func (s *ProductService) applyUpdate(ctx context.Context, product *models.Product, input *ProductInput, image *ImageUpload) (*models.Product, error) {
	if errs := validateInput(input, image); len(errs) > 0 {
		return nil, errs
	}
	if input.SKU != nil && *input.SKU != "" {
		if product.SKU == nil || *product.SKU != *input.SKU {
			if err := s.checkSKUAvailable(input.SKU, product.ID); err != nil {
				return nil, err
			}
		}
	}

	oldRef := product.FeaturedImage

	product.Name = input.Name
	product.Description = input.Description
	product.Price = *input.Price
	if input.Category != nil {
		product.Category = normalizeOptional(input.Category)
	}
	if input.SKU != nil {
		product.SKU = normalizeOptional(input.SKU)
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}

	var newRef *string
	if image != nil {
		key, err := s.storeImage(ctx, image)
		if err != nil {
			return nil, err
		}
		newRef = &key
		product.FeaturedImage = newRef
		product.FeaturedImageName = &image.OriginalName
	}

	if err := s.store.Update(product); err != nil {
		if newRef != nil {
			if derr := s.blob.Delete(ctx, *newRef); derr != nil {
				log.Warn().Err(derr).Str("key", *newRef).Msg("Failed to remove blob after update failure")
			}
		}
		if repository.IsUniqueViolation(err) {
			return nil, utils.ValidationErrors{"sku": "This SKU is already in use"}
		}
		return nil, fmt.Errorf("update product %d: %w", product.ID, err)
	}

	// The row now references the new blob; the old one is safe to drop.
	if newRef != nil && oldRef != nil && *oldRef != *newRef {
		s.deleteBlobIfExists(ctx, *oldRef)
	}

	s.invalidateStats(ctx)
	s.resolveImageURL(product)
	log.Info().Int("product_id", product.ID).Msg("Product updated")
	return product, nil
}

// Delete removes the row, then best-effort deletes its blob. A failed blob
// delete leaves an orphan for the reaper, never a dangling row reference.
// Returns utils.ErrNotFound when the id does not exist; a concurrent delete
// of the same id makes the second caller observe NotFound.
func (s *ProductService) Delete(ctx context.Context, id int) error {
	product, err := s.store.GetByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return utils.ErrNotFound
		}
		return err
	}

	if err := s.store.Delete(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return utils.ErrNotFound
		}
		return fmt.Errorf("delete product %d: %w", id, err)
	}

	if product.FeaturedImage != nil {
		s.deleteBlobIfExists(ctx, *product.FeaturedImage)
	}

	s.invalidateStats(ctx)
	log.Info().Int("product_id", id).Msg("Product deleted")
	return nil
}

// checkSKUAvailable returns a field error when another product already holds
// the SKU. The store's unique constraint stays authoritative; this pre-check
// just produces the friendlier error for the common case.
func (s *ProductService) checkSKUAvailable(sku *string, selfID int) error {
	if sku == nil || *sku == "" {
		return nil
	}
	existing, err := s.store.GetBySKU(*sku)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if existing != nil && existing.ID != selfID {
		return utils.ValidationErrors{"sku": "This SKU is already in use"}
	}
	return nil
}

// storeImage writes the image blob under a fresh key and returns the key.
func (s *ProductService) storeImage(ctx context.Context, image *ImageUpload) (string, error) {
	key := ImageKeyPrefix + uuid.New().String() + allowedImageTypes[image.ContentType]
	if err := s.blob.Put(ctx, key, image.Data, image.ContentType); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return key, nil
}

// deleteBlobIfExists removes a blob best-effort, logging failures instead of
// propagating them.
func (s *ProductService) deleteBlobIfExists(ctx context.Context, key string) {
	exists, err := s.blob.Exists(ctx, key)
	if err != nil || !exists {
		return
	}
	if err := s.blob.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to delete product image blob")
	}
}

func (s *ProductService) resolveImageURL(product *models.Product) {
	if product.FeaturedImage == nil {
		return
	}
	url := s.blob.URL(*product.FeaturedImage)
	product.FeaturedImageURL = &url
}

func (s *ProductService) invalidateStats(ctx context.Context) {
	if s.stats == nil {
		return
	}
	if err := s.stats.Invalidate(ctx); err != nil {
		log.Debug().Err(err).Msg("Failed to invalidate stats cache")
	}
}

// validateInput checks field-level constraints. All failures are collected
// so the caller sees every invalid field at once, and nothing is persisted
// when any check fails.
func validateInput(input *ProductInput, image *ImageUpload) utils.ValidationErrors {
	errs := utils.ValidationErrors{}

	// Limits count characters, not bytes, matching the VARCHAR column sizes.
	if input.Name == "" {
		errs.Add("name", "Product name is required")
	} else if utf8.RuneCountInString(input.Name) > maxNameLen {
		errs.Add("name", "Name cannot exceed 255 characters")
	}

	if input.Description == "" {
		errs.Add("description", "Product description is required")
	} else if utf8.RuneCountInString(input.Description) > maxDescriptionLen {
		errs.Add("description", "Description cannot exceed 1000 characters")
	}

	switch {
	case input.Price == nil:
		errs.Add("price", "Product price is required")
	case *input.Price < 0:
		errs.Add("price", "Price cannot be negative")
	case *input.Price > maxPrice:
		errs.Add("price", "Price cannot exceed 999999.99")
	}

	if input.Category != nil && utf8.RuneCountInString(*input.Category) > maxCategoryLen {
		errs.Add("category", "Category cannot exceed 100 characters")
	}

	if input.Stock != nil && *input.Stock < 0 {
		errs.Add("stock", "Stock cannot be negative")
	}

	if input.SKU != nil && utf8.RuneCountInString(*input.SKU) > maxSKULen {
		errs.Add("sku", "SKU cannot exceed 50 characters")
	}

	if image != nil {
		if _, ok := allowedImageTypes[image.ContentType]; !ok {
			errs.Add("image", "File must be an image")
		}
		if len(image.Data) > MaxImageBytes {
			errs.Add("image", "Image size cannot exceed 10MB")
		}
	}

	return errs
}

// normalizeOptional maps empty strings to nil so "cleared" and "absent"
// never leak empty values into nullable columns.
func normalizeOptional(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}
