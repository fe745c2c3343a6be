package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockroomhq/stockroom/internal/models"
	"github.com/stockroomhq/stockroom/internal/repository"
	"github.com/stockroomhq/stockroom/internal/storage"
	"github.com/stockroomhq/stockroom/internal/utils"
)

// stubStore is an in-memory ProductStore.
type stubStore struct {
	products  map[int]*models.Product
	nextID    int
	createErr error
	updateErr error
}

func newStubStore() *stubStore {
	return &stubStore{products: map[int]*models.Product{}, nextID: 1}
}

// matchesFilter mirrors the repository's ILIKE search and exact category
// filter so listing scenarios exercise real matching semantics.
func matchesFilter(p *models.Product, search, category string) bool {
	if category != "" && (p.Category == nil || *p.Category != category) {
		return false
	}
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(p.Description), needle) {
		return true
	}
	return p.SKU != nil && strings.Contains(strings.ToLower(*p.SKU), needle)
}

func (s *stubStore) GetPaged(filter *repository.ProductFilter) (*repository.ProductPage, error) {
	var all []models.Product
	for _, p := range s.products {
		if matchesFilter(p, filter.Search, filter.Category) {
			all = append(all, *p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	totalPages := (total + filter.Limit - 1) / filter.Limit
	start := (filter.Page - 1) * filter.Limit
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return &repository.ProductPage{
		Products:   all[start:end],
		TotalItems: total,
		TotalPages: totalPages,
		Page:       filter.Page,
		Limit:      filter.Limit,
	}, nil
}

func (s *stubStore) GetByID(id int) (*models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (s *stubStore) GetBySKU(sku string) (*models.Product, error) {
	for _, p := range s.products {
		if p.SKU != nil && *p.SKU == sku {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubStore) Create(product *models.Product) error {
	if s.createErr != nil {
		return s.createErr
	}
	product.ID = s.nextID
	s.nextID++
	product.CreatedAt = time.Now()
	product.UpdatedAt = product.CreatedAt
	cp := *product
	s.products[product.ID] = &cp
	return nil
}

func (s *stubStore) Update(product *models.Product) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.products[product.ID]; !ok {
		return sql.ErrNoRows
	}
	product.UpdatedAt = time.Now()
	cp := *product
	s.products[product.ID] = &cp
	return nil
}

func (s *stubStore) Delete(id int) error {
	if _, ok := s.products[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.products, id)
	return nil
}

func (s *stubStore) GetDistinctCategories() ([]string, error) {
	seen := map[string]bool{}
	var categories []string
	for _, p := range s.products {
		if p.Category != nil && !seen[*p.Category] {
			seen[*p.Category] = true
			categories = append(categories, *p.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func ptr[T any](v T) *T { return &v }

func validInput() *ProductInput {
	return &ProductInput{
		Name:        "Walnut Desk",
		Description: "A sturdy walnut desk",
		Price:       ptr(249.99),
	}
}

func testImage() *ImageUpload {
	return &ImageUpload{
		Data:         []byte("fake-png-bytes"),
		ContentType:  "image/png",
		OriginalName: "desk.png",
	}
}

func TestCreateProduct(t *testing.T) {
	store := newStubStore()
	blob := storage.NewMemoryStore()
	svc := NewProductService(store, blob, nil)

	input := validInput()
	input.Category = ptr("Furniture")
	input.Stock = ptr(5)
	input.SKU = ptr("DESK-001")

	product, err := svc.Create(context.Background(), input, testImage())
	require.NoError(t, err)
	assert.Equal(t, 1, product.ID)
	assert.Equal(t, "Walnut Desk", product.Name)
	assert.Equal(t, 5, product.Stock)
	require.NotNil(t, product.FeaturedImage)
	require.NotNil(t, product.FeaturedImageURL)

	exists, err := blob.Exists(context.Background(), *product.FeaturedImage)
	require.NoError(t, err)
	assert.True(t, exists, "image blob should be stored")
}

func TestCreateProductCollectsAllFieldErrors(t *testing.T) {
	store := newStubStore()
	svc := NewProductService(store, storage.NewMemoryStore(), nil)

	input := &ProductInput{Price: ptr(-1.0), Stock: ptr(-3)}
	_, err := svc.Create(context.Background(), input, nil)

	var fieldErrs utils.ValidationErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs, "name")
	assert.Contains(t, fieldErrs, "description")
	assert.Contains(t, fieldErrs, "price")
	assert.Contains(t, fieldErrs, "stock")
	assert.Empty(t, store.products, "nothing should be persisted")
}

func TestCreateProductRejectsDuplicateSKU(t *testing.T) {
	store := newStubStore()
	blob := storage.NewMemoryStore()
	svc := NewProductService(store, blob, nil)

	first := validInput()
	first.SKU = ptr("DESK-001")
	_, err := svc.Create(context.Background(), first, nil)
	require.NoError(t, err)

	second := validInput()
	second.Name = "Oak Desk"
	second.SKU = ptr("DESK-001")
	_, err = svc.Create(context.Background(), second, testImage())

	var fieldErrs utils.ValidationErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "This SKU is already in use", fieldErrs["sku"])
	assert.Len(t, store.products, 1)

	// The SKU check runs before the blob write, so nothing should be stored.
	objects, err := blob.List(context.Background(), ImageKeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestCreateProductCompensatesBlobOnRowFailure(t *testing.T) {
	store := newStubStore()
	store.createErr = errors.New("connection reset")
	blob := storage.NewMemoryStore()
	svc := NewProductService(store, blob, nil)

	_, err := svc.Create(context.Background(), validInput(), testImage())
	require.Error(t, err)

	objects, lerr := blob.List(context.Background(), ImageKeyPrefix)
	require.NoError(t, lerr)
	assert.Empty(t, objects, "orphaned blob should be removed after row failure")
}

func TestCreateProductRejectsInvalidImage(t *testing.T) {
	svc := NewProductService(newStubStore(), storage.NewMemoryStore(), nil)

	image := testImage()
	image.ContentType = "application/pdf"
	_, err := svc.Create(context.Background(), validInput(), image)

	var fieldErrs utils.ValidationErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "File must be an image", fieldErrs["image"])
}

func TestUpdateProductReplacesImage(t *testing.T) {
	store := newStubStore()
	blob := storage.NewMemoryStore()
	svc := NewProductService(store, blob, nil)

	created, err := svc.Create(context.Background(), validInput(), testImage())
	require.NoError(t, err)
	oldKey := *created.FeaturedImage

	newImage := &ImageUpload{Data: []byte("new-bytes"), ContentType: "image/jpeg", OriginalName: "new.jpg"}
	updated, err := svc.Update(context.Background(), created.ID, validInput(), newImage)
	require.NoError(t, err)
	require.NotNil(t, updated.FeaturedImage)
	assert.NotEqual(t, oldKey, *updated.FeaturedImage)

	exists, err := blob.Exists(context.Background(), oldKey)
	require.NoError(t, err)
	assert.False(t, exists, "old blob should be deleted after commit")

	exists, err = blob.Exists(context.Background(), *updated.FeaturedImage)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpdateProductKeepsOldImageOnRowFailure(t *testing.T) {
	store := newStubStore()
	blob := storage.NewMemoryStore()
	svc := NewProductService(store, blob, nil)

	created, err := svc.Create(context.Background(), validInput(), testImage())
	require.NoError(t, err)
	oldKey := *created.FeaturedImage

	store.updateErr = errors.New("deadlock detected")
	newImage := &ImageUpload{Data: []byte("new-bytes"), ContentType: "image/jpeg", OriginalName: "new.jpg"}
	_, err = svc.Update(context.Background(), created.ID, validInput(), newImage)
	require.Error(t, err)

	exists, err := blob.Exists(context.Background(), oldKey)
	require.NoError(t, err)
	assert.True(t, exists, "old blob must survive a failed update")

	objects, err := blob.List(context.Background(), ImageKeyPrefix)
	require.NoError(t, err)
	assert.Len(t, objects, 1, "the new blob should be compensated away")
}

func TestUpdateProductWithoutImageKeepsReference(t *testing.T) {
	store := newStubStore()
	blob := storage.NewMemoryStore()
	svc := NewProductService(store, blob, nil)

	created, err := svc.Create(context.Background(), validInput(), testImage())
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, validInput(), nil)
	require.NoError(t, err)
	require.NotNil(t, updated.FeaturedImage)
	assert.Equal(t, *created.FeaturedImage, *updated.FeaturedImage)
}

func TestUpdateProductKeepsAbsentOptionalFields(t *testing.T) {
	store := newStubStore()
	svc := NewProductService(store, storage.NewMemoryStore(), nil)

	input := validInput()
	input.Category = ptr("Furniture")
	input.Stock = ptr(7)
	input.SKU = ptr("DESK-001")
	created, err := svc.Create(context.Background(), input, nil)
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, validInput(), nil)
	require.NoError(t, err)
	require.NotNil(t, updated.Category)
	assert.Equal(t, "Furniture", *updated.Category)
	require.NotNil(t, updated.SKU)
	assert.Equal(t, "DESK-001", *updated.SKU)
	assert.Equal(t, 7, updated.Stock)
}

func TestUpdateProductClearsExplicitlyEmptiedFields(t *testing.T) {
	store := newStubStore()
	svc := NewProductService(store, storage.NewMemoryStore(), nil)

	input := validInput()
	input.Category = ptr("Furniture")
	input.SKU = ptr("DESK-001")
	created, err := svc.Create(context.Background(), input, nil)
	require.NoError(t, err)

	cleared := validInput()
	cleared.Category = ptr("")
	cleared.SKU = ptr("")
	updated, err := svc.Update(context.Background(), created.ID, cleared, nil)
	require.NoError(t, err)
	assert.Nil(t, updated.Category)
	assert.Nil(t, updated.SKU)
}

func TestPatchProductChangesOnlyProvidedFields(t *testing.T) {
	store := newStubStore()
	svc := NewProductService(store, storage.NewMemoryStore(), nil)

	input := validInput()
	input.Category = ptr("Furniture")
	input.Stock = ptr(7)
	input.SKU = ptr("DESK-001")
	created, err := svc.Create(context.Background(), input, nil)
	require.NoError(t, err)

	patched, err := svc.Patch(context.Background(), created.ID, &ProductPatch{Stock: ptr(3)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, patched.Stock)
	assert.Equal(t, "Walnut Desk", patched.Name)
	require.NotNil(t, patched.Category)
	assert.Equal(t, "Furniture", *patched.Category)
	require.NotNil(t, patched.SKU)
	assert.Equal(t, "DESK-001", *patched.SKU)
}

func TestDeleteProductRemovesRowAndBlob(t *testing.T) {
	store := newStubStore()
	blob := storage.NewMemoryStore()
	svc := NewProductService(store, blob, nil)

	created, err := svc.Create(context.Background(), validInput(), testImage())
	require.NoError(t, err)
	key := *created.FeaturedImage

	require.NoError(t, svc.Delete(context.Background(), created.ID))

	_, err = svc.Get(context.Background(), created.ID)
	assert.ErrorIs(t, err, utils.ErrNotFound)

	exists, err := blob.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteProductNotFound(t *testing.T) {
	svc := NewProductService(newStubStore(), storage.NewMemoryStore(), nil)
	err := svc.Delete(context.Background(), 42)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestGetProductNotFound(t *testing.T) {
	svc := NewProductService(newStubStore(), storage.NewMemoryStore(), nil)
	_, err := svc.Get(context.Background(), 42)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestListProductsUsesFixedPageSize(t *testing.T) {
	store := newStubStore()
	svc := NewProductService(store, storage.NewMemoryStore(), nil)

	for i := 0; i < 15; i++ {
		input := validInput()
		input.Category = ptr("Furniture")
		_, err := svc.Create(context.Background(), input, nil)
		require.NoError(t, err)
	}

	result, err := svc.List(context.Background(), &ListFilter{Page: 1})
	require.NoError(t, err)
	assert.Len(t, result.Products, PageSize)
	assert.Equal(t, 15, result.TotalItems)
	assert.Equal(t, 2, result.TotalPages)
	assert.Equal(t, []string{"Furniture"}, result.Categories)

	result, err = svc.List(context.Background(), &ListFilter{Page: 2})
	require.NoError(t, err)
	assert.Len(t, result.Products, 3)
}

func TestCreateProductCountsCharactersNotBytes(t *testing.T) {
	store := newStubStore()
	svc := NewProductService(store, storage.NewMemoryStore(), nil)

	// 200 characters but 400 bytes; must pass the 255-character limit.
	input := validInput()
	input.Name = strings.Repeat("ä", 200)
	product, err := svc.Create(context.Background(), input, nil)
	require.NoError(t, err)
	assert.Equal(t, input.Name, product.Name)

	over := validInput()
	over.Name = strings.Repeat("ä", 256)
	_, err = svc.Create(context.Background(), over, nil)
	var fieldErrs utils.ValidationErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "Name cannot exceed 255 characters", fieldErrs["name"])
}

func TestListProductsSearchMatching(t *testing.T) {
	store := newStubStore()
	svc := NewProductService(store, storage.NewMemoryStore(), nil)

	create := func(name, description, category, sku string) {
		input := &ProductInput{Name: name, Description: description, Price: ptr(10.0)}
		if category != "" {
			input.Category = &category
		}
		if sku != "" {
			input.SKU = &sku
		}
		_, err := svc.Create(context.Background(), input, nil)
		require.NoError(t, err)
	}
	create("Widget", "A small part", "Hardware", "WID-1")
	create("Desk", "Holds widgets", "Furniture", "DSK-1")
	create("Lamp", "A desk lamp", "Lighting", "LMP-1")

	names := func(result *ListResult) []string {
		var out []string
		for _, p := range result.Products {
			out = append(out, p.Name)
		}
		sort.Strings(out)
		return out
	}

	// Prefix match on name, case-insensitive, independent of category.
	result, err := svc.List(context.Background(), &ListFilter{Search: "widg", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Desk", "Widget"}, names(result))

	// Description and sku are searched too.
	result, err = svc.List(context.Background(), &ListFilter{Search: "LMP", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Lamp"}, names(result))

	// Category filter is exact and composes with search.
	result, err = svc.List(context.Background(), &ListFilter{Search: "widg", Category: "Furniture", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Desk"}, names(result))

	// No match is an empty page, not an error.
	result, err = svc.List(context.Background(), &ListFilter{Search: "gizmo", Page: 1})
	require.NoError(t, err)
	assert.Empty(t, result.Products)
}

func TestListProductsEchoesFilters(t *testing.T) {
	svc := NewProductService(newStubStore(), storage.NewMemoryStore(), nil)

	result, err := svc.List(context.Background(), &ListFilter{Search: "desk", Category: "Furniture", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, "desk", result.Filters.Search)
	assert.Equal(t, "Furniture", result.Filters.Category)
	assert.Empty(t, result.Products)
}
