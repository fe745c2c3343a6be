package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/stockroomhq/stockroom/internal/service"
	"github.com/stockroomhq/stockroom/internal/utils"
)

// ProductHandler handles product CRUD HTTP endpoints.
type ProductHandler struct {
	productService *service.ProductService
}

// NewProductHandler constructs a ProductHandler.
func NewProductHandler(productService *service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// ListProducts handles GET /v1/products
func (h *ProductHandler) ListProducts(c *gin.Context) {
	filter := &service.ListFilter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Page:     1,
	}
	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			filter.Page = p
		}
	}

	result, err := h.productService.List(c.Request.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list products")
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to retrieve products")
		return
	}

	utils.SuccessWithPagination(c, 200, "Products retrieved", result, result.Page, result.Limit, result.TotalItems)
}

// GetProduct handles GET /v1/products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		utils.Error(c, 400, "INVALID_ID", "Invalid product ID")
		return
	}

	product, err := h.productService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			utils.Error(c, 404, "PRODUCT_NOT_FOUND", "Product not found")
			return
		}
		log.Error().Err(err).Int("product_id", id).Msg("Failed to get product")
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to retrieve product")
		return
	}

	utils.Success(c, 200, "Product retrieved", product)
}

// CreateProduct handles POST /v1/products (multipart form)
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	errs := utils.ValidationErrors{}
	input := parseProductInput(c, errs)
	image := parseImageFile(c, errs)
	if len(errs) > 0 {
		utils.FieldErrors(c, errs)
		return
	}

	product, err := h.productService.Create(c.Request.Context(), input, image)
	if err != nil {
		h.writeProductError(c, err, "Failed to create product")
		return
	}

	utils.Success(c, 201, "Product created successfully", product)
}

// UpdateProduct handles PUT /v1/products/:id (full replacement)
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		utils.Error(c, 400, "INVALID_ID", "Invalid product ID")
		return
	}

	errs := utils.ValidationErrors{}
	input := parseProductInput(c, errs)
	image := parseImageFile(c, errs)
	if len(errs) > 0 {
		utils.FieldErrors(c, errs)
		return
	}

	product, err := h.productService.Update(c.Request.Context(), id, input, image)
	if err != nil {
		h.writeProductError(c, err, "Failed to update product")
		return
	}

	utils.Success(c, 200, "Product updated successfully", product)
}

// PatchProduct handles PATCH /v1/products/:id (partial update)
func (h *ProductHandler) PatchProduct(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		utils.Error(c, 400, "INVALID_ID", "Invalid product ID")
		return
	}

	errs := utils.ValidationErrors{}
	patch := parseProductPatch(c, errs)
	image := parseImageFile(c, errs)
	if len(errs) > 0 {
		utils.FieldErrors(c, errs)
		return
	}

	product, err := h.productService.Patch(c.Request.Context(), id, patch, image)
	if err != nil {
		h.writeProductError(c, err, "Failed to update product")
		return
	}

	utils.Success(c, 200, "Product updated successfully", product)
}

// DeleteProduct handles DELETE /v1/products/:id
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		utils.Error(c, 400, "INVALID_ID", "Invalid product ID")
		return
	}

	if err := h.productService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			utils.Error(c, 404, "PRODUCT_NOT_FOUND", "Product not found")
			return
		}
		log.Error().Err(err).Int("product_id", id).Msg("Failed to delete product")
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to delete product")
		return
	}

	utils.Success(c, 200, "Product deleted successfully", nil)
}

func (h *ProductHandler) writeProductError(c *gin.Context, err error, fallback string) {
	var fieldErrs utils.ValidationErrors
	if errors.As(err, &fieldErrs) {
		utils.FieldErrors(c, fieldErrs)
		return
	}
	if errors.Is(err, utils.ErrNotFound) {
		utils.Error(c, 404, "PRODUCT_NOT_FOUND", "Product not found")
		return
	}
	log.Error().Err(err).Msg(fallback)
	utils.Error(c, 500, "INTERNAL_ERROR", fallback)
}

// parseProductInput reads create/PUT form fields. Unparseable numbers become
// field errors; the absent/present distinction only matters for Patch.
func parseProductInput(c *gin.Context, errs utils.ValidationErrors) *service.ProductInput {
	input := &service.ProductInput{
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
	}
	if v, ok := c.GetPostForm("price"); ok && v != "" {
		if price, err := strconv.ParseFloat(v, 64); err == nil {
			input.Price = &price
		} else {
			errs.Add("price", "Price must be a valid number")
		}
	}
	if v, ok := c.GetPostForm("category"); ok {
		input.Category = &v
	}
	if v, ok := c.GetPostForm("stock"); ok && v != "" {
		if stock, err := strconv.Atoi(v); err == nil {
			input.Stock = &stock
		} else {
			errs.Add("stock", "Stock must be a whole number")
		}
	}
	if v, ok := c.GetPostForm("sku"); ok {
		input.SKU = &v
	}
	return input
}

// parseProductPatch reads PATCH form fields, keeping absent fields nil.
func parseProductPatch(c *gin.Context, errs utils.ValidationErrors) *service.ProductPatch {
	patch := &service.ProductPatch{}
	if v, ok := c.GetPostForm("name"); ok {
		patch.Name = &v
	}
	if v, ok := c.GetPostForm("description"); ok {
		patch.Description = &v
	}
	if v, ok := c.GetPostForm("price"); ok {
		if price, err := strconv.ParseFloat(v, 64); err == nil {
			patch.Price = &price
		} else {
			errs.Add("price", "Price must be a valid number")
		}
	}
	if v, ok := c.GetPostForm("category"); ok {
		patch.Category = &v
	}
	if v, ok := c.GetPostForm("stock"); ok {
		if stock, err := strconv.Atoi(v); err == nil {
			patch.Stock = &stock
		} else {
			errs.Add("stock", "Stock must be a whole number")
		}
	}
	if v, ok := c.GetPostForm("sku"); ok {
		patch.SKU = &v
	}
	return patch
}

// parseImageFile reads the optional "image" multipart file.
func parseImageFile(c *gin.Context, errs utils.ValidationErrors) *service.ImageUpload {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil
		}
		errs.Add("image", "Failed to read uploaded image")
		return nil
	}
	if fileHeader.Size > service.MaxImageBytes {
		errs.Add("image", "Image size cannot exceed 10MB")
		return nil
	}

	file, err := fileHeader.Open()
	if err != nil {
		errs.Add("image", "Failed to read uploaded image")
		return nil
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		errs.Add("image", "Failed to read uploaded image")
		return nil
	}

	return &service.ImageUpload{
		Data:         data,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		OriginalName: fileHeader.Filename,
	}
}
