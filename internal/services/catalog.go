package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/utils"
)

// ErrCategoryNotFound is returned for unknown category ids.
var ErrCategoryNotFound = errors.New("category not found")

// CatalogService serves the read-only storefront catalog.
type CatalogService struct {
	db      *gorm.DB
	ratings *RatingService
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(db *gorm.DB, ratings *RatingService) *CatalogService {
	return &CatalogService{db: db, ratings: ratings}
}

// ProductFilter narrows a product listing. Empty fields do not filter.
type ProductFilter struct {
	IsNew         bool
	IsBestseller  bool
	CategorySlugs []string
}

// ProductView is a product as shown on the storefront.
type ProductView struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Image         string          `json:"image"`
	CategorySlug  string          `json:"category_slug"`
	IsBestseller  bool            `json:"is_bestseller"`
	IsNew         bool            `json:"is_new"`
	Discount      int             `json:"discount"`
	RatingAverage float64         `json:"rating_average"`
	RatingCount   int64           `json:"rating_count"`
}

// ListCategories returns categories ordered by name.
func (s *CatalogService) ListCategories(ctx context.Context, pg utils.Pagination) ([]models.Category, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Category{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var categories []models.Category
	if err := query.Order("name asc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&categories).Error; err != nil {
		return nil, 0, err
	}
	return categories, total, nil
}

// GetCategory returns one category.
func (s *CatalogService) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	err := s.db.WithContext(ctx).First(&category, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// ListProducts returns products newest first.
func (s *CatalogService) ListProducts(ctx context.Context, filter ProductFilter, pg utils.Pagination) ([]ProductView, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Product{})
	if filter.IsNew {
		query = query.Where("is_new = ?", true)
	}
	if filter.IsBestseller {
		query = query.Where("is_bestseller = ?", true)
	}
	if len(filter.CategorySlugs) > 0 {
		query = query.Where("category_id IN (?)",
			s.db.Model(&models.Category{}).Select("id").Where("slug IN ?", filter.CategorySlugs))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	if err := query.Preload("Category").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&products).Error; err != nil {
		return nil, 0, err
	}

	views, err := s.views(ctx, products)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// GetProduct returns one product with its rating summary.
func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*ProductView, error) {
	var product models.Product
	err := s.db.WithContext(ctx).Preload("Category").First(&product, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	views, err := s.views(ctx, []models.Product{product})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *CatalogService) views(ctx context.Context, products []models.Product) ([]ProductView, error) {
	ids := make([]uuid.UUID, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	summaries, err := s.ratings.Summaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]ProductView, len(products))
	for i, p := range products {
		view := ProductView{
			ID:           p.ID,
			Name:         p.Name,
			Description:  p.Description,
			Price:        p.Price,
			Image:        p.Image,
			IsBestseller: p.IsBestseller,
			IsNew:        p.IsNew,
			Discount:     p.Discount,
		}
		if p.Category != nil {
			view.CategorySlug = p.Category.Slug
		}
		if summary, ok := summaries[p.ID]; ok {
			view.RatingAverage = summary.Average
			view.RatingCount = summary.Count
		}
		views[i] = view
	}
	return views, nil
}
