package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/utils"
)

// RatingService stores product scores, one per (product, user).
type RatingService struct {
	db *gorm.DB
}

// NewRatingService constructs a RatingService.
func NewRatingService(db *gorm.DB) *RatingService {
	return &RatingService{db: db}
}

// RateInput is a user's score for a product.
type RateInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// RatingSummary aggregates every score of a product.
type RatingSummary struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// Rate creates or replaces the caller's rating of a product.
func (s *RatingService) Rate(ctx context.Context, userID, productID uuid.UUID, in RateInput) (*models.ProductRating, error) {
	in.Comment = strings.TrimSpace(in.Comment)
	if fields, err := utils.ValidateStruct(in); err != nil {
		return nil, err
	} else if len(fields) > 0 {
		return nil, fieldsError(fields)
	}

	db := s.db.WithContext(ctx)
	if err := ensureProduct(db, productID); err != nil {
		return nil, err
	}

	rating := models.ProductRating{
		ProductID: productID,
		UserID:    userID,
		Rating:    in.Rating,
		Comment:   in.Comment,
	}
	rating.UpdatedAt = time.Now().UTC()
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "comment", "updated_at"}),
	}).Omit(clause.Associations).Create(&rating).Error
	if err != nil {
		return nil, err
	}

	// On conflict the stored row keeps its original id and created_at.
	var stored models.ProductRating
	if err := db.Preload("User").
		First(&stored, "product_id = ? AND user_id = ?", productID, userID).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// Summary returns the average score and number of ratings of a product.
func (s *RatingService) Summary(ctx context.Context, productID uuid.UUID) (RatingSummary, error) {
	summaries, err := s.Summaries(ctx, []uuid.UUID{productID})
	if err != nil {
		return RatingSummary{}, err
	}
	return summaries[productID], nil
}

// Summaries aggregates ratings for several products in one query. Products
// without ratings are absent from the map.
func (s *RatingService) Summaries(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]RatingSummary, error) {
	result := make(map[uuid.UUID]RatingSummary, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		ProductID uuid.UUID
		Average   float64
		Count     int64
	}
	err := s.db.WithContext(ctx).Model(&models.ProductRating{}).
		Select("product_id, AVG(rating) AS average, COUNT(*) AS count").
		Where("product_id IN ?", productIDs).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ProductID] = RatingSummary{
			Average: math.Round(row.Average*100) / 100,
			Count:   row.Count,
		}
	}
	return result, nil
}

// List returns a product's ratings, newest first, with their authors.
func (s *RatingService) List(ctx context.Context, productID uuid.UUID) ([]models.ProductRating, error) {
	db := s.db.WithContext(ctx)
	if err := ensureProduct(db, productID); err != nil {
		return nil, err
	}

	var ratings []models.ProductRating
	err := db.Preload("User").
		Where("product_id = ?", productID).
		Order("updated_at desc").
		Find(&ratings).Error
	return ratings, err
}

func ensureProduct(db *gorm.DB, productID uuid.UUID) error {
	var product models.Product
	err := db.Select("id").First(&product, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrProductNotFound
	}
	return err
}
