package repository

import (
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/app/models"
)

// offerRepository implements the OfferRepository interface
type offerRepository struct {
	db *gorm.DB
}

// NewOfferRepository creates a new offer repository instance
func NewOfferRepository(db *gorm.DB) OfferRepository {
	return &offerRepository{db: db}
}

// Create creates a new product offer
func (r *offerRepository) Create(offer *models.ProductOffer) error {
	return r.db.Create(offer).Error
}

// GetByID retrieves an offer by its ID
func (r *offerRepository) GetByID(id uint) (*models.ProductOffer, error) {
	var offer models.ProductOffer
	err := r.db.First(&offer, id).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// GetByPriceID retrieves an offer by its Stripe price id
func (r *offerRepository) GetByPriceID(stripePriceID string) (*models.ProductOffer, error) {
	var offer models.ProductOffer
	err := r.db.Where("stripe_price_id = ?", stripePriceID).First(&offer).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// ListActive returns active offers, optionally filtered by plan type
func (r *offerRepository) ListActive(planType string) ([]models.ProductOffer, error) {
	var offers []models.ProductOffer
	q := r.db.Where("is_active = ?", true)
	if planType != "" {
		q = q.Where("plan_type = ?", planType)
	}
	err := q.Order("price ASC").Find(&offers).Error
	return offers, err
}

// Update saves changes to an existing offer
func (r *offerRepository) Update(offer *models.ProductOffer) error {
	return r.db.Save(offer).Error
}

// Deactivate hides an offer from the catalog without deleting history
func (r *offerRepository) Deactivate(id uint) error {
	return r.db.Model(&models.ProductOffer{}).Where("id = ?", id).Update("is_active", false).Error
}
