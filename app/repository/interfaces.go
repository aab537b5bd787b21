package repository

import (
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAuthUserID(authUserID string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// OfferRepository defines the interface for product catalog operations
type OfferRepository interface {
	Create(offer *models.ProductOffer) error
	GetByID(id uint) (*models.ProductOffer, error)
	GetByPriceID(stripePriceID string) (*models.ProductOffer, error)
	ListActive(planType string) ([]models.ProductOffer, error)
	Update(offer *models.ProductOffer) error
	Deactivate(id uint) error
}

// Repositories bundles all repository instances
type Repositories struct {
	User  UserRepository
	Offer OfferRepository
}

// NewRepositories creates all repository instances from one DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:  NewUserRepository(db),
		Offer: NewOfferRepository(db),
	}
}
