package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCustomerRepository implements billing.CustomerRepository using GORM
type GormCustomerRepository struct {
	db *gorm.DB
}

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// FindByID finds a customer by its ID
func (r *GormCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Customer, error) {
	return r.findOne(ctx, id.String(), "id = ?", id)
}

// FindByAccountNumber finds a customer by account number
func (r *GormCustomerRepository) FindByAccountNumber(ctx context.Context, accountNumber string) (*billing.Customer, error) {
	return r.findOne(ctx, accountNumber, "account_number = ?", accountNumber)
}

func (r *GormCustomerRepository) findOne(ctx context.Context, key string, query string, arg any) (*billing.Customer, error) {
	var model models.CustomerModel
	if err := r.db.WithContext(ctx).First(&model, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.NewCustomerNotFoundError(key)
		}
		return nil, err
	}
	customer := model.ToDomain()
	return &customer, nil
}

// FindByEmail finds a customer by email, nil when none is registered
func (r *GormCustomerRepository) FindByEmail(ctx context.Context, email string) (*billing.Customer, error) {
	var model models.CustomerModel
	if err := r.db.WithContext(ctx).First(&model, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	customer := model.ToDomain()
	return &customer, nil
}

// Save creates or updates a customer. Duplicate account numbers or emails yield shared.ErrAlreadyExists.
func (r *GormCustomerRepository) Save(ctx context.Context, customer billing.Customer) error {
	err := r.db.WithContext(ctx).Save(models.CustomerModelFromDomain(customer)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("customer %s: %w", customer.AccountNumber, shared.ErrAlreadyExists)
	}
	return err
}

// List returns one page of customers matching filter and the total number of matches.
// Query matches a name fragment, an account number prefix or a phone fragment.
func (r *GormCustomerRepository) List(ctx context.Context, filter billing.CustomerFilter) ([]billing.Customer, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.CustomerModel{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + escapeLike(strings.ToLower(q)) + "%"
		query = query.Where(
			"(LOWER(name) LIKE ? ESCAPE '\\' OR account_number LIKE ? ESCAPE '\\' OR phone LIKE ? ESCAPE '\\')",
			like, escapeLike(strings.ToUpper(q))+"%", like,
		)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var customerModels []models.CustomerModel
	if err := query.
		Order(orderClause(filter.OrderBy, filter.OrderDir, CustomerSortFields, "name")).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&customerModels).Error; err != nil {
		return nil, 0, err
	}

	customers := make([]billing.Customer, len(customerModels))
	for i := range customerModels {
		customers[i] = customerModels[i].ToDomain()
	}
	return customers, total, nil
}

// escapeLike escapes the LIKE wildcards in s
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ billing.CustomerRepository = (*GormCustomerRepository)(nil)
