package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements invoicing.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// Save inserts a new invoice and its items in one transaction.
// The identity is assigned only after the transaction commits.
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *invoicing.Invoice) error {
	if inv.IsPersisted() {
		return shared.NewDomainError(shared.CodeInvalidState, "Invoice has already been persisted")
	}

	id := uuid.New()
	model := models.InvoiceModelFromDomain(inv)
	model.ID = id
	for i := range model.Items {
		model.Items[i].InvoiceID = id
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Create(model).Error; err != nil {
			return err
		}
		if len(model.Items) > 0 {
			if err := tx.Create(&model.Items).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return translateWriteError(err, inv.Number)
	}

	inv.AssignID(id)
	return nil
}

// Update persists a lifecycle change of the invoice header.
// The aggregate version must be exactly one ahead of the stored version.
func (r *GormInvoiceRepository) Update(ctx context.Context, inv *invoicing.Invoice) error {
	if !inv.IsPersisted() {
		return shared.ErrNotFound
	}

	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version-1).
		Updates(map[string]interface{}{
			"status":      inv.Status,
			"issued_at":   inv.IssuedAt,
			"voided_at":   inv.VoidedAt,
			"void_reason": inv.VoidReason,
			"version":     inv.Version,
			"updated_at":  inv.UpdatedAt,
		})
	if result.Error != nil {
		return translateWriteError(result.Error, inv.Number)
	}
	if result.RowsAffected == 0 {
		exists, err := r.exists(ctx, "id = ?", inv.ID)
		if err != nil {
			return err
		}
		if !exists {
			return shared.ErrNotFound
		}
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByNumber finds an invoice by its number
func (r *GormInvoiceRepository) FindByNumber(ctx context.Context, number invoicing.InvoiceNumber) (*invoicing.Invoice, error) {
	return r.findOne(ctx, "number = ?", number.String())
}

// ExistsByNumber checks whether an invoice number is taken
func (r *GormInvoiceRepository) ExistsByNumber(ctx context.Context, number invoicing.InvoiceNumber) (bool, error) {
	return r.exists(ctx, "number = ?", number.String())
}

// ListByClient lists the invoices of one client
func (r *GormInvoiceRepository) ListByClient(ctx context.Context, clientID invoicing.ClientID, filter shared.Filter) ([]invoicing.Invoice, int64, error) {
	return r.List(ctx, invoicing.InvoiceFilter{Filter: filter, ClientID: clientID})
}

// List lists invoices matching the filter and returns the total before pagination
func (r *GormInvoiceRepository) List(ctx context.Context, filter invoicing.InvoiceFilter) ([]invoicing.Invoice, int64, error) {
	base := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), filter)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, shared.NewPersistenceError(err)
	}

	var rows []models.InvoiceModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), filter)
	if err := query.Preload("Items", orderItems).Find(&rows).Error; err != nil {
		return nil, 0, shared.NewPersistenceError(err)
	}

	invoices := make([]invoicing.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices, total, nil
}

// Delete removes an invoice and its items
func (r *GormInvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&models.InvoiceItemModel{}).Error; err != nil {
			return shared.NewPersistenceError(err)
		}
		result := tx.Delete(&models.InvoiceModel{}, "id = ?", id)
		if result.Error != nil {
			return shared.NewPersistenceError(result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

func (r *GormInvoiceRepository) findOne(ctx context.Context, query string, args ...interface{}) (*invoicing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Preload("Items", orderItems).
		Where(query, args...).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.NewPersistenceError(err)
	}
	return model.ToDomain(), nil
}

func (r *GormInvoiceRepository) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where(query, args...).
		Count(&count).Error; err != nil {
		return false, shared.NewPersistenceError(err)
	}
	return count > 0, nil
}

// applyFilter applies filter options including pagination and ordering
func (r *GormInvoiceRepository) applyFilter(query *gorm.DB, filter invoicing.InvoiceFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	offset, limit := filter.Window()
	query = query.Offset(offset).Limit(limit)

	return query.Order(invoiceOrder(filter.OrderBy, filter.OrderDir))
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormInvoiceRepository) applyFilterWithoutPagination(query *gorm.DB, filter invoicing.InvoiceFilter) *gorm.DB {
	if filter.ClientID > 0 {
		query = query.Where("client_id = ?", filter.ClientID.Int64())
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		query = query.Where("number LIKE ?", "%"+strings.ToUpper(filter.Search)+"%")
	}
	return query
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// translateWriteError maps storage errors to domain errors.
// Caller cancellation is returned unchanged; a storage deadline is a
// persistence failure, not a downstream timeout.
func translateWriteError(err error, number invoicing.InvoiceNumber) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.NewConflictError(fmt.Sprintf("Invoice number %s already exists", number)).WithCause(err)
	default:
		return shared.NewPersistenceError(err)
	}
}

// Ensure GormInvoiceRepository implements InvoiceRepository
var _ invoicing.InvoiceRepository = (*GormInvoiceRepository)(nil)
