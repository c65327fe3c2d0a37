package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/ordercore/internal/repo"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	"github.com/angelmondragon/ordercore/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleVersion is returned by Save when another writer saved the order first.
var ErrStaleVersion = errors.New("order was modified concurrently")

// Repository persists order aggregates as single rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Order, error)
	Save(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, error)
	InsertReturnRef(ctx context.Context, ref *models.OrderReturnRef) error
	FindReturnRef(ctx context.Context, returnID string) (*models.OrderReturnRef, error)
}

// OwnerScope restricts a listing to orders owned by a user id or guest email.
type OwnerScope struct {
	UserID uuid.UUID
	Email  string
}

// ListFilters narrows order listings. Nil fields are ignored.
type ListFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	UserID        *uuid.UUID
	GuestEmail    *string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	NumberQuery   string
	Owner         *OwnerScope
}

type repository struct {
	repo.Base
}

// NewRepository binds a Repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	ensureCollections(order)
	return r.DB(ctx).Create(order).Error
}

// FindByID loads the aggregate. forUpdate takes a row lock on dialects that
// support it; sqlite drops the clause.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Order, error) {
	query := r.DB(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var order models.Order
	if err := query.First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	ensureCollections(&order)
	return &order, nil
}

// Save writes every column of the aggregate if its version is unchanged since
// it was read, then bumps the version.
func (r *repository) Save(ctx context.Context, order *models.Order) error {
	ensureCollections(order)
	expected := order.Version
	order.Version = expected + 1
	res := r.DB(ctx).
		Model(order).
		Where("version = ?", expected).
		Select("*").
		Omit("id", "created_at").
		Updates(order)
	if res.Error != nil {
		order.Version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		order.Version = expected
		return ErrStaleVersion
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.DB(ctx).Delete(&models.Order{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns up to LimitWithBuffer rows ordered newest first.
func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, error) {
	query := r.DB(ctx).Model(&models.Order{})

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filters.PaymentStatus)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.GuestEmail != nil {
		query = query.Where("guest_email = ?", strings.ToLower(strings.TrimSpace(*filters.GuestEmail)))
	}
	if filters.CreatedFrom != nil {
		query = query.Where("created_at >= ?", filters.CreatedFrom.UTC())
	}
	if filters.CreatedTo != nil {
		query = query.Where("created_at <= ?", filters.CreatedTo.UTC())
	}
	if q := strings.TrimSpace(filters.NumberQuery); q != "" {
		query = query.Where("UPPER(order_number) LIKE ?", "%"+strings.ToUpper(q)+"%")
	}
	if owner := filters.Owner; owner != nil {
		email := strings.ToLower(strings.TrimSpace(owner.Email))
		switch {
		case owner.UserID != uuid.Nil && email != "":
			query = query.Where("(user_id = ? OR guest_email = ?)", owner.UserID, email)
		case owner.UserID != uuid.Nil:
			query = query.Where("user_id = ?", owner.UserID)
		case email != "":
			query = query.Where("guest_email = ?", email)
		default:
			query = query.Where("1 = 0")
		}
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		at := cursor.CreatedAt.UTC()
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", at, at, cursor.ID)
	}

	var rows []models.Order
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		ensureCollections(&rows[i])
	}
	return rows, nil
}

func (r *repository) InsertReturnRef(ctx context.Context, ref *models.OrderReturnRef) error {
	return r.DB(ctx).Create(ref).Error
}

func (r *repository) FindReturnRef(ctx context.Context, returnID string) (*models.OrderReturnRef, error) {
	var ref models.OrderReturnRef
	if err := r.DB(ctx).First(&ref, "return_id = ?", returnID).Error; err != nil {
		return nil, err
	}
	return &ref, nil
}
