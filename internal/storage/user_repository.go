package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"friendfeed/internal/models"
)

// ErrDuplicateUser is returned when a username or email is already taken.
var ErrDuplicateUser = errors.New("username or email already exists")

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id uint, fields map[string]interface{}) error
	SearchUsers(ctx context.Context, query string, currentUserID uint) ([]*models.UserBasicInfo, error)
	GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []uint) ([]*models.UserBasicInfo, error)
	// LockUsers takes row locks on the given users in ascending ID order.
	// It returns ErrNotFound if any of them does not exist.
	LockUsers(ctx context.Context, ids ...uint) error
}

// gormUserRepository implements UserRepository using GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

var basicInfoColumns = []string{"id", "username", "display_name", "avatar_ref"}

// Create creates a new user record in the database.
func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateUser
	}
	return wrapErr(err, "userRepo.Create")
}

// GetByID retrieves a user by their ID.
func (r *gormUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, wrapErr(err, "userRepo.GetByID")
	}
	return &user, nil
}

// GetByUsername retrieves a user by their username.
func (r *gormUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, wrapErr(err, "userRepo.GetByUsername")
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email.
func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, wrapErr(err, "userRepo.GetByEmail")
	}
	return &user, nil
}

// UpdateProfile writes only the given columns, so zero values (an emptied bio) are stored too.
func (r *gormUserRepository) UpdateProfile(ctx context.Context, id uint, fields map[string]interface{}) error {
	if id == 0 {
		return gorm.ErrMissingWhereClause
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return ErrDuplicateUser
	}
	if res.Error != nil {
		return wrapErr(res.Error, "userRepo.UpdateProfile")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchUsers 在 username 和 display_name 上做大小写不敏感的模糊匹配，并排除当前用户自己。
func (r *gormUserRepository) SearchUsers(ctx context.Context, query string, currentUserID uint) ([]*models.UserBasicInfo, error) {
	users := []*models.UserBasicInfo{}
	searchTerm := "%" + strings.ToLower(query) + "%"

	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("(LOWER(username) LIKE ? OR LOWER(display_name) LIKE ?) AND id != ?", searchTerm, searchTerm, currentUserID).
		Select(basicInfoColumns).
		Order("username").
		Limit(10). // 限制返回结果的数量
		Find(&users).Error
	if err != nil {
		return nil, wrapErr(err, "userRepo.SearchUsers")
	}
	return users, nil
}

// GetMultipleBasicInfoByIDs retrieves minimal public user info for a list of user IDs.
// Unknown IDs are skipped.
func (r *gormUserRepository) GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []uint) ([]*models.UserBasicInfo, error) {
	basicInfos := []*models.UserBasicInfo{}
	if len(userIDs) == 0 {
		return basicInfos, nil
	}

	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select(basicInfoColumns).
		Where("id IN ?", userIDs).
		Find(&basicInfos).Error
	if err != nil {
		return nil, wrapErr(err, "userRepo.GetMultipleBasicInfoByIDs")
	}
	return basicInfos, nil
}

func (r *gormUserRepository) LockUsers(ctx context.Context, ids ...uint) error {
	sorted := append([]uint(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	// One statement per row keeps the lock order deterministic across dialects.
	for _, id := range sorted {
		var locked []uint
		err := r.db.WithContext(ctx).
			Model(&models.User{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Pluck("id", &locked).Error
		if err != nil {
			return wrapErr(err, "userRepo.LockUsers")
		}
		if len(locked) == 0 {
			return ErrNotFound
		}
	}
	return nil
}
