package services

import (
	"context"
	"errors"
	"io"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"

	"friendfeed/internal/apperrors"
	"friendfeed/internal/config"
	"friendfeed/internal/mediatypes"
	"friendfeed/internal/models"
	"friendfeed/internal/storage"
)

const (
	maxDisplayNameLength = 255
	maxBioLength         = 255
	maxLinkLength        = 255
)

// IdentityDirectory resolves handles to user IDs and user IDs to display info.
type IdentityDirectory interface {
	ResolveByHandle(ctx context.Context, handle string) (uint, error)
	DisplayInfo(ctx context.Context, ids ...uint) (map[uint]*models.UserBasicInfo, error)
}

// ProfileUpdate carries the profile fields to change; nil fields are left alone.
type ProfileUpdate struct {
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
	Link        *string `json:"link"`
	Email       *string `json:"email"`
}

// UserService 定义了用户资料相关服务的接口。
type UserService interface {
	IdentityDirectory
	GetProfile(ctx context.Context, userID uint) (*models.User, error)
	GetProfileByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID uint, update ProfileUpdate) (*models.User, error)
	UploadProfilePicture(ctx context.Context, userID uint, reader io.Reader, size int64, fileName, mimeType string) (*models.User, error)
	SearchUsers(ctx context.Context, query string, currentUserID uint) ([]*models.UserBasicInfo, error)
}

// userService 是 UserService 的实现。
type userService struct {
	userRepo storage.UserRepository
	blobs    mediatypes.BlobStore
	policy   config.PolicyConfig
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo storage.UserRepository, blobs mediatypes.BlobStore, policy config.PolicyConfig) UserService {
	return &userService{userRepo: userRepo, blobs: blobs, policy: policy}
}

func (s *userService) ResolveByHandle(ctx context.Context, handle string) (uint, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return 0, apperrors.ErrUserNotFound
	}
	user, err := s.userRepo.GetByUsername(ctx, handle)
	if err != nil {
		return 0, notFoundAs("ResolveByHandle", err, apperrors.ErrUserNotFound)
	}
	return user.ID, nil
}

// DisplayInfo loads basic info for ids in one query. Unknown IDs are absent from the map.
func (s *userService) DisplayInfo(ctx context.Context, ids ...uint) (map[uint]*models.UserBasicInfo, error) {
	infos, err := s.userRepo.GetMultipleBasicInfoByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, storeErr("DisplayInfo", err)
	}
	out := make(map[uint]*models.UserBasicInfo, len(infos))
	for _, info := range infos {
		info.AvatarURL = s.blobs.URL(info.AvatarRef)
		out[info.ID] = info
	}
	return out, nil
}

// GetProfile 获取用户的个人资料。
func (s *userService) GetProfile(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundAs("GetProfile", err, apperrors.ErrUserNotFound)
	}
	return s.present(user), nil
}

func (s *userService) GetProfileByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, notFoundAs("GetProfileByUsername", err, apperrors.ErrUserNotFound)
	}
	return s.present(user), nil
}

// UpdateProfile 更新用户的个人资料，只修改请求中给出的字段。
func (s *userService) UpdateProfile(ctx context.Context, userID uint, update ProfileUpdate) (*models.User, error) {
	fields, err := update.fields()
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		err := s.userRepo.UpdateProfile(ctx, userID, fields)
		if errors.Is(err, storage.ErrDuplicateUser) {
			return nil, apperrors.ErrUsernameTaken
		}
		if err != nil {
			return nil, notFoundAs("UpdateProfile", err, apperrors.ErrUserNotFound)
		}
	}
	return s.GetProfile(ctx, userID)
}

// UploadProfilePicture 保存新头像并释放旧头像。
func (s *userService) UploadProfilePicture(ctx context.Context, userID uint, reader io.Reader, size int64, fileName, mimeType string) (*models.User, error) {
	if size <= 0 {
		return nil, apperrors.ErrImageRequired
	}
	if size > s.policy.MaxProfilePictureBytes {
		return nil, apperrors.ErrImageTooLarge
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundAs("UploadProfilePicture", err, apperrors.ErrUserNotFound)
	}

	info, err := s.blobs.Store(ctx, reader, size, fileName, mimeType)
	if err != nil {
		return nil, storeErr("UploadProfilePicture", err)
	}
	if err := s.userRepo.UpdateProfile(ctx, userID, map[string]interface{}{"avatar_ref": info.Ref}); err != nil {
		releaseBlob(ctx, s.blobs, info.Ref)
		return nil, notFoundAs("UploadProfilePicture", err, apperrors.ErrUserNotFound)
	}
	releaseBlob(ctx, s.blobs, user.AvatarRef)

	user.AvatarRef = info.Ref
	return s.present(user), nil
}

// SearchUsers 按用户名或显示名搜索用户。
func (s *userService) SearchUsers(ctx context.Context, query string, currentUserID uint) ([]*models.UserBasicInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*models.UserBasicInfo{}, nil
	}
	users, err := s.userRepo.SearchUsers(ctx, query, currentUserID)
	if err != nil {
		return nil, storeErr("SearchUsers", err)
	}
	for _, u := range users {
		u.AvatarURL = s.blobs.URL(u.AvatarRef)
	}
	return users, nil
}

func (s *userService) present(user *models.User) *models.User {
	user.PasswordHash = ""
	user.AvatarURL = s.blobs.URL(user.AvatarRef)
	return user
}

func (u ProfileUpdate) fields() (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if u.DisplayName != nil {
		name := strings.TrimSpace(*u.DisplayName)
		if name == "" || utf8.RuneCountInString(name) > maxDisplayNameLength {
			return nil, apperrors.Validation("INVALID_DISPLAY_NAME", "display name must be 1-255 characters")
		}
		fields["display_name"] = name
	}
	if u.Bio != nil {
		if utf8.RuneCountInString(*u.Bio) > maxBioLength {
			return nil, apperrors.Validation("BIO_TOO_LONG", "bio must be at most 255 characters")
		}
		fields["bio"] = *u.Bio
	}
	if u.Link != nil {
		link := strings.TrimSpace(*u.Link)
		if link != "" && !validLink(link) {
			return nil, apperrors.Validation("INVALID_LINK", "link must be an http(s) URL")
		}
		fields["link"] = link
	}
	if u.Email != nil {
		email, err := normalizeEmail(*u.Email)
		if err != nil {
			return nil, err
		}
		fields["email"] = email
	}
	return fields, nil
}

// normalizeEmail requires a bare address; the email column is unique so it cannot be blank.
func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.Validation("INVALID_EMAIL", "email address is invalid")
	}
	return strings.ToLower(email), nil
}

func validLink(link string) bool {
	if len(link) > maxLinkLength {
		return false
	}
	parsed, err := url.ParseRequestURI(link)
	return err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
