package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"friendfeed/internal/apperrors"
	"friendfeed/internal/auth"
	"friendfeed/internal/config"
	"friendfeed/internal/models"
	"friendfeed/internal/storage"
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]{1,150}$`)

// AuthService 定义了用户认证服务的接口。
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, usernameOrEmail, password string) (token string, user *models.User, err error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

// authService 是 AuthService 的实现。
type authService struct {
	userRepo  storage.UserRepository
	authCfg   config.AuthConfig
	blacklist auth.TokenBlacklist
}

// NewAuthService 创建一个新的 AuthService 实例。
func NewAuthService(userRepo storage.UserRepository, authCfg config.AuthConfig, blacklist auth.TokenBlacklist) AuthService {
	return &authService{
		userRepo:  userRepo,
		authCfg:   authCfg,
		blacklist: blacklist,
	}
}

// Register 处理用户注册逻辑。显示名默认为用户名，和用户记录一起写入。
func (s *authService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) || password == "" {
		return nil, apperrors.ErrInvalidRegistration
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	hashedPassword, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, apperrors.Validation("PASSWORD_TOO_LONG", err.Error())
	}
	if err != nil {
		return nil, storeErr("Register", err)
	}

	newUser := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		DisplayName:  username,
	}
	// 用户名和邮箱的唯一性由唯一索引保证，并发注册时也不会重复
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		if errors.Is(err, storage.ErrDuplicateUser) {
			return nil, apperrors.ErrUsernameTaken
		}
		return nil, storeErr("Register", err)
	}

	newUser.PasswordHash = ""
	return newUser, nil
}

// Login 处理用户登录逻辑，用户名或邮箱均可。
func (s *authService) Login(ctx context.Context, usernameOrEmail, password string) (string, *models.User, error) {
	usernameOrEmail = strings.TrimSpace(usernameOrEmail)

	user, err := s.userRepo.GetByUsername(ctx, usernameOrEmail)
	if errors.Is(err, storage.ErrNotFound) && strings.Contains(usernameOrEmail, "@") {
		user, err = s.userRepo.GetByEmail(ctx, strings.ToLower(usernameOrEmail))
	}
	if errors.Is(err, storage.ErrNotFound) {
		// 不区分“用户不存在”和“密码错误”
		return "", nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, storeErr("Login", err)
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return "", nil, apperrors.ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(user.ID, user.Username, s.authCfg)
	if err != nil {
		return "", nil, storeErr("Login", err)
	}

	user.PasswordHash = ""
	return token, user, nil
}

// Logout revokes the token described by claims until it would have expired.
func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	if err := auth.RevokeToken(ctx, claims, s.blacklist); err != nil {
		return storeErr("Logout", err)
	}
	return nil
}
