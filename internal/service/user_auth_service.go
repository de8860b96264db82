package service

import (
	"net/mail"
	"strings"
	"time"

	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/repository"

	"github.com/golang-jwt/jwt/v5"
)

const (
	minPasswordLength       = 8
	defaultUserExpireHours  = 72
	maxDisplayNameRuneCount = 64
)

// UserAuthService 用户认证服务
type UserAuthService struct {
	cfg      config.JWTConfig
	userRepo repository.UserRepository
}

// NewUserAuthService 创建用户认证服务
func NewUserAuthService(cfg config.JWTConfig, userRepo repository.UserRepository) *UserAuthService {
	return &UserAuthService{
		cfg:      cfg,
		userRepo: userRepo,
	}
}

// UserJWTClaims 用户 JWT 声明
type UserJWTClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// RegisterInput 用户注册输入
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

// GenerateUserJWT 生成用户 JWT Token
func (s *UserAuthService) GenerateUserJWT(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(positiveInt(s.cfg.ExpireHours, defaultUserExpireHours)) * time.Hour)
	claims := UserJWTClaims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseUserJWT 解析用户 JWT Token
func (s *UserAuthService) ParseUserJWT(tokenString string) (*UserJWTClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &UserJWTClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Register 用户注册
func (s *UserAuthService) Register(input RegisterInput) (*models.User, string, time.Time, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if err := validatePassword(defaultPasswordPolicy, input.Password); err != nil {
		return nil, "", time.Time{}, err
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if len([]rune(displayName)) > maxDisplayNameRuneCount {
		return nil, "", time.Time{}, newValidationError("display_name", "must be at most %d characters", maxDisplayNameRuneCount)
	}
	existing, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if existing != nil {
		return nil, "", time.Time{}, ErrEmailTaken
	}
	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Status:       constants.UserStatusActive,
	}
	if err := s.userRepo.Create(user); err != nil {
		if isUniqueViolation(err) {
			return nil, "", time.Time{}, ErrEmailTaken
		}
		return nil, "", time.Time{}, err
	}
	token, expiresAt, err := s.GenerateUserJWT(user)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	logger.Infow("user_registered", "user_id", user.ID)
	return user, token, expiresAt, nil
}

// Login 用户登录
func (s *UserAuthService) Login(email, password string) (*models.User, string, time.Time, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, "", time.Time{}, ErrUnauthorized
	}
	user, err := s.userRepo.GetByEmail(normalized)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if user == nil {
		return nil, "", time.Time{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, ErrUnauthorized
	}
	if user.Status != constants.UserStatusActive {
		return nil, "", time.Time{}, ErrAccountDisabled
	}
	token, expiresAt, err := s.GenerateUserJWT(user)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	now := time.Now()
	user.LastLoginAt = &now
	if err := s.userRepo.TouchLastLogin(user.ID, now); err != nil {
		logger.Warnw("user_touch_last_login_failed", "user_id", user.ID, "error", err)
	}
	return user, token, expiresAt, nil
}

// GetUser 获取用户，停用账号视为未授权
func (s *UserAuthService) GetUser(userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &NotFoundError{Resource: "user", ID: userID}
	}
	if user.Status != constants.UserStatusActive {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

// ListUsers 后台用户列表
func (s *UserAuthService) ListUsers(keyword, status string, page, pageSize int) ([]models.User, int64, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && !isKnownUserStatus(status) {
		return nil, 0, newValidationError("status", "unknown value %q", status)
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.userRepo.List(repository.UserListFilter{
		Page:     page,
		PageSize: pageSize,
		Keyword:  keyword,
		Status:   status,
	})
}

// UpdateUserStatus 启用或停用账号，停用后登录与鉴权均被拒绝
func (s *UserAuthService) UpdateUserStatus(userID uint, status string) error {
	status = strings.ToLower(strings.TrimSpace(status))
	if !isKnownUserStatus(status) {
		return newValidationError("status", "unknown value %q", status)
	}
	affected, err := s.userRepo.UpdateStatus(userID, status)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &NotFoundError{Resource: "user", ID: userID}
	}
	logger.Infow("user_status_updated", "user_id", userID, "status", status)
	return nil
}

func isKnownUserStatus(status string) bool {
	return status == constants.UserStatusActive || status == constants.UserStatusDisabled
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", newValidationError("email", "is required")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", newValidationError("email", "is invalid")
	}
	return trimmed, nil
}
