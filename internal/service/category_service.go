package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shopledger/internal/cache"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/repository"
)

var categorySlugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// CategoryService 分类业务服务
type CategoryService struct {
	repo  repository.CategoryRepository
	store cache.Store
	ttl   time.Duration
}

// NewCategoryService 创建分类服务
func NewCategoryService(repo repository.CategoryRepository, store cache.Store, ttl time.Duration) *CategoryService {
	return &CategoryService{repo: repo, store: store, ttl: positiveDuration(ttl, defaultProductListTTL)}
}

// CreateCategoryInput 创建分类输入
type CreateCategoryInput struct {
	Slug      string
	Name      string
	SortOrder int
}

// List 获取分类列表（缓存 categories:all）
func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	return cachedFetch(ctx, s.store, constants.CacheKeyCategoriesAll, s.ttl, s.repo.List)
}

// Create 创建分类，slug 已存在时返回已有分类
func (s *CategoryService) Create(input CreateCategoryInput) (*models.Category, error) {
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if !categorySlugPattern.MatchString(slug) {
		return nil, newValidationError("slug", "must be lowercase words joined by hyphens")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, newValidationError("name", "is required")
	}
	existing, err := s.repo.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	category := &models.Category{Slug: slug, Name: name, SortOrder: input.SortOrder}
	if err := s.repo.Create(category); err != nil {
		return nil, err
	}
	return category, nil
}
