package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shoplytics/shoplytics-backend/pkg/logger"
	"github.com/shoplytics/shoplytics-backend/pkg/redis"
)

const (
	defaultRangeDays    = 30
	defaultTopCustomers = 5
	defaultTopProducts  = 10
	defaultRecentOrders = 20
	maxListLimit        = 100
)

// responseCache is the slice of the redis client the service needs.
type responseCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	InsightsKey(tenantID, name, params string) string
}

type ServiceParams struct {
	Repo   *Repository
	Cache  responseCache
	Logger *logger.Logger
	TTL    time.Duration
}

// Service serves aggregated insights with a per-tenant response cache in
// front of the SQL. Cached entries are dropped by the ingest pipeline
// whenever new data lands, so the TTL only bounds staleness when
// invalidation is missed.
type Service struct {
	repo  *Repository
	cache responseCache
	logg  *logger.Logger
	ttl   time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("insights repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		repo:  params.Repo,
		cache: params.Cache,
		logg:  params.Logger,
		ttl:   ttl,
	}, nil
}

// withCache serves dest from the cache when possible, otherwise computes and
// stores. Cache failures fall through to the database.
func (s *Service) withCache(ctx context.Context, key string, dest any, compute func() (any, error)) error {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key)
		if err == nil {
			if unmarshalErr := json.Unmarshal([]byte(raw), dest); unmarshalErr == nil {
				return nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "insights cache read failed")
		}
	}

	value, err := compute()
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, string(encoded), s.ttl); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "insights cache write failed")
		}
	}
	return json.Unmarshal(encoded, dest)
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// Summary returns the tenant's headline totals.
func (s *Service) Summary(ctx context.Context, tenantID uuid.UUID) (*Totals, error) {
	var totals Totals
	key := s.cacheKey(tenantID, "summary", "")
	err := s.withCache(ctx, key, &totals, func() (any, error) {
		return s.repo.Totals(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

// DateRange bounds an orders-by-date query. Zero values default to the last
// 30 days ending now.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) resolve() (time.Time, time.Time) {
	to := r.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	from := r.From
	if from.IsZero() {
		from = to.AddDate(0, 0, -defaultRangeDays)
	}
	return from, to
}

// OrdersByDate returns daily order and revenue buckets for the range.
func (s *Service) OrdersByDate(ctx context.Context, tenantID uuid.UUID, dateRange DateRange) ([]DailyOrders, error) {
	from, to := dateRange.resolve()

	rows := []DailyOrders{}
	params := fmt.Sprintf("%d:%d", from.Unix(), to.Unix())
	err := s.withCache(ctx, s.cacheKey(tenantID, "orders-by-date", params), &rows, func() (any, error) {
		return s.repo.OrdersByDate(ctx, tenantID, from, to)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TopCustomers lists customers ranked by mirrored order revenue.
func (s *Service) TopCustomers(ctx context.Context, tenantID uuid.UUID, limit int) ([]CustomerSpend, error) {
	limit = clampLimit(limit, defaultTopCustomers)

	rows := []CustomerSpend{}
	err := s.withCache(ctx, s.cacheKey(tenantID, "top-customers", fmt.Sprintf("%d", limit)), &rows, func() (any, error) {
		return s.repo.TopCustomers(ctx, tenantID, limit)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TopProducts lists products ranked by line item revenue.
func (s *Service) TopProducts(ctx context.Context, tenantID uuid.UUID, limit int) ([]ProductSales, error) {
	limit = clampLimit(limit, defaultTopProducts)

	rows := []ProductSales{}
	err := s.withCache(ctx, s.cacheKey(tenantID, "top-products", fmt.Sprintf("%d", limit)), &rows, func() (any, error) {
		return s.repo.TopProducts(ctx, tenantID, limit)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RecentOrdersPage is a paginated slice of the latest orders.
type RecentOrdersPage struct {
	Orders  []RecentOrder `json:"orders"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
	Total   int64         `json:"total"`
	HasMore bool          `json:"hasMore"`
}

// RecentOrders lists the newest orders by processed time.
func (s *Service) RecentOrders(ctx context.Context, tenantID uuid.UUID, limit, offset int) (*RecentOrdersPage, error) {
	limit = clampLimit(limit, defaultRecentOrders)
	if offset < 0 {
		offset = 0
	}

	var page RecentOrdersPage
	params := fmt.Sprintf("%d:%d", limit, offset)
	err := s.withCache(ctx, s.cacheKey(tenantID, "recent-orders", params), &page, func() (any, error) {
		rows, total, err := s.repo.RecentOrders(ctx, tenantID, limit, offset)
		if err != nil {
			return nil, err
		}
		return &RecentOrdersPage{
			Orders:  rows,
			Limit:   limit,
			Offset:  offset,
			Total:   total,
			HasMore: int64(offset+limit) < total,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *Service) cacheKey(tenantID uuid.UUID, name, params string) string {
	if s.cache != nil {
		return s.cache.InsightsKey(tenantID.String(), name, params)
	}
	return fmt.Sprintf("insights:%s:%s:%s", tenantID, name, params)
}
