package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shoplytics/shoplytics-backend/api/middleware"
	"github.com/shoplytics/shoplytics-backend/api/responses"
	"github.com/shoplytics/shoplytics-backend/api/validators"
	"github.com/shoplytics/shoplytics-backend/internal/insights"
	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

// InsightsSummary serves the headline totals for the resolved tenant.
func InsightsSummary(svc *insights.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := insightsTenant(w, r, logg)
		if !ok {
			return
		}

		totals, err := svc.Summary(r.Context(), tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, totals)
	}
}

// InsightsOrdersByDate serves daily order counts and revenue. Optional from
// and to query parameters (RFC3339 or YYYY-MM-DD) bound the range; the
// default window is the trailing thirty days.
func InsightsOrdersByDate(svc *insights.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := insightsTenant(w, r, logg)
		if !ok {
			return
		}

		from, err := parseDateParam(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := parseDateParam(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		series, err := svc.OrdersByDate(r.Context(), tenantID, insights.DateRange{From: from, To: to})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, series)
	}
}

// InsightsTopCustomers serves customers ranked by lifetime revenue.
func InsightsTopCustomers(svc *insights.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := insightsTenant(w, r, logg)
		if !ok {
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.TopCustomers(r.Context(), tenantID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// InsightsTopProducts serves products ranked by revenue from order lines.
func InsightsTopProducts(svc *insights.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := insightsTenant(w, r, logg)
		if !ok {
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.TopProducts(r.Context(), tenantID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// InsightsRecentOrders serves the paginated recent-orders feed.
func InsightsRecentOrders(svc *insights.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := insightsTenant(w, r, logg)
		if !ok {
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.RecentOrders(r.Context(), tenantID, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func insightsTenant(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenant missing from context"))
		return uuid.Nil, false
	}
	return tenant.ID, true
}

func parseDateParam(r *http.Request, key string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "date must be RFC3339 or YYYY-MM-DD").WithDetails(map[string]any{"field": key})
}
