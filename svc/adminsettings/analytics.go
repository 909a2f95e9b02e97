package adminsettings

import (
	"context"
	"time"

	"encore.app/pkg/errs"
)

// DashboardStatsResponse is a snapshot of platform health for the admin UI
type DashboardStatsResponse struct {
	Users struct {
		Total     int `json:"total"`
		Active    int `json:"active"`
		Suspended int `json:"suspended"`
	} `json:"users"`
	Listings struct {
		Available int `json:"available"`
		Reserved  int `json:"reserved"`
		Sold      int `json:"sold"`
	} `json:"listings"`
	Auctions struct {
		Active int `json:"active"`
		Ended  int `json:"ended"`
	} `json:"auctions"`
	Orders struct {
		Open      int `json:"open"`
		Paid      int `json:"paid"`
		Disputed  int `json:"disputed"`
		Refunded  int `json:"refunded"`
		Delivered int `json:"delivered"`
	} `json:"orders"`
	Payouts struct {
		Initiated int `json:"initiated"`
		Frozen    int `json:"frozen"`
	} `json:"payouts"`
	GeneratedAt string `json:"generated_at"`
}

// GetDashboardStats returns aggregate counts for the admin dashboard
//
//encore:api auth method=GET path=/admin/dashboard/stats
func (s *Service) GetDashboardStats(ctx context.Context) (*DashboardStatsResponse, error) {
	if _, err := requireAdmin(); err != nil {
		return nil, err
	}

	resp := &DashboardStatsResponse{GeneratedAt: time.Now().UTC().Format(time.RFC3339)}

	err := db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE state = 'active'),
		       COUNT(*) FILTER (WHERE state = 'suspended')
		FROM users
	`).Scan(&resp.Users.Total, &resp.Users.Active, &resp.Users.Suspended)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to load user stats")
	}

	err = db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'available'),
		       COUNT(*) FILTER (WHERE status = 'reserved'),
		       COUNT(*) FILTER (WHERE status = 'sold')
		FROM listings
	`).Scan(&resp.Listings.Available, &resp.Listings.Reserved, &resp.Listings.Sold)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to load listing stats")
	}

	err = db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'active'),
		       COUNT(*) FILTER (WHERE status = 'ended')
		FROM auctions
	`).Scan(&resp.Auctions.Active, &resp.Auctions.Ended)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to load auction stats")
	}

	err = db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status IN ('created', 'awaiting_payment')),
		       COUNT(*) FILTER (WHERE status IN ('paid', 'shipped')),
		       COUNT(*) FILTER (WHERE status = 'disputed'),
		       COUNT(*) FILTER (WHERE status = 'refunded'),
		       COUNT(*) FILTER (WHERE status = 'delivered')
		FROM orders
	`).Scan(&resp.Orders.Open, &resp.Orders.Paid, &resp.Orders.Disputed, &resp.Orders.Refunded, &resp.Orders.Delivered)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to load order stats")
	}

	err = db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'initiated'),
		       COUNT(*) FILTER (WHERE frozen)
		FROM payouts
	`).Scan(&resp.Payouts.Initiated, &resp.Payouts.Frozen)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to load payout stats")
	}

	return resp, nil
}

// MonthlyVolume is one month of settlement volume
type MonthlyVolume struct {
	Period   string  `json:"period"`
	Sales    int     `json:"sales"`
	Auctions int     `json:"auctions"`
	Gross    float64 `json:"gross"`
	Refunded float64 `json:"refunded"`
	Net      float64 `json:"net"`
}

// RevenueAnalyticsResponse is the monthly settlement volume series
type RevenueAnalyticsResponse struct {
	Data    []MonthlyVolume `json:"data"`
	Summary struct {
		Gross      float64 `json:"gross"`
		Refunded   float64 `json:"refunded"`
		Net        float64 `json:"net"`
		RefundRate float64 `json:"refund_rate"`
	} `json:"summary"`
}

// GetRevenueAnalytics returns six months of sales and refund volume
//
//encore:api auth method=GET path=/admin/analytics/revenue
func (s *Service) GetRevenueAnalytics(ctx context.Context) (*RevenueAnalyticsResponse, error) {
	if _, err := requireAdmin(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	resp := &RevenueAnalyticsResponse{}

	for i := 5; i >= 0; i-- {
		monthStart := time.Date(now.Year(), now.Month()-time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		monthEnd := monthStart.AddDate(0, 1, 0)

		var m MonthlyVolume
		m.Period = monthStart.Format("2006-01")

		err := db.QueryRow(ctx, `
			SELECT COUNT(*) FILTER (WHERE status IN ('paid', 'shipped', 'delivered')),
			       COALESCE(SUM(gross_amount) FILTER (WHERE status IN ('paid', 'shipped', 'delivered')), 0),
			       COALESCE(SUM(refunded_amount) FILTER (WHERE status = 'refunded'), 0)
			FROM orders
			WHERE created_at >= $1 AND created_at < $2
		`, monthStart, monthEnd).Scan(&m.Sales, &m.Gross, &m.Refunded)
		if err != nil {
			return nil, errs.New(errs.Internal, "failed to load revenue series")
		}

		err = db.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM auctions
			WHERE status = 'ended' AND end_at >= $1 AND end_at < $2
		`, monthStart, monthEnd).Scan(&m.Auctions)
		if err != nil {
			return nil, errs.New(errs.Internal, "failed to load auction series")
		}

		m.Net = m.Gross - m.Refunded
		resp.Data = append(resp.Data, m)

		resp.Summary.Gross += m.Gross
		resp.Summary.Refunded += m.Refunded
	}

	resp.Summary.Net = resp.Summary.Gross - resp.Summary.Refunded
	if resp.Summary.Gross > 0 {
		resp.Summary.RefundRate = resp.Summary.Refunded / resp.Summary.Gross * 100
	}

	return resp, nil
}
