// Package jobs hosts the scheduled work that keeps the marketplace
// moving: the auction closer tick, the stale-order digest, and the
// Prometheus metrics endpoint.
package jobs

import (
	"context"
	"net/http"

	"encore.dev/cron"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"encore.app/coredb"
	"encore.app/pkg/audit"
	"encore.app/svc/auctions"
	"encore.app/svc/notifications"
	"encore.app/svc/orders/order_mgmt"
)

//encore:service
type Service struct{}

func initService() (*Service, error) { return &Service{}, nil }

// RunAuctionTick closes every auction past its end time and creates
// winner orders.
//
//encore:api private
func RunAuctionTick(ctx context.Context) error {
	_, err := auctions.EndDueAuctionsInternal(ctx)
	return err
}

var _ = cron.NewJob("auction-tick", cron.JobConfig{
	Title:    "Close due auctions",
	Every:    1 * cron.Minute,
	Endpoint: RunAuctionTick,
})

// RunStaleOrderDigest reports orders stuck before payment and alerts
// the admins when any exist.
//
//encore:api private
func RunStaleOrderDigest(ctx context.Context) error {
	report, err := order_mgmt.StaleOrdersInternal(ctx)
	if err != nil {
		return err
	}
	if len(report.Items) == 0 {
		return nil
	}

	meta := map[string]interface{}{
		"count":           len(report.Items),
		"threshold_hours": report.ThresholdHours,
	}
	_, _ = audit.Log(ctx, coredb.DB, audit.Entry{
		Action:     "orders.stale_digest",
		EntityType: "system",
		EntityID:   "stale_order_digest",
		Meta:       meta,
	})

	payload := map[string]any{
		"count":           len(report.Items),
		"threshold_hours": report.ThresholdHours,
	}
	rows, err := coredb.DB.Query(ctx, `SELECT id FROM users WHERE role = 'admin' AND state = 'active'`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var adminID int64
		if err := rows.Scan(&adminID); err != nil {
			continue
		}
		_, _ = notifications.EnqueueInternal(ctx, adminID, "stale_orders_digest", payload)
		_, _ = notifications.EnqueueEmail(ctx, adminID, "stale_orders_digest", payload)
	}
	return rows.Err()
}

var _ = cron.NewJob("stale-order-digest", cron.JobConfig{
	Title:    "Report orders stuck before payment",
	Every:    24 * cron.Hour,
	Endpoint: RunStaleOrderDigest,
})

// Metrics exposes Prometheus metrics for scraping
//
//encore:api public raw method=GET path=/metrics
func Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
