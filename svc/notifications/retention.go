package notifications

import (
	"context"

	"encore.dev/cron"

	"encore.app/pkg/config"
	"encore.app/pkg/errs"
)

// Retention: sent emails and read inbox rows age out; archived rows (sends
// that exhausted their retries) are kept longer for debugging.

type CleanupNotificationsResponse struct {
	Deleted int `json:"deleted"`
}

//encore:api private
func CleanupNotifications(ctx context.Context) (*CleanupNotificationsResponse, error) {
	retentionDays := 90
	if cfg := config.GetSettings(); cfg != nil && cfg.NotificationsEmailRetention > 0 {
		retentionDays = cfg.NotificationsEmailRetention
	}

	res, err := db.Stdlib().ExecContext(ctx, `
		DELETE FROM notifications
		WHERE (
			(status = 'sent' AND sent_at < NOW() - make_interval(days => $1))
			OR (channel = 'internal' AND read_at IS NOT NULL AND read_at < NOW() - make_interval(days => $1))
			OR (status = 'archived' AND created_at < NOW() - make_interval(days => $1 * 2))
		)
	`, retentionDays)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to clean up notifications")
	}
	n, _ := res.RowsAffected()
	return &CleanupNotificationsResponse{Deleted: int(n)}, nil
}

var _ = cron.NewJob("notifications-retention", cron.JobConfig{
	Title:    "Clean up old notifications",
	Every:    24 * cron.Hour,
	Endpoint: CleanupNotifications,
})
