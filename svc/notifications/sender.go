package notifications

import (
	"context"
	"encoding/json"

	"encore.dev/cron"

	"encore.app/pkg/config"
	"encore.app/pkg/errs"
	"encore.app/pkg/mailer"
	"encore.app/pkg/templates"
)

// Background email processor. Queued rows are claimed one at a time; a
// failed send retries up to max_retries with backoff before archival.

// ProcessEmailQueueResponse is the named response type for the private API
type ProcessEmailQueueResponse struct {
	Processed int `json:"processed"`
}

//encore:api private
func ProcessEmailQueue(ctx context.Context) (*ProcessEmailQueueResponse, error) {
	if cfg := config.GetSettings(); cfg != nil && !cfg.NotificationsEmailEnabled {
		return &ProcessEmailQueueResponse{}, nil
	}

	client := mailer.NewClient()
	rows, err := db.Stdlib().QueryContext(ctx, `
		SELECT n.id, n.template_id, n.payload, u.email, u.name
		FROM notifications n
		JOIN users u ON u.id = n.user_id
		WHERE n.channel='email'
		  AND (
			n.status = 'queued'
			OR (n.status = 'failed' AND n.next_retry_at IS NOT NULL AND n.next_retry_at <= NOW())
		  )
		ORDER BY n.created_at ASC
		LIMIT 50`)
	if err != nil {
		return nil, errs.New(errs.NotifQueueQueryFailed, "failed to query email queue")
	}
	defer rows.Close()

	type queued struct {
		id         int64
		templateID string
		payload    json.RawMessage
		email      string
		name       string
	}
	var batch []queued
	for rows.Next() {
		var q queued
		if err := rows.Scan(&q.id, &q.templateID, &q.payload, &q.email, &q.name); err != nil {
			return nil, errs.New(errs.NotifQueueQueryFailed, "failed to read email queue")
		}
		batch = append(batch, q)
	}

	processed := 0
	for _, q := range batch {
		// Claim; a concurrent worker loses the race and skips the row.
		res, err := db.Stdlib().ExecContext(ctx, `
			UPDATE notifications
			SET status='sending'
			WHERE id=$1 AND (
				status='queued' OR (status='failed' AND next_retry_at IS NOT NULL AND next_retry_at <= NOW())
			)
		`, q.id)
		if err != nil {
			continue
		}
		if ra, _ := res.RowsAffected(); ra == 0 {
			continue
		}

		var data templates.TemplateData
		_ = json.Unmarshal(q.payload, &data)
		if data == nil {
			data = templates.TemplateData{}
		}
		data["name"] = q.name

		subject, htmlBody, textBody, err := templates.RenderTemplate(q.templateID, data)
		if err != nil {
			subject = q.templateID
			htmlBody = "<p>You have a new notification.</p>"
			textBody = "You have a new notification."
		}

		err = client.Send(ctx, mailer.Mail{
			ToName:  q.name,
			ToEmail: q.email,
			Subject: subject,
			HTML:    htmlBody,
			Text:    textBody,
		})
		if err == nil {
			_, _ = db.Stdlib().ExecContext(ctx, `UPDATE notifications SET status='sent', sent_at=NOW() WHERE id=$1`, q.id)
			processed++
			continue
		}
		// Exponential backoff: 5, 10, 20 minutes.
		_, _ = db.Stdlib().ExecContext(ctx, `
			UPDATE notifications
			SET
			  retry_count = retry_count + 1,
			  status = CASE WHEN retry_count + 1 >= max_retries THEN 'archived' ELSE 'failed' END,
			  next_retry_at = CASE WHEN retry_count + 1 >= max_retries THEN NULL
			                       ELSE NOW() + make_interval(mins => 5 * (1 << retry_count)) END,
			  failed_reason = $2
			WHERE id=$1`, q.id, err.Error())
	}
	return &ProcessEmailQueueResponse{Processed: processed}, nil
}

var _ = cron.NewJob("notifications-email-queue", cron.JobConfig{
	Title:    "Process email notifications queue",
	Every:    2 * cron.Minute,
	Endpoint: ProcessEmailQueue,
})

// EnqueueEmail queues an email notification for a user
func EnqueueEmail(ctx context.Context, userID int64, templateID string, payload any) (int64, error) {
	return enqueue(ctx, userID, "email", templateID, payload)
}

// EnqueueInternal queues an inbox notification for a user
func EnqueueInternal(ctx context.Context, userID int64, templateID string, payload any) (int64, error) {
	return enqueue(ctx, userID, "internal", templateID, payload)
}

func enqueue(ctx context.Context, userID int64, channel, templateID string, payload any) (int64, error) {
	buf, _ := json.Marshal(payload)
	var id int64
	if err := db.Stdlib().QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, channel, template_id, payload, status)
		VALUES ($1, $2, $3, $4, 'queued')
		RETURNING id
	`, userID, channel, templateID, json.RawMessage(buf)).Scan(&id); err != nil {
		return 0, errs.New(errs.NotifQueueInsertFailed, "failed to queue notification")
	}
	return id, nil
}
