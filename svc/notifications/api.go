package notifications

import (
	"context"
	"encoding/json"
	"reflect"
	"strconv"

	"encore.dev/beta/auth"
	"encore.dev/storage/sqldb"

	"encore.app/pkg/errs"
	"encore.app/pkg/templates"
)

var db = sqldb.Named("coredb")

//encore:service
type Service struct{}

func initService() (*Service, error) { return &Service{}, nil }

type Notification struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Channel   string          `json:"channel"`
	Template  string          `json:"template_id"`
	Payload   json.RawMessage `json:"payload"`
	Status    string          `json:"status"`
	ReadAt    string          `json:"read_at,omitempty"`
	CreatedAt string          `json:"created_at"`
}

type ListResponse struct {
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
}

type ListQuery struct {
	Limit  int `query:"limit" encore:"optional"`
	Offset int `query:"offset" encore:"optional"`
}

func currentUserID() (int64, error) {
	uidStr, ok := auth.UserID()
	if !ok {
		return 0, errs.New(errs.NotifUnauthenticated, "sign in required")
	}
	uid, err := strconv.ParseInt(string(uidStr), 10, 64)
	if err != nil {
		return 0, errs.New(errs.InvalidArgument, "invalid user ID")
	}
	return uid, nil
}

// isAdmin inspects the auth payload without importing svc/auth,
// which would create an import cycle (auth enqueues emails here).
func isAdmin() bool {
	if d := auth.Data(); d != nil {
		rv := reflect.ValueOf(d)
		if rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		if rv.IsValid() && rv.Kind() == reflect.Struct {
			f := rv.FieldByName("Role")
			if f.IsValid() && f.Kind() == reflect.String {
				return f.String() == "admin"
			}
		}
	}
	return false
}

// List returns the caller's inbox notifications, newest first
//
//encore:api auth method=GET path=/notifications
func (s *Service) List(ctx context.Context, req *ListQuery) (*ListResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	limit, offset := 20, 0
	if req != nil {
		if req.Limit > 0 && req.Limit <= 100 {
			limit = req.Limit
		}
		if req.Offset > 0 {
			offset = req.Offset
		}
	}

	rows, err := db.Stdlib().QueryContext(ctx, `
		SELECT id, user_id, channel::text, template_id, payload, status::text,
		       COALESCE(to_char(read_at AT TIME ZONE 'UTC','YYYY-MM-DD"T"HH24:MI:SS"Z"'), ''),
		       to_char(created_at AT TIME ZONE 'UTC','YYYY-MM-DD"T"HH24:MI:SS"Z"')
		FROM notifications
		WHERE user_id=$1 AND channel='internal'
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, uid, limit, offset)
	if err != nil {
		return nil, errs.New(errs.NotifListQueryFailed, "failed to query notifications")
	}
	defer rows.Close()

	items := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Channel, &n.Template, &n.Payload, &n.Status, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, errs.New(errs.NotifListQueryFailed, "failed to read notifications")
		}
		items = append(items, n)
	}

	var unread int
	_ = db.Stdlib().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND channel='internal' AND read_at IS NULL
	`, uid).Scan(&unread)

	return &ListResponse{Items: items, Unread: unread}, nil
}

type MarkReadResponse struct {
	Updated int `json:"updated"`
}

// MarkRead marks one inbox notification as read
//
//encore:api auth method=POST path=/notifications/:id/read
func (s *Service) MarkRead(ctx context.Context, id int64) (*MarkReadResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	res, err := db.Stdlib().ExecContext(ctx, `
		UPDATE notifications SET read_at=NOW()
		WHERE id=$1 AND user_id=$2 AND channel='internal' AND read_at IS NULL
	`, id, uid)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to mark notification read")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists bool
		_ = db.Stdlib().QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM notifications WHERE id=$1 AND user_id=$2)`, id, uid).Scan(&exists)
		if !exists {
			return nil, errs.New(errs.NotifNotFound, "notification not found")
		}
	}
	return &MarkReadResponse{Updated: int(n)}, nil
}

// MarkAllRead marks every unread inbox notification as read
//
//encore:api auth method=POST path=/notifications/read-all
func (s *Service) MarkAllRead(ctx context.Context) (*MarkReadResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	res, err := db.Stdlib().ExecContext(ctx, `
		UPDATE notifications SET read_at=NOW()
		WHERE user_id=$1 AND channel='internal' AND read_at IS NULL
	`, uid)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to mark notifications read")
	}
	n, _ := res.RowsAffected()
	return &MarkReadResponse{Updated: int(n)}, nil
}

type TestEmailRequest struct {
	TemplateID string          `json:"template_id"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type TestEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	EmailID int64  `json:"email_id,omitempty"`
}

// TestEmail queues a test email to the calling admin's own address
//
//encore:api auth method=POST path=/notifications/email/test
func (s *Service) TestEmail(ctx context.Context, req *TestEmailRequest) (*TestEmailResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	if !isAdmin() {
		return nil, errs.New(errs.AuthForbidden, "admin privileges required")
	}
	if _, err := templates.GetTemplateInfo(req.TemplateID); err != nil {
		return nil, errs.New(errs.NotifInvalidTemplate, "unknown template")
	}

	dataMap := map[string]interface{}{
		"order_id":   0,
		"auction_id": 0,
		"amount":     "0.00",
	}
	if len(req.Data) > 0 {
		_ = json.Unmarshal(req.Data, &dataMap)
	}

	emailID, err := EnqueueEmail(ctx, uid, req.TemplateID, dataMap)
	if err != nil {
		return nil, errs.New(errs.NotifQueueInsertFailed, "failed to queue test email")
	}
	return &TestEmailResponse{
		Success: true,
		Message: "test email queued; the sender picks it up within two minutes",
		EmailID: emailID,
	}, nil
}

type TemplateInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type GetTemplatesResponse struct {
	Templates []TemplateInfo `json:"templates"`
}

// GetTemplates lists the available notification templates
//
//encore:api auth method=GET path=/notifications/templates
func (s *Service) GetTemplates(ctx context.Context) (*GetTemplatesResponse, error) {
	if _, ok := auth.UserID(); !ok {
		return nil, errs.New(errs.NotifUnauthenticated, "sign in required")
	}

	var out []TemplateInfo
	for _, id := range templates.GetAvailableTemplates() {
		info, _ := templates.GetTemplateInfo(id)
		ti := TemplateInfo{}
		if v, ok := info["id"].(string); ok {
			ti.ID = v
		}
		if v, ok := info["description"].(string); ok {
			ti.Description = v
		}
		out = append(out, ti)
	}
	return &GetTemplatesResponse{Templates: out}, nil
}
