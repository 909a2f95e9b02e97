// Package adminsettings exposes platform configuration to administrators:
// fee settings, payment toggles, and operational knobs, all backed by the
// system_settings table with hot reload.
package adminsettings

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"encore.dev/beta/auth"
	"encore.dev/storage/sqldb"

	"encore.app/pkg/audit"
	"encore.app/pkg/config"
	"encore.app/pkg/errs"
	"encore.app/pkg/logger"
	authsvc "encore.app/svc/auth"
)

var db = sqldb.Named("coredb")

//encore:service
type Service struct {
	cfg *config.ConfigManager
}

func initService() (*Service, error) {
	cfg := config.Initialize(db, 30*time.Second)
	return &Service{cfg: cfg}, nil
}

func isAdmin() bool {
	if d := auth.Data(); d != nil {
		if v, ok := d.(*authsvc.AuthData); ok {
			return v.Role == "admin"
		}
	}
	return false
}

func requireAdmin() (int64, error) {
	uidStr, ok := auth.UserID()
	if !ok {
		return 0, errs.New(errs.AuthUnauthenticated, "authentication required")
	}
	uid, err := strconv.ParseInt(string(uidStr), 10, 64)
	if err != nil {
		return 0, errs.New(errs.Internal, "invalid user ID format")
	}
	if !isAdmin() {
		return 0, errs.New(errs.AuthForbidden, "admin privileges required")
	}
	return uid, nil
}

type RawSetting struct {
	Key       string  `json:"key"`
	Value     *string `json:"value,omitempty"`
	UpdatedAt string  `json:"updated_at"`
}

type ListRawSettingsResponse struct {
	Items []RawSetting `json:"items"`
}

// ListRawSettings returns every system setting as stored
//
//encore:api auth method=GET path=/admin/system-settings
func (s *Service) ListRawSettings(ctx context.Context) (*ListRawSettingsResponse, error) {
	if _, err := requireAdmin(); err != nil {
		return nil, err
	}

	rows, err := db.Stdlib().QueryContext(ctx, `
		SELECT key, value,
		       to_char(updated_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
		FROM system_settings
		ORDER BY key
	`)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to query settings")
	}
	defer rows.Close()

	var items []RawSetting
	for rows.Next() {
		var key string
		var val sql.NullString
		var updated string
		if err := rows.Scan(&key, &val, &updated); err != nil {
			return nil, errs.New(errs.Internal, "failed to read setting row")
		}
		var valuePtr *string
		if val.Valid {
			tmp := val.String
			valuePtr = &tmp
		}
		items = append(items, RawSetting{Key: key, Value: valuePtr, UpdatedAt: updated})
	}
	return &ListRawSettingsResponse{Items: items}, nil
}

type RuntimeSettingsResponse struct {
	Settings *config.SystemSettings `json:"settings"`
}

// GetRuntimeSettings returns the parsed settings currently in effect
//
//encore:api auth method=GET path=/admin/system-settings/runtime
func (s *Service) GetRuntimeSettings(ctx context.Context) (*RuntimeSettingsResponse, error) {
	if _, err := requireAdmin(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsResponse{Settings: s.cfg.GetSettings()}, nil
}

type UpdateSettingItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type UpdateSettingsRequest struct {
	Items []UpdateSettingItem `json:"items"`
}

type UpdateError struct {
	Key     string `json:"key"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type UpdateSettingsResponse struct {
	Updated int           `json:"updated"`
	Errors  []UpdateError `json:"errors,omitempty"`
}

// UpdateSettings applies a batch of setting changes. Each item is
// validated, written, and audited independently; failures are reported
// per key without aborting the batch.
//
//encore:api auth method=PUT path=/admin/system-settings
func (s *Service) UpdateSettings(ctx context.Context, req *UpdateSettingsRequest) (*UpdateSettingsResponse, error) {
	adminID, err := requireAdmin()
	if err != nil {
		return nil, err
	}
	if req == nil || len(req.Items) == 0 {
		return nil, errs.New(errs.InvalidArgument, "at least one setting is required")
	}

	resp := &UpdateSettingsResponse{}

	for _, it := range req.Items {
		if it.Key == "" {
			resp.Errors = append(resp.Errors, UpdateError{Key: it.Key, Code: errs.InvalidArgument, Message: "empty key"})
			continue
		}

		if verr := validateKeyValue(it.Key, it.Value); verr != nil {
			resp.Errors = append(resp.Errors, UpdateError{Key: it.Key, Code: verr.Code, Message: verr.Message})
			continue
		}

		// Capture the old value for the audit trail; non-blocking.
		var oldVal sql.NullString
		if err := db.Stdlib().QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = $1`, it.Key).Scan(&oldVal); err != nil && err != sql.ErrNoRows {
			logger.LogError(ctx, err, "failed to read previous setting value", logger.Fields{"key": it.Key})
		}

		if err := s.cfg.UpdateSetting(ctx, it.Key, it.Value); err != nil {
			resp.Errors = append(resp.Errors, UpdateError{Key: it.Key, Code: errs.Internal, Message: "failed to update setting"})
			continue
		}

		meta := map[string]interface{}{
			"key":       it.Key,
			"new_value": it.Value,
		}
		if oldVal.Valid {
			meta["old_value"] = oldVal.String
		} else {
			meta["old_value"] = nil
		}
		if _, aerr := audit.Log(ctx, db, audit.Entry{
			ActorUserID: &adminID,
			Action:      "system_settings.update",
			EntityType:  "system_setting",
			EntityID:    it.Key,
			Meta:        meta,
		}); aerr != nil {
			logger.LogError(ctx, aerr, "failed to write audit log for setting update", logger.Fields{"key": it.Key})
		}

		resp.Updated++
	}

	return resp, nil
}

type SettingsHistoryRequest struct {
	Key   string `query:"key" encore:"optional"`
	Limit int    `query:"limit" encore:"optional"`
}

type SettingsHistoryItem struct {
	Key      string          `json:"key"`
	OldValue *string         `json:"old_value,omitempty"`
	NewValue *string         `json:"new_value,omitempty"`
	ActorID  *int64          `json:"actor_user_id,omitempty"`
	At       string          `json:"at"`
	Meta     json.RawMessage `json:"meta,omitempty"`
}

type SettingsHistoryResponse struct {
	Items []SettingsHistoryItem `json:"items"`
}

// GetSettingsHistory returns recent setting changes from the audit log
//
//encore:api auth method=GET path=/admin/system-settings/history
func (s *Service) GetSettingsHistory(ctx context.Context, req *SettingsHistoryRequest) (*SettingsHistoryResponse, error) {
	if _, err := requireAdmin(); err != nil {
		return nil, err
	}

	limit := 50
	if req != nil && req.Limit > 0 && req.Limit <= 200 {
		limit = req.Limit
	}

	query := `
		SELECT entity_id,
		       meta->>'old_value',
		       meta->>'new_value',
		       actor_user_id,
		       to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"'),
		       meta
		FROM audit_logs
		WHERE action = 'system_settings.update'`
	args := []interface{}{}
	if req != nil && req.Key != "" {
		query += ` AND entity_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, req.Key, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := db.Stdlib().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to query settings history")
	}
	defer rows.Close()

	var items []SettingsHistoryItem
	for rows.Next() {
		var item SettingsHistoryItem
		var oldVal, newVal sql.NullString
		var actorID sql.NullInt64
		var meta []byte
		if err := rows.Scan(&item.Key, &oldVal, &newVal, &actorID, &item.At, &meta); err != nil {
			return nil, errs.New(errs.Internal, "failed to read history row")
		}
		if oldVal.Valid {
			tmp := oldVal.String
			item.OldValue = &tmp
		}
		if newVal.Valid {
			tmp := newVal.String
			item.NewValue = &tmp
		}
		if actorID.Valid {
			tmp := actorID.Int64
			item.ActorID = &tmp
		}
		item.Meta = meta
		items = append(items, item)
	}
	return &SettingsHistoryResponse{Items: items}, nil
}

// validateKeyValue applies type checks for known setting keys so a bad
// write cannot poison the runtime config.
func validateKeyValue(key, value string) *errs.Error {
	switch key {
	case "fees.buyer_fee", "fees.commission_fixed", "auctions.default_bid_increment":
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || f < 0 {
			return errs.New(errs.ValidationFailed, "value must be a non-negative number")
		}
	case "fees.commission_rate":
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || f < 0 || f > 100 {
			return errs.New(errs.ValidationFailed, "commission rate must be between 0 and 100")
		}
	case "fees.commission_mode":
		if value != "percentage" && value != "fixed" {
			return errs.New(errs.ValidationFailed, "commission mode must be percentage or fixed")
		}
	case "payments.enabled", "payments.test_mode", "ws.enabled", "notifications.email_enabled", "archive.enabled", "app.maintenance_mode":
		if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
			return errs.New(errs.ValidationFailed, "value must be a boolean")
		}
	case "payments.currency":
		if len(strings.TrimSpace(value)) != 3 {
			return errs.New(errs.ValidationFailed, "currency must be a 3-letter code")
		}
	case "auctions.default_duration_days", "bids.rate_limit_per_minute", "orders.stale_after_hours",
		"subscriptions.duration_days", "ws.max_connections", "ws.heartbeat_interval",
		"notifications.email_retention_days":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			return errs.New(errs.ValidationFailed, "value must be a positive integer")
		}
	}
	return nil
}
