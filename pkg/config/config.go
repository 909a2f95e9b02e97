// Package config provides system configuration management with hot-reload capabilities
package config

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"encore.app/pkg/fees"
	"encore.dev/storage/sqldb"
)

// SystemSettings holds all system configuration
type SystemSettings struct {
	// Fee settings. These are the mutable platform-wide values; order creation
	// snapshots them onto the order and never re-reads them afterwards.
	FeesBuyerFee        float64 `json:"fees_buyer_fee"`
	FeesCommissionMode  string  `json:"fees_commission_mode"` // percentage | fixed
	FeesCommissionRate  float64 `json:"fees_commission_rate"`
	FeesCommissionFixed float64 `json:"fees_commission_fixed"`

	// Payment settings
	PaymentsEnabled  bool   `json:"payments_enabled"`
	PaymentsCurrency string `json:"payments_currency"`
	PaymentsTestMode bool   `json:"payments_test_mode"`

	// Auction settings
	AuctionsDefaultDurationDays int     `json:"auctions_default_duration_days"`
	AuctionsDefaultBidIncrement float64 `json:"auctions_default_bid_increment"`

	// Rate limits
	BidsRateLimitPerMinute int `json:"bids_rate_limit_per_minute"`

	// Order settings
	OrdersStaleAfterHours int `json:"orders_stale_after_hours"`

	// Subscription settings
	SubscriptionsDurationDays int `json:"subscriptions_duration_days"`

	// WebSocket settings
	WSEnabled           bool `json:"ws_enabled"`
	WSMaxConnections    int  `json:"ws_max_connections"`
	WSHeartbeatInterval int  `json:"ws_heartbeat_interval"`

	// Notification settings
	NotificationsEmailEnabled   bool `json:"notifications_email_enabled"`
	NotificationsEmailRetention int  `json:"notifications_email_retention_days"`

	// Webhook archive settings
	ArchiveEnabled bool   `json:"archive_enabled"`
	ArchiveBucket  string `json:"archive_bucket"`

	// App settings
	AppName                string `json:"app_name"`
	AppMaintenanceMode     bool   `json:"app_maintenance_mode"`
	AppRegistrationEnabled bool   `json:"app_registration_enabled"`

	// Security settings
	SecurityMaxLoginAttempts int `json:"security_max_login_attempts"`
	SecurityLockoutDuration  int `json:"security_lockout_duration"`

	// Metadata
	LastUpdated time.Time `json:"last_updated"`
}

// FeeConfig returns the current fee configuration as a snapshot value.
// Callers persist this on the order at creation; it is never re-read later.
func (s *SystemSettings) FeeConfig() fees.FeeConfig {
	return fees.FeeConfig{
		BuyerFee:        s.FeesBuyerFee,
		CommissionMode:  fees.CommissionMode(s.FeesCommissionMode),
		CommissionRate:  s.FeesCommissionRate,
		CommissionFixed: s.FeesCommissionFixed,
	}
}

// ChangeListener is called when settings change
type ChangeListener func(settings *SystemSettings)

// ConfigManager manages system configuration with hot-reload
type ConfigManager struct {
	db           *sqldb.Database
	settings     *SystemSettings
	mutex        sync.RWMutex
	listeners    []ChangeListener
	stopReload   chan struct{}
	reloadTicker *time.Ticker
	lastReload   time.Time
}

// settingRow represents a row from system_settings table
type settingRow struct {
	Key   string         `json:"key"`
	Value sql.NullString `json:"value"`
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(db *sqldb.Database, reloadInterval time.Duration) *ConfigManager {
	manager := &ConfigManager{
		db:         db,
		settings:   &SystemSettings{},
		listeners:  make([]ChangeListener, 0),
		stopReload: make(chan struct{}),
	}

	// Load initial settings
	if err := manager.LoadSettings(); err != nil {
		log.Printf("Failed to load initial settings: %v", err)
		manager.setDefaults()
	}

	// Start hot-reload if interval > 0
	if reloadInterval > 0 {
		manager.startHotReload(reloadInterval)
	}

	return manager
}

// LoadSettings loads settings from database
func (cm *ConfigManager) LoadSettings() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := cm.db.Query(ctx, `
		SELECT key, value
		FROM system_settings
		WHERE value IS NOT NULL
		ORDER BY key
	`)
	if err != nil {
		return fmt.Errorf("failed to query system_settings: %w", err)
	}
	defer rows.Close()

	settingsMap := make(map[string]string)

	for rows.Next() {
		var row settingRow
		if err := rows.Scan(&row.Key, &row.Value); err != nil {
			log.Printf("Failed to scan setting row: %v", err)
			continue
		}

		if row.Value.Valid {
			settingsMap[row.Key] = row.Value.String
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating settings: %w", err)
	}

	return cm.populateSettings(settingsMap)
}

// populateSettings populates SystemSettings from key-value map
func (cm *ConfigManager) populateSettings(settingsMap map[string]string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	settings := &SystemSettings{}

	// Fee settings
	settings.FeesBuyerFee = parseFloat(settingsMap["fees.buyer_fee"], 2.00)
	settings.FeesCommissionMode = parseString(settingsMap["fees.commission_mode"], "percentage")
	settings.FeesCommissionRate = parseFloat(settingsMap["fees.commission_rate"], 10.0)
	settings.FeesCommissionFixed = parseFloat(settingsMap["fees.commission_fixed"], 0.0)

	// Payment settings
	settings.PaymentsEnabled = parseBool(settingsMap["payments.enabled"], true)
	settings.PaymentsCurrency = parseString(settingsMap["payments.currency"], "GBP")
	settings.PaymentsTestMode = parseBool(settingsMap["payments.test_mode"], true)

	// Auction settings
	settings.AuctionsDefaultDurationDays = parseInt(settingsMap["auctions.default_duration_days"], 7)
	settings.AuctionsDefaultBidIncrement = parseFloat(settingsMap["auctions.default_bid_increment"], 1.00)

	// Rate limits
	settings.BidsRateLimitPerMinute = parseInt(settingsMap["bids.rate_limit_per_minute"], 10)
	settings.OrdersStaleAfterHours = parseInt(settingsMap["orders.stale_after_hours"], 24)

	// Subscription settings
	settings.SubscriptionsDurationDays = parseInt(settingsMap["subscriptions.duration_days"], 30)

	// WebSocket settings
	settings.WSEnabled = parseBool(settingsMap["ws.enabled"], true)
	settings.WSMaxConnections = parseInt(settingsMap["ws.max_connections"], 1000)
	settings.WSHeartbeatInterval = parseInt(settingsMap["ws.heartbeat_interval"], 30)

	// Notification settings
	settings.NotificationsEmailEnabled = parseBool(settingsMap["notifications.email_enabled"], true)
	settings.NotificationsEmailRetention = parseInt(settingsMap["notifications.email_retention_days"], 90)

	// Webhook archive settings
	settings.ArchiveEnabled = parseBool(settingsMap["archive.enabled"], false)
	settings.ArchiveBucket = parseString(settingsMap["archive.bucket"], "")

	// App settings
	settings.AppName = parseString(settingsMap["app.name"], "Perchwell")
	settings.AppMaintenanceMode = parseBool(settingsMap["app.maintenance_mode"], false)
	settings.AppRegistrationEnabled = parseBool(settingsMap["app.registration_enabled"], true)

	// Security settings
	settings.SecurityMaxLoginAttempts = parseInt(settingsMap["security.max_login_attempts"], 5)
	settings.SecurityLockoutDuration = parseInt(settingsMap["security.lockout_duration"], 900)

	settings.LastUpdated = time.Now().UTC()

	// Update settings atomically
	oldSettings := cm.settings
	cm.settings = settings
	cm.lastReload = time.Now().UTC()

	// Notify listeners if settings actually changed
	if oldSettings != nil {
		go cm.notifyListeners(settings)
	}

	return nil
}

// GetSettings returns current system settings (thread-safe)
func (cm *ConfigManager) GetSettings() *SystemSettings {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	// Return a copy to prevent external modifications
	settingsCopy := *cm.settings
	return &settingsCopy
}

// UpdateSetting updates a single setting in the database
func (cm *ConfigManager) UpdateSetting(ctx context.Context, key, value string) error {
	_, err := cm.db.Exec(ctx, `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1, $2, (CURRENT_TIMESTAMP AT TIME ZONE 'UTC'))
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value)

	if err != nil {
		return fmt.Errorf("failed to update setting %s: %w", key, err)
	}

	// Reload settings to reflect changes
	go func() {
		time.Sleep(100 * time.Millisecond) // Small delay to ensure DB commit
		if err := cm.LoadSettings(); err != nil {
			log.Printf("Failed to reload settings after update: %v", err)
		}
	}()

	return nil
}

// AddChangeListener adds a listener for settings changes
func (cm *ConfigManager) AddChangeListener(listener ChangeListener) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.listeners = append(cm.listeners, listener)
}

// startHotReload starts the hot-reload mechanism
func (cm *ConfigManager) startHotReload(interval time.Duration) {
	cm.reloadTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-cm.reloadTicker.C:
				if err := cm.LoadSettings(); err != nil {
					log.Printf("Hot-reload failed: %v", err)
				}
			case <-cm.stopReload:
				return
			}
		}
	}()
}

// StopHotReload stops the hot-reload mechanism
func (cm *ConfigManager) StopHotReload() {
	if cm.reloadTicker != nil {
		cm.reloadTicker.Stop()
	}
	close(cm.stopReload)
}

// notifyListeners notifies all change listeners
func (cm *ConfigManager) notifyListeners(settings *SystemSettings) {
	cm.mutex.RLock()
	listeners := make([]ChangeListener, len(cm.listeners))
	copy(listeners, cm.listeners)
	cm.mutex.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Config change listener panicked: %v", r)
				}
			}()
			listener(settings)
		}()
	}
}

// setDefaults sets default values when database is unavailable
func (cm *ConfigManager) setDefaults() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.settings = &SystemSettings{
		FeesBuyerFee:                2.00,
		FeesCommissionMode:          "percentage",
		FeesCommissionRate:          10.0,
		FeesCommissionFixed:         0.0,
		PaymentsEnabled:             true,
		PaymentsCurrency:            "GBP",
		PaymentsTestMode:            true,
		AuctionsDefaultDurationDays: 7,
		AuctionsDefaultBidIncrement: 1.00,
		BidsRateLimitPerMinute:      10,
		OrdersStaleAfterHours:       24,
		SubscriptionsDurationDays:   30,
		WSEnabled:                   true,
		WSMaxConnections:            1000,
		WSHeartbeatInterval:         30,
		NotificationsEmailEnabled:   true,
		NotificationsEmailRetention: 90,
		AppName:                     "Perchwell",
		AppMaintenanceMode:          false,
		AppRegistrationEnabled:      true,
		SecurityMaxLoginAttempts:    5,
		SecurityLockoutDuration:     900,
		LastUpdated:                 time.Now().UTC(),
	}
}

// Helper parsing functions
func parseBool(value string, defaultValue bool) bool {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat(value string, defaultValue float64) float64 {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseString(value string, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return strings.TrimSpace(value)
}

// Global config manager instance
var (
	globalManager *ConfigManager
	initOnce      sync.Once
)

// Initialize initializes the global config manager
func Initialize(db *sqldb.Database, reloadInterval time.Duration) *ConfigManager {
	initOnce.Do(func() {
		globalManager = NewConfigManager(db, reloadInterval)
	})
	return globalManager
}

// GetGlobalManager returns the global config manager
func GetGlobalManager() *ConfigManager {
	// Note: GetGlobalManager should only be used after Initialize is called
	// Otherwise it will return nil
	return globalManager
}

// GetSettings is a shortcut for GetGlobalManager().GetSettings()
func GetSettings() *SystemSettings {
	if globalManager == nil {
		return nil
	}
	return GetGlobalManager().GetSettings()
}
