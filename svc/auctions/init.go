package auctions

import (
	"time"

	"encore.dev/storage/sqldb"

	"encore.app/pkg/config"
)

// Database connection
var db = sqldb.Named("coredb")

func init() {
	_ = config.Initialize(db, 5*time.Minute)
	NewRealtimeService()
	NewService(db)
}
