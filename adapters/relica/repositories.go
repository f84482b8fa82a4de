package relica

import (
	"database/sql"

	"github.com/coregx/webhooks"
)

// Repositories holds all repository implementations.
type Repositories struct {
	Subscription webhooks.SubscriptionRepository
	DeliveryLog  webhooks.DeliveryLogRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "webhook_" but can be customized.
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Subscription: NewSubscriptionRepository(db, driverName),
		DeliveryLog:  NewDeliveryLogRepository(db, driverName),
	}
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Subscription: NewSubscriptionRepositoryWithPrefix(db, driverName, prefix),
		DeliveryLog:  NewDeliveryLogRepositoryWithPrefix(db, driverName, prefix),
	}
}
