package callstore

import "context"

// NewStore selects the backend from the database URL. An empty URL keeps
// records in memory, anything else is treated as a PostgreSQL DSN.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if databaseURL == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
