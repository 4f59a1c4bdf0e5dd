package instance

import "context"

// Repository persists instances. Find methods return (nil, nil) when no
// row matches so callers can distinguish absence from failure.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Instance, error)
	FindByUserID(ctx context.Context, userID int64) ([]*Instance, error)
	ListAll(ctx context.Context) ([]*Instance, error)
	Save(ctx context.Context, entity *Instance) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	Delete(ctx context.Context, id string) error
}
