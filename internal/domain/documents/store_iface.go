package documents

import "context"

type StoreAPI interface {
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, name, description string) (Category, error)
	DeleteCategory(ctx context.Context, id string) error
	CategoryExists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, doc Document) (Document, error)
	Get(ctx context.Context, id string) (Document, error)
	List(ctx context.Context, filter Filter) ([]Document, int, error)
	Review(ctx context.Context, id, reviewerID string, status Status, reason string) (Document, error)
	Delete(ctx context.Context, id string) error
}
