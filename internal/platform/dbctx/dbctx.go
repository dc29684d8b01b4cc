package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries the request context and, when set, the transaction repos must run in.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
