package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by the domain repositories. It carries the connection a
// repository writes through, which is a transaction once WithTx is used.
type Base struct {
	db *gorm.DB
}

// NewBase wraps the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx. A nil ctx returns it unchanged.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// WithTx rebinds the base to tx. A nil tx keeps the current connection.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// Conn picks tx when present and falls back to the base connection.
func (b Base) Conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	return b.WithTx(tx).DB(ctx)
}
