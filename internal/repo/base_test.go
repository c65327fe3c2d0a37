package repo

import (
	"context"
	"testing"

	"github.com/angelmondragon/ordercore/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey struct{}

func TestNewBaseStoresConnection(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)
	assert.Same(t, db, base.db)
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)
	require.NotNil(t, withCtx)
	require.NotNil(t, withCtx.Statement)
	assert.Equal(t, ctx, withCtx.Statement.Context)

	//nolint:staticcheck // nil context is part of the contract
	assert.Same(t, db, base.DB(nil))
}

func TestBaseWithTxPrefersTransaction(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	assert.Same(t, db, base.WithTx(nil).db)

	tx := db.Begin()
	t.Cleanup(func() { tx.Rollback() })
	assert.Same(t, tx, base.WithTx(tx).db)
	assert.Equal(t, context.Background(), base.Conn(context.Background(), tx).Statement.Context)
}
