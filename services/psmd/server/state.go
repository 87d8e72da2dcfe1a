package server

import (
	"context"

	"psmswap/crypto"
	"psmswap/permission"
	"psmswap/pool"
	"psmswap/services/psmd/storage"
)

// engineStore adapts the sqlite storage layer to the pool engine's state
// surface, binding the request context to each lookup.
type engineStore struct {
	store *storage.Storage
	ctx   context.Context
}

func (s engineStore) GetPool(id pool.PoolID) (*pool.Pool, error) {
	return s.store.GetPool(s.ctx, id)
}

func (s engineStore) PutPool(id pool.PoolID, p *pool.Pool) error {
	return s.store.PutPool(s.ctx, id, p)
}

func (s engineStore) GetPermission(id pool.PoolID, authority crypto.Address) (*permission.Record, error) {
	return s.store.GetPermission(s.ctx, id, authority)
}

func (s engineStore) PutPermission(record *permission.Record) error {
	return s.store.PutPermission(s.ctx, record)
}
