package models

import (
	"context"

	"bitbucket.org/mmdatafocus/hims_backend/utils"
)

// first find in redis, then in db, cache result.
// Only master data goes through here; ledger rows are always read from db.
// (may return RecordNotFound error)
func GetResource[T any](ctx context.Context, id int, associations ...string) (*T, error) {

	// find in redis
	result, err := utils.RetrieveRedis[T](id)
	if err != nil {
		return nil, err
	}
	// if not found in redis
	if result == nil {
		// fetch from db
		result, err = utils.FetchModel[T](ctx, id, associations...)
		if err != nil {
			return nil, err
		}

		// store in redis
		if err := utils.StoreRedis[T](result, id); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// drop the cached copy after a write so the next read refreshes it
func invalidateResource[T any](id int) error {
	return utils.RemoveRedisItem[T](id)
}
