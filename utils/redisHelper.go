package utils

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

/* generic functions */

func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

/* Redis */

// Only master data is cached; ledger and document state always comes from
// the database.
func typeIsCached(typeName string) bool {
	cachedTypes := map[string]bool{
		"Item":     true,
		"Supplier": true,
		"Location": true,
		"User":     true,
	}
	return cachedTypes[typeName]
}

// store instance, obj should be a pointer
func StoreRedis[T any](obj any, id int) error {
	typeName := GetTypeName[T]()
	if !typeIsCached(typeName) {
		return nil
	}
	key := typeName + ":" + fmt.Sprint(id)
	return config.SetRedisObject(key, &obj, GetCacheLifespan())
}

// get from redis
// returns nil if does not exist
func RetrieveRedis[T any](id int) (*T, error) {
	typeName := GetTypeName[T]()
	if !typeIsCached(typeName) {
		return nil, nil
	}
	var result *T
	key := typeName + ":" + fmt.Sprint(id)
	exists, err := config.GetRedisObject(key, &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return result, nil
}

// remove an instance, Type:$id
func RemoveRedisItem[T any](id int) error {
	key := GetTypeName[T]() + ":" + fmt.Sprint(id)
	return config.RemoveRedisKey(key)
}
