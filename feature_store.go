package ldclient

import (
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldlog"
)

// FeatureStore is an interface describing a structure that maintains the live
// collection of flags and segments. The SDK puts data received from
// LaunchDarkly, via streaming or polling, into the FeatureStore; it then
// queries the store whenever a flag needs to be evaluated. Implementations
// must therefore be thread-safe.
//
// The SDK provides a default in-memory implementation (NewInMemoryFeatureStore).
// Custom implementations can use FeatureStoreHelper for commonly desired
// behaviors such as caching. Writers must never mutate an item after it has
// been published to the store; updates always replace the whole item.
type FeatureStore interface {
	// Get retrieves an item of the specified kind by its key. If no such
	// item exists, or if the item is a deletion tombstone, it returns nil
	// with no error.
	Get(kind VersionedDataKind, key string) (VersionedData, error)
	// All retrieves all items of the specified kind as a map of keys to
	// items, omitting any deletion tombstones.
	All(kind VersionedDataKind) (map[string]VersionedData, error)
	// Init performs an update of the entire store, atomically replacing any
	// existing data: readers observe either the old complete data set or the
	// new one, never a mixture.
	Init(allData map[VersionedDataKind]map[string]VersionedData) error
	// Delete removes an item by key by storing a tombstone with the given
	// version, unless the stored item's version is greater than or equal to
	// that version, in which case nothing happens.
	Delete(kind VersionedDataKind, key string, version int) error
	// Upsert adds or updates an item, unless the stored item's version is
	// greater than or equal to the new item's version, in which case nothing
	// happens.
	Upsert(kind VersionedDataKind, item VersionedData) error
	// Initialized returns true if Init has been called at least once. This
	// method may be called on every evaluation, so it should be fast.
	Initialized() bool
}

// InMemoryFeatureStore is the default in-memory FeatureStore implementation,
// backed by a map protected with a reader/writer lock. Readers receive the
// stored item itself; since writers always replace items rather than mutating
// them, an item obtained from Get remains valid after any number of
// subsequent writes.
type InMemoryFeatureStore struct {
	allData       map[VersionedDataKind]map[string]VersionedData
	isInitialized bool
	loggers       ldlog.Loggers
	lock          sync.RWMutex
}

// NewInMemoryFeatureStore creates a new in-memory FeatureStore instance.
func NewInMemoryFeatureStore(loggers ldlog.Loggers) *InMemoryFeatureStore {
	return &InMemoryFeatureStore{
		allData:       make(map[VersionedDataKind]map[string]VersionedData),
		isInitialized: false,
		loggers:       loggers,
	}
}

// Get returns an individual object of a given kind from the store.
func (store *InMemoryFeatureStore) Get(kind VersionedDataKind, key string) (VersionedData, error) {
	store.lock.RLock()
	defer store.lock.RUnlock()
	item := store.allData[kind][key]

	if item == nil {
		store.loggers.Debugf(`Key %s not found in "%s"`, key, kind.GetNamespace())
		return nil, nil
	}
	if item.IsDeleted() {
		store.loggers.Debugf(`Attempted to get deleted item with key %s in "%s"`, key, kind.GetNamespace())
		return nil, nil
	}
	return item, nil
}

// All returns all the objects of a given kind from the store.
func (store *InMemoryFeatureStore) All(kind VersionedDataKind) (map[string]VersionedData, error) {
	store.lock.RLock()
	defer store.lock.RUnlock()
	ret := make(map[string]VersionedData)

	for k, v := range store.allData[kind] {
		if !v.IsDeleted() {
			ret[k] = v
		}
	}
	return ret, nil
}

// Delete removes an item of a given kind from the store, by installing a
// tombstone that blocks older upserts.
func (store *InMemoryFeatureStore) Delete(kind VersionedDataKind, key string, version int) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	if store.allData[kind] == nil {
		store.allData[kind] = make(map[string]VersionedData)
	}
	items := store.allData[kind]
	old := items[key]
	if old == nil || old.GetVersion() < version {
		items[key] = kind.MakeDeletedItem(key, version)
	}
	return nil
}

// Init populates the store with a complete set of versioned data, replacing
// any existing data.
func (store *InMemoryFeatureStore) Init(allData map[VersionedDataKind]map[string]VersionedData) error {
	store.lock.Lock()
	defer store.lock.Unlock()

	store.allData = make(map[VersionedDataKind]map[string]VersionedData)

	for kind, items := range allData {
		itemsCopy := make(map[string]VersionedData, len(items))
		for k, v := range items {
			itemsCopy[k] = v
		}
		store.allData[kind] = itemsCopy
	}

	store.isInitialized = true
	return nil
}

// Upsert inserts or replaces an item in the store, unless the store already
// contains an item with the same key and an equal or larger version.
func (store *InMemoryFeatureStore) Upsert(kind VersionedDataKind, item VersionedData) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	if store.allData[kind] == nil {
		store.allData[kind] = make(map[string]VersionedData)
	}
	items := store.allData[kind]
	old := items[item.GetKey()]

	if old == nil || old.GetVersion() < item.GetVersion() {
		items[item.GetKey()] = item
	}
	return nil
}

// Initialized returns whether the store has been initialized with data.
func (store *InMemoryFeatureStore) Initialized() bool {
	store.lock.RLock()
	defer store.lock.RUnlock()
	return store.isInitialized
}

// FeatureStoreHelper is a helper that provides caching behavior for custom
// FeatureStore implementations, such as database integrations, using an
// in-memory cache with a TTL. If cacheTTL is zero the helper methods simply
// delegate to the underlying store functions.
type FeatureStoreHelper struct {
	cache    *cache.Cache
	cacheTTL time.Duration
}

// NewFeatureStoreHelper creates an instance of FeatureStoreHelper with the
// specified cache TTL.
func NewFeatureStoreHelper(cacheTTL time.Duration) *FeatureStoreHelper {
	ret := FeatureStoreHelper{cacheTTL: cacheTTL}
	if cacheTTL > 0 {
		ret.cache = cache.New(cacheTTL, 5*time.Minute)
	}
	return &ret
}

func featureStoreCacheKey(kind VersionedDataKind, key string) string {
	return kind.GetNamespace() + ":" + key
}

func featureStoreAllItemsCacheKey(kind VersionedDataKind) string {
	return "all:" + kind.GetNamespace()
}

// Init performs an update of the entire data store, with optional caching.
// The uncachedInit function updates the underlying data.
func (fsh *FeatureStoreHelper) Init(allData map[VersionedDataKind]map[string]VersionedData,
	uncachedInit func(map[VersionedDataKind]map[string]VersionedData) error) error {
	if fsh.cache == nil {
		return uncachedInit(allData)
	}
	fsh.cache.Flush()
	if err := uncachedInit(allData); err != nil {
		return err
	}
	for kind, items := range allData {
		fsh.putAllItemsInCache(kind, items)
	}
	return nil
}

func (fsh *FeatureStoreHelper) putAllItemsInCache(kind VersionedDataKind, items map[string]VersionedData) {
	if fsh.cache == nil {
		return
	}
	// Deleted items are filtered out of the full data set used by All, but
	// are still cached individually so that Get can cache their absence.
	filteredItems := make(map[string]VersionedData, len(items))
	for key, item := range items {
		fsh.cache.Set(featureStoreCacheKey(kind, key), item, fsh.cacheTTL)
		if !item.IsDeleted() {
			filteredItems[key] = item
		}
	}
	fsh.cache.Set(featureStoreAllItemsCacheKey(kind), filteredItems, fsh.cacheTTL)
}

// Get retrieves a single item by key, with optional caching. The uncachedGet
// function attempts to retrieve the item from the underlying store.
func (fsh *FeatureStoreHelper) Get(kind VersionedDataKind, key string,
	uncachedGet func(VersionedDataKind, string) (VersionedData, error)) (VersionedData, error) {
	if fsh.cache == nil {
		item, err := uncachedGet(kind, key)
		return itemOnlyIfNotDeleted(item), err
	}
	cacheKey := featureStoreCacheKey(kind, key)
	if data, present := fsh.cache.Get(cacheKey); present {
		if data == nil { // A nil cached value means the absence of an item is cached
			return nil, nil
		}
		if item, ok := data.(VersionedData); ok {
			return itemOnlyIfNotDeleted(item), nil
		}
	}
	item, err := uncachedGet(kind, key)
	if err == nil {
		fsh.cache.Set(cacheKey, item, fsh.cacheTTL)
	}
	return itemOnlyIfNotDeleted(item), err
}

func itemOnlyIfNotDeleted(item VersionedData) VersionedData {
	if item != nil && item.IsDeleted() {
		return nil
	}
	return item
}

// All retrieves all items of the specified kind, with optional caching. The
// uncachedAll function retrieves the items from the underlying store.
func (fsh *FeatureStoreHelper) All(kind VersionedDataKind,
	uncachedAll func(VersionedDataKind) (map[string]VersionedData, error)) (map[string]VersionedData, error) {
	if fsh.cache == nil {
		return uncachedAll(kind)
	}
	cacheKey := featureStoreAllItemsCacheKey(kind)
	if data, present := fsh.cache.Get(cacheKey); present {
		if items, ok := data.(map[string]VersionedData); ok {
			return items, nil
		}
	}
	items, err := uncachedAll(kind)
	if err == nil {
		fsh.putAllItemsInCache(kind, items)
	}
	return items, err
}

// Upsert updates or adds an item, with optional caching. The uncachedUpsert
// function performs the upsert on the underlying store.
func (fsh *FeatureStoreHelper) Upsert(kind VersionedDataKind, item VersionedData,
	uncachedUpsert func(VersionedDataKind, VersionedData) error) error {
	if fsh.cache == nil {
		return uncachedUpsert(kind, item)
	}
	err := uncachedUpsert(kind, item)
	if err == nil {
		fsh.cache.Set(featureStoreCacheKey(kind, item.GetKey()), item, fsh.cacheTTL)
		fsh.cache.Delete(featureStoreAllItemsCacheKey(kind))
	}
	return err
}

// Delete deletes an item, with optional caching. Deletion is implemented by
// upserting a tombstone through the uncachedUpsert function.
func (fsh *FeatureStoreHelper) Delete(kind VersionedDataKind, key string, version int,
	uncachedUpsert func(VersionedDataKind, VersionedData) error) error {
	deletedItem := kind.MakeDeletedItem(key, version)
	return fsh.Upsert(kind, deletedItem, uncachedUpsert)
}
