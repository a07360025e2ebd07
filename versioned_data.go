package ldclient

// VersionedData is a common interface for string-keyed, versioned objects
// such as feature flags and segments.
type VersionedData interface {
	// GetKey returns the string key for this object.
	GetKey() string
	// GetVersion returns the version number for this object.
	GetVersion() int
	// IsDeleted returns whether this object is a deletion tombstone.
	IsDeleted() bool
}

// VersionedDataKind describes one kind of VersionedData object that may exist
// in a store.
type VersionedDataKind interface {
	// GetNamespace returns a short string that serves as the unique name for
	// the collection of these objects, e.g. "features".
	GetNamespace() string
	// GetDefaultItem returns a pointer to a newly created empty value of this
	// object type, for JSON unmarshalling.
	GetDefaultItem() interface{}
	// MakeDeletedItem returns a tombstone of this object type with the
	// specified key and version.
	MakeDeletedItem(key string, version int) VersionedData
}

// VersionedDataKinds is the list of supported VersionedDataKinds. Data stores
// may use this list to know what namespaces to expect.
var VersionedDataKinds = [...]VersionedDataKind{
	Features,
	Segments,
}

type featureFlagVersionedDataKind struct{}

func (fk featureFlagVersionedDataKind) GetNamespace() string {
	return "features"
}

func (fk featureFlagVersionedDataKind) String() string {
	return fk.GetNamespace()
}

func (fk featureFlagVersionedDataKind) GetDefaultItem() interface{} {
	return &FeatureFlag{}
}

func (fk featureFlagVersionedDataKind) MakeDeletedItem(key string, version int) VersionedData {
	return &FeatureFlag{Key: key, Version: version, Deleted: true}
}

// Features is the VersionedDataKind instance for feature flags.
var Features VersionedDataKind = featureFlagVersionedDataKind{}

type segmentVersionedDataKind struct{}

func (sk segmentVersionedDataKind) GetNamespace() string {
	return "segments"
}

func (sk segmentVersionedDataKind) String() string {
	return sk.GetNamespace()
}

func (sk segmentVersionedDataKind) GetDefaultItem() interface{} {
	return &Segment{}
}

func (sk segmentVersionedDataKind) MakeDeletedItem(key string, version int) VersionedData {
	return &Segment{Key: key, Version: version, Deleted: true}
}

// Segments is the VersionedDataKind instance for user segments.
var Segments VersionedDataKind = segmentVersionedDataKind{}
