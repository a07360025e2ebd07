package ldclient

// Segment describes a named cohort of users that can be referenced from flag
// rules with the segmentMatch operator.
type Segment struct {
	// Key is the unique key of the segment.
	Key string `json:"key"`
	// Included is the list of user keys that are always in the segment.
	Included []string `json:"included,omitempty"`
	// Excluded is the list of user keys that are never in the segment,
	// unless the key is also in Included.
	Excluded []string `json:"excluded,omitempty"`
	// Salt is used in computing the bucket for rules with a weight.
	Salt string `json:"salt"`
	// Rules is a list of rules that may match a user.
	Rules []SegmentRule `json:"rules,omitempty"`
	// Version is incremented every time the segment is changed.
	Version int `json:"version"`
	// Deleted is true if this is a tombstone for a deleted segment.
	Deleted bool `json:"deleted,omitempty"`
}

// SegmentRule describes a set of clauses that place matching users in a
// segment, optionally restricted to a percentage of those users.
type SegmentRule struct {
	// ID is a unique identifier for the rule within the segment.
	ID string `json:"id,omitempty"`
	// Clauses are the conditions, all of which must match.
	Clauses []Clause `json:"clauses"`
	// Weight, if set, limits the rule to a percentage of matching users, out
	// of 100000, selected by bucketing.
	Weight *int `json:"weight,omitempty"`
	// BucketBy is the name of the user attribute to bucket by; it defaults
	// to "key".
	BucketBy *string `json:"bucketBy,omitempty"`
}

// GetKey returns the segment's key, implementing VersionedData.
func (s *Segment) GetKey() string {
	return s.Key
}

// GetVersion returns the segment's version, implementing VersionedData.
func (s *Segment) GetVersion() int {
	return s.Version
}

// IsDeleted returns whether the segment is a deletion tombstone, implementing
// VersionedData.
func (s *Segment) IsDeleted() bool {
	return s.Deleted
}

// containsUser tests whether the user belongs to the segment: always true for
// keys in Included, always false for keys in Excluded, otherwise true if any
// segment rule matches.
func (s *Segment) containsUser(user *User) bool {
	key := user.GetKey()

	for _, included := range s.Included {
		if included == key {
			return true
		}
	}

	for _, excluded := range s.Excluded {
		if excluded == key {
			return false
		}
	}

	for _, rule := range s.Rules {
		r := rule
		if s.segmentRuleMatchesUser(&r, user) {
			return true
		}
	}

	return false
}

func (s *Segment) segmentRuleMatchesUser(rule *SegmentRule, user *User) bool {
	for _, clause := range rule.Clauses {
		c := clause
		// Segment rules cannot reference other segments, so only the
		// non-segment clause matching applies; malformed attribute arrays
		// simply do not match here.
		matched, err := clauseMatchesUserNoSegments(&c, user)
		if err != nil || !matched {
			return false
		}
	}

	// Rules with no weight match unconditionally once the clauses passed.
	if rule.Weight == nil {
		return true
	}

	bucketBy := "key"
	if rule.BucketBy != nil {
		bucketBy = *rule.BucketBy
	}

	bucket, _ := bucketUser(user, s.Key, bucketBy, s.Salt, nil)
	weight := float32(*rule.Weight) / 100000.0

	return bucket < weight
}
