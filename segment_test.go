package ldclient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

func TestExplicitIncludeUser(t *testing.T) {
	segment := Segment{
		Key:      "test",
		Included: []string{"foo"},
		Salt:     "abcdef",
		Version:  1,
	}
	user := NewUser("foo")
	assert.True(t, segment.containsUser(&user))
}

func TestExplicitExcludeUser(t *testing.T) {
	segment := Segment{
		Key:      "test",
		Excluded: []string{"foo"},
		Salt:     "abcdef",
		Version:  1,
	}
	user := NewUser("foo")
	assert.False(t, segment.containsUser(&user))
}

func TestExplicitIncludeHasPrecedence(t *testing.T) {
	segment := Segment{
		Key:      "test",
		Included: []string{"foo"},
		Excluded: []string{"foo"},
		Salt:     "abcdef",
		Version:  1,
	}
	user := NewUser("foo")
	assert.True(t, segment.containsUser(&user))
}

func TestMatchingRuleWithFullRollout(t *testing.T) {
	wholeSegmentWeight := 100000
	segment := Segment{
		Key: "test",
		Rules: []SegmentRule{
			{
				Clauses: []Clause{
					{Attribute: "email", Op: OperatorIn, Values: []ldvalue.Value{ldvalue.String("test@example.com")}},
				},
				Weight: &wholeSegmentWeight,
			},
		},
		Salt:    "abcdef",
		Version: 1,
	}
	user := NewUserBuilder("foo").Email("test@example.com").Build()
	assert.True(t, segment.containsUser(&user))
}

func TestMatchingRuleWithZeroRollout(t *testing.T) {
	zeroWeight := 0
	segment := Segment{
		Key: "test",
		Rules: []SegmentRule{
			{
				Clauses: []Clause{
					{Attribute: "email", Op: OperatorIn, Values: []ldvalue.Value{ldvalue.String("test@example.com")}},
				},
				Weight: &zeroWeight,
			},
		},
		Salt:    "abcdef",
		Version: 1,
	}
	user := NewUserBuilder("foo").Email("test@example.com").Build()
	assert.False(t, segment.containsUser(&user))
}

func TestMatchingRuleWithMultipleClauses(t *testing.T) {
	segment := Segment{
		Key: "test",
		Rules: []SegmentRule{
			{
				Clauses: []Clause{
					{Attribute: "email", Op: OperatorIn, Values: []ldvalue.Value{ldvalue.String("test@example.com")}},
					{Attribute: "name", Op: OperatorIn, Values: []ldvalue.Value{ldvalue.String("bob")}},
				},
			},
		},
		Salt:    "abcdef",
		Version: 1,
	}
	user := NewUserBuilder("foo").Email("test@example.com").Name("bob").Build()
	assert.True(t, segment.containsUser(&user))
}

func TestNonMatchingRuleWithMultipleClauses(t *testing.T) {
	segment := Segment{
		Key: "test",
		Rules: []SegmentRule{
			{
				Clauses: []Clause{
					{Attribute: "email", Op: OperatorIn, Values: []ldvalue.Value{ldvalue.String("test@example.com")}},
					{Attribute: "name", Op: OperatorIn, Values: []ldvalue.Value{ldvalue.String("bill")}},
				},
			},
		},
		Salt:    "abcdef",
		Version: 1,
	}
	user := NewUserBuilder("foo").Email("test@example.com").Name("bob").Build()
	assert.False(t, segment.containsUser(&user))
}

func TestRuleWithNoWeightMatchesUnconditionally(t *testing.T) {
	segment := Segment{
		Key: "test",
		Rules: []SegmentRule{
			{
				Clauses: []Clause{
					{Attribute: "key", Op: OperatorIn, Values: []ldvalue.Value{ldvalue.String("foo")}},
				},
			},
		},
		Salt:    "abcdef",
		Version: 1,
	}
	user := NewUser("foo")
	assert.True(t, segment.containsUser(&user))
}
