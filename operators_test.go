package ldclient

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

type opTestInfo struct {
	opName      Operator
	userValue   ldvalue.Value
	clauseValue ldvalue.Value
	moreValues  []ldvalue.Value
	expected    bool
}

var operatorTests = []opTestInfo{
	// numeric comparisons
	{"in", ldvalue.Int(99), ldvalue.Int(99), nil, true},
	{"in", ldvalue.Float64(99.0001), ldvalue.Float64(99.0001), nil, true},
	{"in", ldvalue.Int(99), ldvalue.Int(99), []ldvalue.Value{ldvalue.Int(98), ldvalue.Int(97)}, true},
	{"lessThan", ldvalue.Int(1), ldvalue.Float64(1.99999), nil, true},
	{"lessThan", ldvalue.Float64(1.99999), ldvalue.Int(1), nil, false},
	{"lessThan", ldvalue.Int(1), ldvalue.Int(2), nil, true},
	{"lessThanOrEqual", ldvalue.Int(1), ldvalue.Int(1), nil, true},
	{"lessThanOrEqual", ldvalue.Int(2), ldvalue.Int(1), nil, false},
	{"greaterThan", ldvalue.Int(2), ldvalue.Float64(1.99999), nil, true},
	{"greaterThan", ldvalue.Float64(1.99999), ldvalue.Int(2), nil, false},
	{"greaterThanOrEqual", ldvalue.Int(1), ldvalue.Int(1), nil, true},
	{"greaterThanOrEqual", ldvalue.Int(1), ldvalue.Int(2), nil, false},

	// string comparisons
	{"in", ldvalue.String("x"), ldvalue.String("x"), nil, true},
	{"in", ldvalue.String("x"), ldvalue.String("xyz"), nil, false},
	{"in", ldvalue.String("x"), ldvalue.String("x"), []ldvalue.Value{ldvalue.String("a"), ldvalue.String("b")}, true},
	{"startsWith", ldvalue.String("xyz"), ldvalue.String("x"), nil, true},
	{"startsWith", ldvalue.String("x"), ldvalue.String("xyz"), nil, false},
	{"endsWith", ldvalue.String("xyz"), ldvalue.String("z"), nil, true},
	{"endsWith", ldvalue.String("z"), ldvalue.String("xyz"), nil, false},
	{"contains", ldvalue.String("xyz"), ldvalue.String("y"), nil, true},
	{"contains", ldvalue.String("y"), ldvalue.String("xyz"), nil, false},

	// mixed strings and numbers
	{"in", ldvalue.String("99"), ldvalue.Int(99), nil, false},
	{"in", ldvalue.Int(99), ldvalue.String("99"), nil, false},
	{"contains", ldvalue.String("99"), ldvalue.Int(99), nil, false},
	{"startsWith", ldvalue.String("99"), ldvalue.Int(99), nil, false},
	{"endsWith", ldvalue.String("99"), ldvalue.Int(99), nil, false},
	{"lessThanOrEqual", ldvalue.String("99"), ldvalue.Int(99), nil, false},
	{"greaterThanOrEqual", ldvalue.Int(99), ldvalue.String("99"), nil, false},

	// boolean values
	{"in", ldvalue.Bool(true), ldvalue.Bool(true), nil, true},
	{"in", ldvalue.Bool(false), ldvalue.Bool(false), nil, true},
	{"in", ldvalue.Bool(true), ldvalue.Bool(false), nil, false},

	// regex
	{"matches", ldvalue.String("hello world"), ldvalue.String("hello.*rld"), nil, true},
	{"matches", ldvalue.String("hello world"), ldvalue.String("hello.*orl"), nil, true},
	{"matches", ldvalue.String("hello world"), ldvalue.String("l+"), nil, true},
	{"matches", ldvalue.String("hello world"), ldvalue.String("(world|planet)"), nil, true},
	{"matches", ldvalue.String("hello world"), ldvalue.String("aloha"), nil, false},
	{"matches", ldvalue.String("hello world"), ldvalue.String("***not a regex"), nil, false},

	// date operators
	{"before", ldvalue.String("2017-12-06T00:00:00.000-07:00"), ldvalue.String("2017-12-06T00:01:01.000-07:00"), nil, true},
	{"before", ldvalue.Int(0), ldvalue.Int(1000), nil, true}, // numbers are epoch millis
	{"before", ldvalue.String("2017-12-06T00:01:01.000-07:00"), ldvalue.String("2017-12-06T00:00:00.000-07:00"), nil, false},
	{"before", ldvalue.String("hello"), ldvalue.String("2017-12-06T00:01:01.000-07:00"), nil, false},
	{"after", ldvalue.String("2017-12-06T00:01:01.000-07:00"), ldvalue.String("2017-12-06T00:00:00.000-07:00"), nil, true},
	{"after", ldvalue.Int(1000), ldvalue.Int(0), nil, true},
	{"after", ldvalue.String("2017-12-06T00:00:00.000-07:00"), ldvalue.String("2017-12-06T00:01:01.000-07:00"), nil, false},

	// semver operators
	{"semVerEqual", ldvalue.String("2.0.0"), ldvalue.String("2.0.0"), nil, true},
	{"semVerEqual", ldvalue.String("2.0"), ldvalue.String("2.0.0"), nil, true},
	{"semVerEqual", ldvalue.String("2"), ldvalue.String("2.0.0"), nil, true},
	{"semVerEqual", ldvalue.String("2.0.0"), ldvalue.String("2.0.1"), nil, false},
	{"semVerLessThan", ldvalue.String("2.0.0"), ldvalue.String("2.0.1"), nil, true},
	{"semVerLessThan", ldvalue.String("2.0"), ldvalue.String("2.0.1"), nil, true},
	{"semVerLessThan", ldvalue.String("2.0.1"), ldvalue.String("2.0.0"), nil, false},
	{"semVerLessThan", ldvalue.String("2.0.1"), ldvalue.String("2.0"), nil, false},
	{"semVerGreaterThan", ldvalue.String("2.0.1"), ldvalue.String("2.0.0"), nil, true},
	{"semVerGreaterThan", ldvalue.String("2.0.1"), ldvalue.String("2.0"), nil, true},
	{"semVerGreaterThan", ldvalue.String("2.0.0"), ldvalue.String("2.0.1"), nil, false},
	{"semVerGreaterThan", ldvalue.String("2.0"), ldvalue.String("2.0.1"), nil, false},
	{"semVerLessThan", ldvalue.String("2.0.1"), ldvalue.String("xbad%ver"), nil, false},
	{"semVerGreaterThan", ldvalue.String("2.0.1"), ldvalue.String("xbad%ver"), nil, false},

	// invalid operator
	{"whatever", ldvalue.String("x"), ldvalue.String("x"), nil, false},
}

func TestAllOperators(t *testing.T) {
	for _, ti := range operatorTests {
		t.Run(
			fmt.Sprintf("%v %s %v should be %v", ti.userValue, ti.opName, ti.clauseValue, ti.expected),
			func(t *testing.T) {
				fn := operatorFn(ti.opName)
				values := append([]ldvalue.Value{ti.clauseValue}, ti.moreValues...)
				assert.Equal(t, ti.expected, matchAny(fn, ti.userValue, values))
			})
	}
}

func TestParseSemVerAcceptsAbbreviatedVersions(t *testing.T) {
	v, ok := parseSemVer(ldvalue.String("2.1"))
	assert.True(t, ok)
	assert.Equal(t, uint64(2), v.Major)
	assert.Equal(t, uint64(1), v.Minor)
	assert.Equal(t, uint64(0), v.Patch)
}

func TestParseSemVerRejectsNonStrings(t *testing.T) {
	_, ok := parseSemVer(ldvalue.Int(2))
	assert.False(t, ok)
}
