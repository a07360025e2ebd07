package ldclient

import (
	"regexp"
	"strings"
	"time"

	"github.com/blang/semver"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

// Operator describes an operator for a rule clause.
type Operator string

// List of available operators.
const (
	// OperatorIn matches if the user value and the clause value are equal,
	// including their type.
	OperatorIn Operator = "in"
	// OperatorEndsWith matches if both values are strings and the former
	// ends with the latter.
	OperatorEndsWith Operator = "endsWith"
	// OperatorStartsWith matches if both values are strings and the former
	// starts with the latter.
	OperatorStartsWith Operator = "startsWith"
	// OperatorMatches matches if both values are strings and the latter is a
	// valid regular expression that matches the former.
	OperatorMatches Operator = "matches"
	// OperatorContains matches if both values are strings and the former
	// contains the latter.
	OperatorContains Operator = "contains"
	// OperatorLessThan matches if both values are numbers and the former <
	// the latter.
	OperatorLessThan Operator = "lessThan"
	// OperatorLessThanOrEqual matches if both values are numbers and the
	// former <= the latter.
	OperatorLessThanOrEqual Operator = "lessThanOrEqual"
	// OperatorGreaterThan matches if both values are numbers and the former
	// > the latter.
	OperatorGreaterThan Operator = "greaterThan"
	// OperatorGreaterThanOrEqual matches if both values are numbers and the
	// former >= the latter.
	OperatorGreaterThanOrEqual Operator = "greaterThanOrEqual"
	// OperatorBefore matches if both values are timestamps and the former <
	// the latter. A timestamp is either a string in RFC3339 format or a
	// number of epoch milliseconds.
	OperatorBefore Operator = "before"
	// OperatorAfter matches if both values are timestamps and the former >
	// the latter.
	OperatorAfter Operator = "after"
	// OperatorSegmentMatch matches if the user is included in the user
	// segment whose key is the clause value. It is dispatched by the
	// evaluator, not by the operator registry.
	OperatorSegmentMatch Operator = "segmentMatch"
	// OperatorSemVerEqual matches if both values are semantic versions and
	// they are equal. Versions may be abbreviated, e.g. "2" or "2.1".
	OperatorSemVerEqual Operator = "semVerEqual"
	// OperatorSemVerLessThan matches if both values are semantic versions
	// and the former < the latter.
	OperatorSemVerLessThan Operator = "semVerLessThan"
	// OperatorSemVerGreaterThan matches if both values are semantic versions
	// and the former > the latter.
	OperatorSemVerGreaterThan Operator = "semVerGreaterThan"
)

type opFn (func(ldvalue.Value, ldvalue.Value) bool)

var versionNumericComponentsRegex = regexp.MustCompile(`^\d+(\.\d+)?(\.\d+)?`)

var allOps = map[Operator]opFn{
	OperatorIn:                 operatorInFn,
	OperatorEndsWith:           operatorEndsWithFn,
	OperatorStartsWith:         operatorStartsWithFn,
	OperatorMatches:            operatorMatchesFn,
	OperatorContains:           operatorContainsFn,
	OperatorLessThan:           operatorLessThanFn,
	OperatorLessThanOrEqual:    operatorLessThanOrEqualFn,
	OperatorGreaterThan:        operatorGreaterThanFn,
	OperatorGreaterThanOrEqual: operatorGreaterThanOrEqualFn,
	OperatorBefore:             operatorBeforeFn,
	OperatorAfter:              operatorAfterFn,
	OperatorSemVerEqual:        operatorSemVerEqualFn,
	OperatorSemVerLessThan:     operatorSemVerLessThanFn,
	OperatorSemVerGreaterThan:  operatorSemVerGreaterThanFn,
}

// operatorFn returns the match function for an operator name. An unknown
// operator never matches; it is not an error.
func operatorFn(operator Operator) opFn {
	if op, ok := allOps[operator]; ok {
		return op
	}
	return operatorNoneFn
}

func operatorInFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return uValue.Equal(cValue)
}

func stringOperator(uValue ldvalue.Value, cValue ldvalue.Value, fn func(string, string) bool) bool {
	if uValue.IsString() && cValue.IsString() {
		return fn(uValue.StringValue(), cValue.StringValue())
	}
	return false
}

func operatorStartsWithFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return stringOperator(uValue, cValue, strings.HasPrefix)
}

func operatorEndsWithFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return stringOperator(uValue, cValue, strings.HasSuffix)
}

func operatorMatchesFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return stringOperator(uValue, cValue, func(u string, c string) bool {
		if matched, err := regexp.MatchString(c, u); err == nil {
			return matched
		}
		return false
	})
}

func operatorContainsFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return stringOperator(uValue, cValue, strings.Contains)
}

func numericOperator(uValue ldvalue.Value, cValue ldvalue.Value, fn func(float64, float64) bool) bool {
	if uValue.IsNumber() && cValue.IsNumber() {
		return fn(uValue.Float64Value(), cValue.Float64Value())
	}
	return false
}

func operatorLessThanFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return numericOperator(uValue, cValue, func(u float64, c float64) bool { return u < c })
}

func operatorLessThanOrEqualFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return numericOperator(uValue, cValue, func(u float64, c float64) bool { return u <= c })
}

func operatorGreaterThanFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return numericOperator(uValue, cValue, func(u float64, c float64) bool { return u > c })
}

func operatorGreaterThanOrEqualFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return numericOperator(uValue, cValue, func(u float64, c float64) bool { return u >= c })
}

func dateOperator(uValue ldvalue.Value, cValue ldvalue.Value, fn func(time.Time, time.Time) bool) bool {
	if uTime, ok := parseDateTime(uValue); ok {
		if cTime, ok := parseDateTime(cValue); ok {
			return fn(uTime, cTime)
		}
	}
	return false
}

func operatorBeforeFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return dateOperator(uValue, cValue, time.Time.Before)
}

func operatorAfterFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return dateOperator(uValue, cValue, time.Time.After)
}

func semVerOperator(uValue ldvalue.Value, cValue ldvalue.Value, fn func(semver.Version, semver.Version) bool) bool {
	if u, ok := parseSemVer(uValue); ok {
		if c, ok := parseSemVer(cValue); ok {
			return fn(u, c)
		}
	}
	return false
}

func operatorSemVerEqualFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return semVerOperator(uValue, cValue, semver.Version.Equals)
}

func operatorSemVerLessThanFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return semVerOperator(uValue, cValue, semver.Version.LT)
}

func operatorSemVerGreaterThanFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return semVerOperator(uValue, cValue, semver.Version.GT)
}

func operatorNoneFn(uValue ldvalue.Value, cValue ldvalue.Value) bool {
	return false
}

func parseDateTime(value ldvalue.Value) (time.Time, bool) {
	switch value.Type() {
	case ldvalue.StringType:
		t, err := time.Parse(time.RFC3339Nano, value.StringValue())
		if err == nil {
			return t.UTC(), true
		}
	case ldvalue.NumberType:
		return unixMillisToUtcTime(value.Float64Value()), true
	}
	return time.Time{}, false
}

// parseSemVer parses a semantic version string, accepting abbreviated forms
// such as "2" (equivalent to 2.0.0) and "2.1" (equivalent to 2.1.0).
func parseSemVer(value ldvalue.Value) (semver.Version, bool) {
	if !value.IsString() {
		return semver.Version{}, false
	}
	versionStr := value.StringValue()
	if sv, err := semver.Parse(versionStr); err == nil {
		return sv, true
	}
	// Failed to parse as-is; see if we can fix it by adding zeroes
	matchParts := versionNumericComponentsRegex.FindStringSubmatch(versionStr)
	if matchParts != nil {
		transformedVersionStr := matchParts[0]
		for i := 1; i < len(matchParts); i++ {
			if matchParts[i] == "" {
				transformedVersionStr += ".0"
			}
		}
		transformedVersionStr += versionStr[len(matchParts[0]):]
		if sv, err := semver.Parse(transformedVersionStr); err == nil {
			return sv, true
		}
	}
	return semver.Version{}, false
}
