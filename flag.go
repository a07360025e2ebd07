package ldclient

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is used only for deterministic bucketing, not cryptography
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

const (
	longScale = float32(0xFFFFFFFFFFFFFFF)

	// Prerequisite chains deeper than this are treated as malformed flag data.
	// Legitimate flag configurations never come close to this depth; hitting
	// it means there is a cycle.
	maxPrerequisiteDepth = 20
)

var errMalformedFlag = errors.New("malformed flag data")

// FeatureFlag describes an individual feature flag.
type FeatureFlag struct {
	// Key is the unique string key of the feature flag.
	Key string `json:"key"`
	// Version is an integer that is incremented by LaunchDarkly every time
	// the configuration of the flag is changed.
	Version int `json:"version"`
	// On is true if targeting is turned on for this flag.
	On bool `json:"on"`
	// Prerequisites is a list of feature flag conditions that must be
	// satisfied before this flag can return its normal value.
	Prerequisites []Prerequisite `json:"prerequisites,omitempty"`
	// Salt is used in computing the bucket for percentage rollouts.
	Salt string `json:"salt"`
	// Targets contains sets of individually targeted user keys.
	Targets []Target `json:"targets,omitempty"`
	// Rules is a list of rules that may match a user ahead of the fallthrough.
	Rules []Rule `json:"rules,omitempty"`
	// Fallthrough defines the result if the flag is on and the user matched
	// no targets or rules.
	Fallthrough VariationOrRollout `json:"fallthrough"`
	// OffVariation is the index of the variation to serve when the flag is
	// off, or when a prerequisite fails. If nil, the caller's default value
	// is served instead.
	OffVariation *int `json:"offVariation,omitempty"`
	// Variations is the list of all possible values the flag can produce.
	Variations []ldvalue.Value `json:"variations"`
	// ClientSide is true if the flag is available to client-side SDKs.
	ClientSide bool `json:"clientSide,omitempty"`
	// TrackEvents is true if a full analytics event should be generated for
	// every evaluation of this flag.
	TrackEvents bool `json:"trackEvents,omitempty"`
	// DebugEventsUntilDate, if set, causes full analytics events to be
	// generated in debug mode until the given epoch millisecond time.
	DebugEventsUntilDate *uint64 `json:"debugEventsUntilDate,omitempty"`
	// Deleted is true if this is a tombstone for a deleted flag.
	Deleted bool `json:"deleted,omitempty"`
}

// Rule expresses a set of AND-ed matching conditions for a user, along with
// either a fixed variation or a percentage rollout to serve if the conditions
// match.
type Rule struct {
	// ID is a unique identifier for the rule within the flag.
	ID string `json:"id,omitempty"`
	// Clauses are the conditions, all of which must match.
	Clauses []Clause `json:"clauses"`
	// VariationOrRollout determines the result if the rule matches.
	VariationOrRollout
	// TrackEvents is true if a full analytics event should be generated for
	// every evaluation that matches this rule.
	TrackEvents bool `json:"trackEvents,omitempty"`
}

// Clause describes an individual condition within a rule: a user attribute, an
// operator, and a list of values to test against.
type Clause struct {
	// Attribute is the name of the user attribute to test.
	Attribute string `json:"attribute"`
	// Op is the name of the matching operator.
	Op Operator `json:"op"`
	// Values is a list of values to match against, interpreted as an OR.
	Values []ldvalue.Value `json:"values"`
	// Negate, if true, inverts the result of the match.
	Negate bool `json:"negate,omitempty"`
}

// VariationOrRollout desribes either a fixed variation index or a percentage
// rollout. Exactly one of the two fields is set; if both are nil the flag data
// is malformed.
type VariationOrRollout struct {
	// Variation is a fixed index into the flag's Variations list.
	Variation *int `json:"variation,omitempty"`
	// Rollout is a percentage rollout over the flag's variations.
	Rollout *Rollout `json:"rollout,omitempty"`
}

// RolloutKind describes whether a rollout is a plain percentage rollout or an
// experiment.
type RolloutKind string

const (
	// RolloutKindRollout is the default kind of rollout.
	RolloutKindRollout RolloutKind = "rollout"
	// RolloutKindExperiment is a rollout whose assigned users are tracked
	// explicitly for analytics.
	RolloutKindExperiment RolloutKind = "experiment"
)

// Rollout describes a percentage rollout: a partition of users across
// variations, determined by deterministic bucketing.
type Rollout struct {
	// Kind distinguishes plain rollouts from experiments.
	Kind RolloutKind `json:"kind,omitempty"`
	// Variations is the list of weighted buckets. The weights should total
	// 100000; any shortfall is absorbed by the last bucket.
	Variations []WeightedVariation `json:"variations"`
	// BucketBy is the name of the user attribute to bucket by; it defaults
	// to "key".
	BucketBy *string `json:"bucketBy,omitempty"`
	// Seed, if present, replaces the flag key and salt in the bucketing hash
	// input, so that experiments can be re-randomized independently of the
	// flag configuration.
	Seed *int64 `json:"seed,omitempty"`
}

// WeightedVariation describes one bucket of a percentage rollout.
type WeightedVariation struct {
	// Variation is the index of the variation served by this bucket.
	Variation int `json:"variation"`
	// Weight is the portion of users in this bucket, out of 100000.
	Weight int `json:"weight"`
	// Untracked, if true, excludes users in this bucket from experiment
	// analytics.
	Untracked bool `json:"untracked,omitempty"`
}

// Target describes a set of user keys that are individually targeted to
// receive a specific variation.
type Target struct {
	// Values is the list of targeted user keys.
	Values []string `json:"values"`
	// Variation is the index of the variation served to those users.
	Variation int `json:"variation"`
}

// Prerequisite describes a requirement that another feature flag must be on
// and returning a specific variation.
type Prerequisite struct {
	// Key is the key of the prerequisite flag.
	Key string `json:"key"`
	// Variation is the index of the variation the prerequisite flag must
	// return.
	Variation int `json:"variation"`
}

// GetKey returns the flag's key, implementing VersionedData.
func (f *FeatureFlag) GetKey() string {
	return f.Key
}

// GetVersion returns the flag's version, implementing VersionedData.
func (f *FeatureFlag) GetVersion() int {
	return f.Version
}

// IsDeleted returns whether the flag is a deletion tombstone, implementing
// VersionedData.
func (f *FeatureFlag) IsDeleted() bool {
	return f.Deleted
}

// EvaluateDetail evaluates the flag for the given user. It returns the
// evaluation result, and the feature request events that were generated by
// any prerequisite evaluations (in evaluation order, so a prerequisite's
// event always precedes the dependent flag's own event, which is the
// responsibility of the caller).
//
// Evaluation reads only from the given store; it performs no I/O of its own.
// Malformed flag data and store failures are reported as an ERROR reason in
// the result, never as a panic.
func (f *FeatureFlag) EvaluateDetail(
	user User,
	store FeatureStore,
	sendReasonsInEvents bool,
) (EvaluationDetail, []FeatureRequestEvent) {
	if user.GetKey() == "" {
		return newEvaluationError(ldvalue.Null(), EvalErrorUserNotSpecified), nil
	}
	es := evalScope{store: store, sendReasons: sendReasonsInEvents}
	detail, err := es.evaluate(f, &user, 0)
	if err != nil {
		errorKind := EvalErrorMalformedFlag
		if err != errMalformedFlag {
			errorKind = EvalErrorStoreError
		}
		detail = newEvaluationError(ldvalue.Null(), errorKind)
	}
	return detail, es.prereqEvents
}

// evalScope carries the state for one top-level evaluation, including all
// prerequisite events accumulated along the way.
type evalScope struct {
	store        FeatureStore
	prereqEvents []FeatureRequestEvent
	sendReasons  bool
}

func (es *evalScope) evaluate(f *FeatureFlag, user *User, depth int) (EvaluationDetail, error) {
	if depth > maxPrerequisiteDepth {
		return EvaluationDetail{}, errMalformedFlag
	}

	if !f.On {
		return f.getOffValue(newEvalReasonOff())
	}

	if failedPrereq, err := es.checkPrerequisites(f, user, depth); err != nil {
		return EvaluationDetail{}, err
	} else if failedPrereq != "" {
		return f.getOffValue(newEvalReasonPrerequisiteFailed(failedPrereq))
	}

	key := user.GetKey()

	for _, target := range f.Targets {
		for _, value := range target.Values {
			if value == key {
				return f.getVariation(target.Variation, newEvalReasonTargetMatch())
			}
		}
	}

	for ruleIndex, rule := range f.Rules {
		r := rule
		matched, err := es.ruleMatchesUser(&r, user)
		if err != nil {
			return EvaluationDetail{}, err
		}
		if matched {
			index, inExperiment, err := f.variationIndexForUser(rule.VariationOrRollout, user)
			if err != nil {
				return EvaluationDetail{}, err
			}
			return f.getVariation(index, newEvalReasonRuleMatch(ruleIndex, rule.ID, inExperiment))
		}
	}

	index, inExperiment, err := f.variationIndexForUser(f.Fallthrough, user)
	if err != nil {
		return EvaluationDetail{}, err
	}
	return f.getVariation(index, newEvalReasonFallthrough(inExperiment))
}

// checkPrerequisites returns the key of the first failed prerequisite, or an
// empty string if all prerequisites passed. Each prerequisite is fully
// evaluated to generate its event, even if the prerequisite flag is off.
func (es *evalScope) checkPrerequisites(f *FeatureFlag, user *User, depth int) (string, error) {
	for _, prereq := range f.Prerequisites {
		data, err := es.store.Get(Features, prereq.Key)
		if err != nil {
			return "", err
		}
		prereqFlag, _ := data.(*FeatureFlag)
		if prereqFlag == nil {
			return prereq.Key, nil
		}

		prereqResult, err := es.evaluate(prereqFlag, user, depth+1)
		if err != nil {
			return "", err
		}

		event := newSuccessfulEvalEvent(prereqFlag, *user, prereqResult.VariationIndex,
			prereqResult.Value, ldvalue.Null(), prereqResult.Reason, es.sendReasons, &f.Key)
		es.prereqEvents = append(es.prereqEvents, event)

		// The prerequisite is satisfied only if its flag is on and it
		// produced exactly the required variation; an off prerequisite never
		// matches regardless of its off variation.
		if !prereqFlag.On || prereqResult.IsDefaultValue() ||
			*prereqResult.VariationIndex != prereq.Variation {
			return prereq.Key, nil
		}
	}
	return "", nil
}

func (f *FeatureFlag) getVariation(index int, reason EvaluationReason) (EvaluationDetail, error) {
	if index < 0 || index >= len(f.Variations) {
		return EvaluationDetail{}, errMalformedFlag
	}
	i := index
	return EvaluationDetail{
		Value:          f.Variations[index],
		VariationIndex: &i,
		Reason:         reason,
	}, nil
}

func (f *FeatureFlag) getOffValue(reason EvaluationReason) (EvaluationDetail, error) {
	if f.OffVariation == nil {
		return EvaluationDetail{Value: ldvalue.Null(), Reason: reason}, nil
	}
	return f.getVariation(*f.OffVariation, reason)
}

func (es *evalScope) ruleMatchesUser(rule *Rule, user *User) (bool, error) {
	for _, clause := range rule.Clauses {
		c := clause
		matched, err := es.clauseMatchesUser(&c, user)
		if err != nil || !matched {
			return false, err
		}
	}
	return true, nil
}

func (es *evalScope) clauseMatchesUser(clause *Clause, user *User) (bool, error) {
	// A segmentMatch clause tests whether the user is in any of the named
	// segments; the clause's operator machinery is not used.
	if clause.Op == OperatorSegmentMatch {
		for _, value := range clause.Values {
			if value.Type() != ldvalue.StringType {
				continue
			}
			data, err := es.store.Get(Segments, value.StringValue())
			if err != nil {
				return false, err
			}
			// A segment that is not in the store is skipped, never an error.
			if segment, ok := data.(*Segment); ok && segment != nil {
				if segment.containsUser(user) {
					return maybeNegate(clause, true), nil
				}
			}
		}
		return maybeNegate(clause, false), nil
	}
	return clauseMatchesUserNoSegments(clause, user)
}

func clauseMatchesUserNoSegments(clause *Clause, user *User) (bool, error) {
	uValue := user.valueOf(clause.Attribute)
	if uValue.IsNull() {
		return false, nil
	}
	matchFn := operatorFn(clause.Op)

	// If the user value is an array, the clause matches if any element of the
	// array matches any clause value. Elements must be scalars.
	if uValue.Type() == ldvalue.ArrayType {
		for i := 0; i < uValue.Count(); i++ {
			element := uValue.GetByIndex(i)
			if element.Type() == ldvalue.ArrayType || element.Type() == ldvalue.ObjectType {
				return false, errMalformedFlag
			}
			if matchAny(matchFn, element, clause.Values) {
				return maybeNegate(clause, true), nil
			}
		}
		return maybeNegate(clause, false), nil
	}

	return maybeNegate(clause, matchAny(matchFn, uValue, clause.Values)), nil
}

func maybeNegate(clause *Clause, b bool) bool {
	if clause.Negate {
		return !b
	}
	return b
}

func matchAny(fn opFn, value ldvalue.Value, values []ldvalue.Value) bool {
	for _, v := range values {
		if fn(value, v) {
			return true
		}
	}
	return false
}

// variationIndexForUser resolves a VariationOrRollout to a variation index.
// The second return value is true if the result was determined by an
// experiment rollout and the selected bucket is tracked.
func (f *FeatureFlag) variationIndexForUser(vr VariationOrRollout, user *User) (int, bool, error) {
	if vr.Variation != nil {
		return *vr.Variation, false, nil
	}
	if vr.Rollout == nil || len(vr.Rollout.Variations) == 0 {
		return 0, false, errMalformedFlag
	}

	inExperiment := vr.Rollout.Kind == RolloutKindExperiment

	bucketBy := "key"
	if vr.Rollout.BucketBy != nil {
		bucketBy = *vr.Rollout.BucketBy
	}

	bucket, _ := bucketUser(user, f.Key, bucketBy, f.Salt, vr.Rollout.Seed)
	var sum float32

	var wv WeightedVariation
	for _, wv = range vr.Rollout.Variations {
		sum += float32(wv.Weight) / 100000.0
		if bucket < sum {
			return wv.Variation, inExperiment && !wv.Untracked, nil
		}
	}

	// The user's bucket value was beyond the end of the last bucket. This can
	// happen due to a rounding error, or weights that do not add up to
	// 100000; such users belong to the last bucket.
	return wv.Variation, inExperiment && !wv.Untracked, nil
}

// bucketUser computes the deterministic bucket value, in the range [0, 1),
// for a user given a flag or segment key, a bucketing attribute, and a salt.
// If seed is non-nil it replaces the key and salt in the hash input. The
// second return value is false if the user has no bucketable value for the
// attribute, in which case the bucket is zero and the user does not fall into
// any bucket with a nonzero lower bound.
//
// The hash input framing and the divisor are a cross-SDK contract: for
// identical inputs, every SDK implementation produces the same bucket value.
func bucketUser(user *User, key, attr, salt string, seed *int64) (float32, bool) {
	uValue := user.valueOf(attr)

	var idHash string
	switch uValue.Type() {
	case ldvalue.StringType:
		idHash = uValue.StringValue()
	case ldvalue.NumberType:
		idHash = fmt.Sprintf("%f", uValue.Float64Value())
	default:
		return 0, false
	}

	if user.Secondary != nil {
		idHash = idHash + "." + *user.Secondary
	}

	var input string
	if seed != nil {
		input = fmt.Sprintf("%d.%s", *seed, idHash)
	} else {
		input = key + "." + salt + "." + idHash
	}

	h := sha1.New() //nolint:gosec
	_, _ = io.WriteString(h, input)
	hash := hex.EncodeToString(h.Sum(nil))[:15]

	intVal, _ := strconv.ParseInt(hash, 16, 64)

	return float32(intVal) / longScale, true
}

// IsExperimentationEnabled returns true if, based on the given evaluation
// reason, an evaluation of this flag must generate a full analytics event
// regardless of the flag-level TrackEvents setting.
func (f *FeatureFlag) IsExperimentationEnabled(reason EvaluationReason) bool {
	if reason.InExperiment {
		return true
	}
	switch reason.Kind {
	case EvalReasonRuleMatch:
		if reason.RuleIndex != nil && *reason.RuleIndex >= 0 && *reason.RuleIndex < len(f.Rules) {
			return f.Rules[*reason.RuleIndex].TrackEvents
		}
	}
	return false
}
