package ldclient

import (
	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

// EvalReasonKind defines the possible values of the Kind property of
// EvaluationReason.
type EvalReasonKind string

const (
	// EvalReasonOff indicates that the flag was off and therefore returned
	// its configured off variation.
	EvalReasonOff EvalReasonKind = "OFF"
	// EvalReasonTargetMatch indicates that the user key was specifically
	// targeted for this flag.
	EvalReasonTargetMatch EvalReasonKind = "TARGET_MATCH"
	// EvalReasonRuleMatch indicates that the user matched one of the flag's
	// rules. The RuleIndex and RuleID properties will be set.
	EvalReasonRuleMatch EvalReasonKind = "RULE_MATCH"
	// EvalReasonPrerequisiteFailed indicates that the flag was considered off
	// because it had at least one prerequisite flag that either was off or
	// did not return the desired variation. The PrerequisiteKey property
	// names the first prerequisite that failed.
	EvalReasonPrerequisiteFailed EvalReasonKind = "PREREQUISITE_FAILED"
	// EvalReasonFallthrough indicates that the flag was on but the user did
	// not match any targets or rules.
	EvalReasonFallthrough EvalReasonKind = "FALLTHROUGH"
	// EvalReasonError indicates that the flag could not be evaluated. In this
	// case the result value is the default value that the caller passed to
	// the client. The ErrorKind property will be set.
	EvalReasonError EvalReasonKind = "ERROR"
)

// EvalErrorKind defines the possible values of the ErrorKind property of
// EvaluationReason.
type EvalErrorKind string

const (
	// EvalErrorClientNotReady indicates that the caller tried to evaluate a
	// flag before the client had successfully initialized.
	EvalErrorClientNotReady EvalErrorKind = "CLIENT_NOT_READY"
	// EvalErrorNullKey indicates that the caller provided an empty flag key.
	EvalErrorNullKey EvalErrorKind = "NULL_KEY"
	// EvalErrorStoreError indicates that an error occurred when accessing the
	// data store.
	EvalErrorStoreError EvalErrorKind = "STORE_ERROR"
	// EvalErrorFlagNotFound indicates that the caller provided a flag key
	// that did not match any known flag.
	EvalErrorFlagNotFound EvalErrorKind = "FLAG_NOT_FOUND"
	// EvalErrorUserNotSpecified indicates that the user did not have a key.
	EvalErrorUserNotSpecified EvalErrorKind = "USER_NOT_SPECIFIED"
	// EvalErrorMalformedFlag indicates an internal inconsistency in the flag
	// data, such as a rule that specifies a nonexistent variation.
	EvalErrorMalformedFlag EvalErrorKind = "MALFORMED_FLAG"
	// EvalErrorWrongType indicates that the result value was not of the
	// requested type, e.g. you called BoolVariation but the variation was a
	// string.
	EvalErrorWrongType EvalErrorKind = "WRONG_TYPE"
	// EvalErrorException indicates that an unexpected error stopped flag
	// evaluation; check the log for details.
	EvalErrorException EvalErrorKind = "EXCEPTION"
)

// EvaluationReason describes the reason that a flag evaluation produced a
// particular value.
type EvaluationReason struct {
	// Kind describes the general category of the reason.
	Kind EvalReasonKind `json:"kind"`
	// ErrorKind describes the type of error, if Kind is EvalReasonError.
	ErrorKind EvalErrorKind `json:"errorKind,omitempty"`
	// RuleIndex is the index of the rule that was matched (0 being the
	// first), if Kind is EvalReasonRuleMatch.
	RuleIndex *int `json:"ruleIndex,omitempty"`
	// RuleID is the unique identifier of the rule that was matched, if Kind
	// is EvalReasonRuleMatch.
	RuleID string `json:"ruleId,omitempty"`
	// PrerequisiteKey is the flag key of the first prerequisite that failed,
	// if Kind is EvalReasonPrerequisiteFailed.
	PrerequisiteKey string `json:"prerequisiteKey,omitempty"`
	// InExperiment is true if the variation was determined by an experiment
	// rollout and the user's results are being tracked. It can be set when
	// Kind is EvalReasonRuleMatch or EvalReasonFallthrough.
	InExperiment bool `json:"inExperiment,omitempty"`
}

// EvaluationDetail combines the result of a flag evaluation with an
// explanation of how it was calculated.
type EvaluationDetail struct {
	// Value is the result of the flag evaluation: either one of the flag's
	// variations, or the default value that was passed to the Variation
	// method.
	Value ldvalue.Value
	// VariationIndex is the index of the returned value within the flag's
	// list of variations, or nil if the default value was returned.
	VariationIndex *int
	// Reason describes the main factor that influenced the result.
	Reason EvaluationReason
}

// IsDefaultValue returns true if the result of the evaluation was the
// caller's default value rather than one of the flag's variations.
func (d EvaluationDetail) IsDefaultValue() bool {
	return d.VariationIndex == nil
}

func newEvalReasonOff() EvaluationReason {
	return EvaluationReason{Kind: EvalReasonOff}
}

func newEvalReasonFallthrough(inExperiment bool) EvaluationReason {
	return EvaluationReason{Kind: EvalReasonFallthrough, InExperiment: inExperiment}
}

func newEvalReasonTargetMatch() EvaluationReason {
	return EvaluationReason{Kind: EvalReasonTargetMatch}
}

func newEvalReasonRuleMatch(ruleIndex int, ruleID string, inExperiment bool) EvaluationReason {
	index := ruleIndex
	return EvaluationReason{
		Kind:         EvalReasonRuleMatch,
		RuleIndex:    &index,
		RuleID:       ruleID,
		InExperiment: inExperiment,
	}
}

func newEvalReasonPrerequisiteFailed(prereqKey string) EvaluationReason {
	return EvaluationReason{Kind: EvalReasonPrerequisiteFailed, PrerequisiteKey: prereqKey}
}

func newEvalReasonError(errorKind EvalErrorKind) EvaluationReason {
	return EvaluationReason{Kind: EvalReasonError, ErrorKind: errorKind}
}

func newEvaluationError(defaultVal ldvalue.Value, errorKind EvalErrorKind) EvaluationDetail {
	return EvaluationDetail{
		Value:  defaultVal,
		Reason: newEvalReasonError(errorKind),
	}
}
