package ldclient

import (
	"encoding/json"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

// FlagsStateOption is an optional parameter for LDClient.AllFlagsState.
type FlagsStateOption int

const (
	// ClientSideOnly is an option for AllFlagsState that makes it include
	// only flags that are marked for use with the client-side SDK.
	ClientSideOnly FlagsStateOption = iota
	// WithReasons is an option for AllFlagsState that makes it include
	// evaluation reasons in the state.
	WithReasons
	// DetailsOnlyForTrackedFlags is an option for AllFlagsState that makes
	// it omit any metadata that is normally only used for event generation,
	// such as flag versions and evaluation reasons, unless the flag has
	// event tracking or debugging turned on.
	DetailsOnlyForTrackedFlags
)

func hasFlagsStateOption(options []FlagsStateOption, option FlagsStateOption) bool {
	for _, o := range options {
		if o == option {
			return true
		}
	}
	return false
}

// FeatureFlagsState is a snapshot of the state of all feature flags with
// regard to a specific user, generated by calling LDClient.AllFlagsState.
// Serializing this object to JSON, with json.Marshal, produces the
// appropriate data structure for bootstrapping the LaunchDarkly JavaScript
// client.
type FeatureFlagsState struct {
	flagValues   map[string]ldvalue.Value
	flagMetadata map[string]flagMetadata
	valid        bool
}

type flagMetadata struct {
	Variation            *int              `json:"variation,omitempty"`
	Version              *int              `json:"version,omitempty"`
	Reason               *EvaluationReason `json:"reason,omitempty"`
	TrackEvents          bool              `json:"trackEvents,omitempty"`
	DebugEventsUntilDate *uint64           `json:"debugEventsUntilDate,omitempty"`
}

func newFeatureFlagsState() FeatureFlagsState {
	return FeatureFlagsState{
		flagValues:   make(map[string]ldvalue.Value),
		flagMetadata: make(map[string]flagMetadata),
		valid:        true,
	}
}

func (s FeatureFlagsState) addFlag(flag *FeatureFlag, value ldvalue.Value, variation *int,
	reason EvaluationReason, detailsOnlyIfTracked bool) {
	meta := flagMetadata{
		Variation:   variation,
		TrackEvents: flag.TrackEvents,
	}
	includeDetails := true
	if detailsOnlyIfTracked {
		includeDetails = flag.TrackEvents ||
			(flag.DebugEventsUntilDate != nil && *flag.DebugEventsUntilDate > now())
	}
	if includeDetails {
		version := flag.Version
		meta.Version = &version
		if reason.Kind != "" {
			r := reason
			meta.Reason = &r
		}
	}
	meta.DebugEventsUntilDate = flag.DebugEventsUntilDate
	s.flagValues[flag.Key] = value
	s.flagMetadata[flag.Key] = meta
}

// IsValid returns true if this object contains a valid snapshot of feature
// flag state. It is false if there was an error, such as the client being
// offline or the feature store being unavailable.
func (s FeatureFlagsState) IsValid() bool {
	return s.valid
}

// GetFlagValue returns the value of an individual feature flag at the time
// the state was recorded. It returns a null value if the flag returned the
// default value, or if there was no such flag.
func (s FeatureFlagsState) GetFlagValue(key string) ldvalue.Value {
	return s.flagValues[key]
}

// GetFlagReason returns the evaluation reason for an individual feature flag
// at the time the state was recorded. The zero value is returned if there
// was no such flag, or if reasons were not recorded.
func (s FeatureFlagsState) GetFlagReason(key string) EvaluationReason {
	if meta, ok := s.flagMetadata[key]; ok && meta.Reason != nil {
		return *meta.Reason
	}
	return EvaluationReason{}
}

// ToValuesMap returns a map of flag keys to flag values. If a flag would have
// evaluated to the default value, its value will be a null Value.
//
// Do not use this method if you are passing data to the front end to be used
// by the JavaScript SDK; instead, serialize the FeatureFlagsState object to
// JSON.
func (s FeatureFlagsState) ToValuesMap() map[string]ldvalue.Value {
	return s.flagValues
}

// MarshalJSON implements a custom JSON serialization for FeatureFlagsState,
// to produce the correct data structure for bootstrapping the LaunchDarkly
// JavaScript client.
func (s FeatureFlagsState) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{}, len(s.flagValues)+2)
	for k, v := range s.flagValues {
		result[k] = v
	}
	result["$flagsState"] = s.flagMetadata
	result["$valid"] = s.valid
	return json.Marshal(result)
}
