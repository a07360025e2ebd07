package ldclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldlog"
	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

func TestFlagsStateCanGetFlagValue(t *testing.T) {
	state := newFeatureFlagsState()
	flag := FeatureFlag{Key: "key"}
	state.addFlag(&flag, ldvalue.String("value"), intPtr(1), EvaluationReason{}, false)

	assert.Equal(t, ldvalue.String("value"), state.GetFlagValue("key"))
}

func TestFlagsStateUnknownFlagReturnsNullValue(t *testing.T) {
	state := newFeatureFlagsState()
	assert.Equal(t, ldvalue.Null(), state.GetFlagValue("key"))
}

func TestFlagsStateCanGetFlagReason(t *testing.T) {
	state := newFeatureFlagsState()
	flag := FeatureFlag{Key: "key"}
	state.addFlag(&flag, ldvalue.String("value"), intPtr(1), newEvalReasonFallthrough(false), false)

	assert.Equal(t, newEvalReasonFallthrough(false), state.GetFlagReason("key"))
}

func TestFlagsStateReturnsEmptyReasonIfReasonsWereNotRecorded(t *testing.T) {
	state := newFeatureFlagsState()
	flag := FeatureFlag{Key: "key"}
	state.addFlag(&flag, ldvalue.String("value"), intPtr(1), EvaluationReason{}, false)

	assert.Equal(t, EvaluationReason{}, state.GetFlagReason("key"))
}

func TestFlagsStateToValuesMap(t *testing.T) {
	state := newFeatureFlagsState()
	flag1 := FeatureFlag{Key: "key1"}
	flag2 := FeatureFlag{Key: "key2"}
	state.addFlag(&flag1, ldvalue.String("value1"), intPtr(0), EvaluationReason{}, false)
	state.addFlag(&flag2, ldvalue.String("value2"), intPtr(1), EvaluationReason{}, false)

	assert.Equal(t, map[string]ldvalue.Value{
		"key1": ldvalue.String("value1"),
		"key2": ldvalue.String("value2"),
	}, state.ToValuesMap())
}

func TestFlagsStateToJSON(t *testing.T) {
	state := newFeatureFlagsState()
	flag := FeatureFlag{Key: "key1", Version: 100, TrackEvents: false}
	state.addFlag(&flag, ldvalue.String("value1"), intPtr(1), EvaluationReason{}, false)

	bytes, err := json.Marshal(state)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"key1": "value1",
		"$flagsState": {
			"key1": {"variation": 1, "version": 100}
		},
		"$valid": true
	}`, string(bytes))
}

func TestFlagsStateOmitsDetailsForUntrackedFlags(t *testing.T) {
	state := newFeatureFlagsState()
	flag1 := FeatureFlag{Key: "key1", Version: 100}
	flag2 := FeatureFlag{Key: "key2", Version: 200, TrackEvents: true}
	state.addFlag(&flag1, ldvalue.String("value1"), intPtr(0), newEvalReasonFallthrough(false), true)
	state.addFlag(&flag2, ldvalue.String("value2"), intPtr(1), newEvalReasonFallthrough(false), true)

	meta1 := state.flagMetadata["key1"]
	assert.Nil(t, meta1.Version)
	assert.Nil(t, meta1.Reason)

	meta2 := state.flagMetadata["key2"]
	require.NotNil(t, meta2.Version)
	assert.Equal(t, 200, *meta2.Version)
	require.NotNil(t, meta2.Reason)
}

func TestAllFlagsStateWithReasons(t *testing.T) {
	client, store, _ := makeTestClient(t)
	defer client.Close()
	require.NoError(t, store.Upsert(Features, makeClientTestFlag("flag1", 1, ldvalue.String("a"), ldvalue.String("b"))))

	state := client.AllFlagsState(NewUser("userkey"), WithReasons)
	require.True(t, state.IsValid())
	assert.Equal(t, newEvalReasonFallthrough(false), state.GetFlagReason("flag1"))
}

func TestAllFlagsStateClientSideOnly(t *testing.T) {
	client, store, _ := makeTestClient(t)
	defer client.Close()
	clientSideFlag := makeClientTestFlag("client-side", 0, ldvalue.String("a"))
	clientSideFlag.ClientSide = true
	require.NoError(t, store.Upsert(Features, clientSideFlag))
	require.NoError(t, store.Upsert(Features, makeClientTestFlag("server-side", 0, ldvalue.String("b"))))

	state := client.AllFlagsState(NewUser("userkey"), ClientSideOnly)
	values := state.ToValuesMap()
	assert.Contains(t, values, "client-side")
	assert.NotContains(t, values, "server-side")
}

func TestAllFlagsStateInvalidInOfflineMode(t *testing.T) {
	config := DefaultConfig
	config.Offline = true
	config.Loggers = ldlog.NewDisabledLoggers()
	client, err := MakeCustomClient("sdk-key", config, 0)
	require.NoError(t, err)
	defer client.Close()

	state := client.AllFlagsState(NewUser("userkey"))
	assert.False(t, state.IsValid())
}
