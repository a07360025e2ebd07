package ldclient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

var summarizerTestUser = NewUser("key")

func TestSummarizeEventDoesNothingForIdentifyEvent(t *testing.T) {
	es := newEventSummarizer()
	snapshot := es.snapshot()

	es.summarizeEvent(NewIdentifyEvent(summarizerTestUser))

	assert.Equal(t, snapshot, es.snapshot())
}

func TestSummarizeEventDoesNothingForCustomEvent(t *testing.T) {
	es := newEventSummarizer()
	snapshot := es.snapshot()

	es.summarizeEvent(newCustomEvent("whatever", summarizerTestUser, ldvalue.Null(), false, 0))

	assert.Equal(t, snapshot, es.snapshot())
}

func TestSummarizeEventSetsStartAndEndDates(t *testing.T) {
	es := newEventSummarizer()
	flag := FeatureFlag{Key: "key"}
	event1 := newSuccessfulEvalEvent(&flag, summarizerTestUser, nil, ldvalue.Null(), ldvalue.Null(), EvaluationReason{}, false, nil)
	event2 := newSuccessfulEvalEvent(&flag, summarizerTestUser, nil, ldvalue.Null(), ldvalue.Null(), EvaluationReason{}, false, nil)
	event3 := newSuccessfulEvalEvent(&flag, summarizerTestUser, nil, ldvalue.Null(), ldvalue.Null(), EvaluationReason{}, false, nil)
	event1.BaseEvent.CreationDate = 2000
	event2.BaseEvent.CreationDate = 1000
	event3.BaseEvent.CreationDate = 1500
	es.summarizeEvent(event1)
	es.summarizeEvent(event2)
	es.summarizeEvent(event3)
	data := es.snapshot()

	assert.Equal(t, uint64(1000), data.startDate)
	assert.Equal(t, uint64(2000), data.endDate)
}

func TestSummarizeEventIncrementsCounters(t *testing.T) {
	es := newEventSummarizer()
	flag1 := FeatureFlag{Key: "key1", Version: 11}
	flag2 := FeatureFlag{Key: "key2", Version: 22}
	unknownFlagKey := "badkey"
	variation1 := 1
	variation2 := 2
	event1 := newSuccessfulEvalEvent(&flag1, summarizerTestUser, &variation1, ldvalue.String("value1"), ldvalue.String("default1"), EvaluationReason{}, false, nil)
	event2 := newSuccessfulEvalEvent(&flag1, summarizerTestUser, &variation2, ldvalue.String("value2"), ldvalue.String("default1"), EvaluationReason{}, false, nil)
	event3 := newSuccessfulEvalEvent(&flag2, summarizerTestUser, &variation1, ldvalue.String("value99"), ldvalue.String("default2"), EvaluationReason{}, false, nil)
	event4 := newSuccessfulEvalEvent(&flag1, summarizerTestUser, &variation1, ldvalue.String("value1"), ldvalue.String("default1"), EvaluationReason{}, false, nil)
	event5 := newUnknownFlagEvent(unknownFlagKey, summarizerTestUser, ldvalue.String("default3"), EvaluationReason{}, false)
	es.summarizeEvent(event1)
	es.summarizeEvent(event2)
	es.summarizeEvent(event3)
	es.summarizeEvent(event4)
	es.summarizeEvent(event5)
	data := es.snapshot()

	expectedCounters := map[counterKey]*counterValue{
		{flag1.Key, variation1, flag1.Version}: {2, ldvalue.String("value1"), ldvalue.String("default1")},
		{flag1.Key, variation2, flag1.Version}: {1, ldvalue.String("value2"), ldvalue.String("default1")},
		{flag2.Key, variation1, flag2.Version}: {1, ldvalue.String("value99"), ldvalue.String("default2")},
		{unknownFlagKey, -1, 0}:                {1, ldvalue.String("default3"), ldvalue.String("default3")},
	}
	assert.Equal(t, expectedCounters, data.counters)
}

func TestCounterForNilVariationIsDistinctFromOthers(t *testing.T) {
	es := newEventSummarizer()
	flag := FeatureFlag{Key: "key1", Version: 11}
	variation1 := 1
	variation2 := 2
	event1 := newSuccessfulEvalEvent(&flag, summarizerTestUser, &variation1, ldvalue.String("value1"), ldvalue.String("default1"), EvaluationReason{}, false, nil)
	event2 := newSuccessfulEvalEvent(&flag, summarizerTestUser, &variation2, ldvalue.String("value2"), ldvalue.String("default1"), EvaluationReason{}, false, nil)
	event3 := newSuccessfulEvalEvent(&flag, summarizerTestUser, nil, ldvalue.String("default1"), ldvalue.String("default1"), EvaluationReason{}, false, nil)
	es.summarizeEvent(event1)
	es.summarizeEvent(event2)
	es.summarizeEvent(event3)
	data := es.snapshot()

	expectedCounters := map[counterKey]*counterValue{
		{flag.Key, variation1, flag.Version}: {1, ldvalue.String("value1"), ldvalue.String("default1")},
		{flag.Key, variation2, flag.Version}: {1, ldvalue.String("value2"), ldvalue.String("default1")},
		{flag.Key, -1, flag.Version}:         {1, ldvalue.String("default1"), ldvalue.String("default1")},
	}
	assert.Equal(t, expectedCounters, data.counters)
}

func TestSummarizerResetClearsCountersAndDates(t *testing.T) {
	es := newEventSummarizer()
	flag := FeatureFlag{Key: "key1", Version: 11}
	variation1 := 1
	es.summarizeEvent(newSuccessfulEvalEvent(&flag, summarizerTestUser, &variation1,
		ldvalue.String("value1"), ldvalue.String("default1"), EvaluationReason{}, false, nil))
	es.reset()
	data := es.snapshot()

	assert.Len(t, data.counters, 0)
	assert.Equal(t, uint64(0), data.startDate)
	assert.Equal(t, uint64(0), data.endDate)
}
