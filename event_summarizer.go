package ldclient

import (
	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

// counterKey identifies one summary counter: one (flag, variation, version)
// combination. A variation of -1 means the default value was served; a
// version of 0 means the flag was unknown.
type counterKey struct {
	key       string
	variation int
	version   int
}

type counterValue struct {
	count       int
	flagValue   ldvalue.Value
	flagDefault ldvalue.Value
}

type summaryEventsState struct {
	counters  map[counterKey]*counterValue
	startDate uint64
	endDate   uint64
}

func newSummaryEventsState() summaryEventsState {
	return summaryEventsState{counters: make(map[counterKey]*counterValue)}
}

// eventSummarizer aggregates feature request events into per-flag counters
// between flushes. It is used only from the event dispatcher goroutine, so it
// requires no locking of its own.
type eventSummarizer struct {
	eventsState summaryEventsState
}

func newEventSummarizer() *eventSummarizer {
	return &eventSummarizer{eventsState: newSummaryEventsState()}
}

// summarizeEvent adds this event to the summary if it is a kind of event that
// is summarized (only feature request events are).
func (s *eventSummarizer) summarizeEvent(evt Event) {
	fe, ok := evt.(FeatureRequestEvent)
	if !ok {
		return
	}

	key := counterKey{key: fe.Key, variation: -1}
	if fe.Variation != nil {
		key.variation = *fe.Variation
	}
	if fe.Version != nil {
		key.version = *fe.Version
	}

	if value, ok := s.eventsState.counters[key]; ok {
		value.count++
	} else {
		s.eventsState.counters[key] = &counterValue{
			count:       1,
			flagValue:   fe.Value,
			flagDefault: fe.Default,
		}
	}

	creationDate := fe.CreationDate
	if s.eventsState.startDate == 0 || creationDate < s.eventsState.startDate {
		s.eventsState.startDate = creationDate
	}
	if creationDate > s.eventsState.endDate {
		s.eventsState.endDate = creationDate
	}
}

// snapshot returns the current summarized event data.
func (s *eventSummarizer) snapshot() summaryEventsState {
	return s.eventsState
}

// reset discards the current summarized event data, to start a new interval.
func (s *eventSummarizer) reset() {
	s.eventsState = newSummaryEventsState()
}
