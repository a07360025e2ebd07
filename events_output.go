package ldclient

import (
	"encoding/json"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldlog"
	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

// eventBuffer holds the inline events and summary counters accumulated
// between flushes. It is used only from the event dispatcher goroutine.
type eventBuffer struct {
	events           []Event
	summarizer       *eventSummarizer
	capacity         int
	capacityExceeded bool
	loggers          ldlog.Loggers
}

func newEventBuffer(capacity int, loggers ldlog.Loggers) *eventBuffer {
	return &eventBuffer{
		summarizer: newEventSummarizer(),
		capacity:   capacity,
		loggers:    loggers,
	}
}

// addEvent adds an event to the buffer. If the buffer is full the event is
// dropped with a warning; summary counters are not affected.
func (b *eventBuffer) addEvent(event Event) {
	if len(b.events) >= b.capacity {
		if !b.capacityExceeded {
			b.capacityExceeded = true
			b.loggers.Warn("Exceeded event queue capacity. Increase capacity to avoid dropping events.")
		}
		return
	}
	b.capacityExceeded = false
	b.events = append(b.events, event)
}

// addToSummary records a feature request event in the summary counters; other
// event kinds are ignored.
func (b *eventBuffer) addToSummary(event Event) {
	b.summarizer.summarizeEvent(event)
}

// getPayload returns the current buffer contents for a flush.
func (b *eventBuffer) getPayload() flushPayload {
	return flushPayload{
		events:  b.events,
		summary: b.summarizer.snapshot(),
	}
}

// clear resets the buffer and summary state after a flush has been handed off.
func (b *eventBuffer) clear() {
	b.events = nil
	b.capacityExceeded = false
	b.summarizer.reset()
}

// The JSON shapes of the events that are posted to the events service.

type featureRequestEventOutput struct {
	Kind                 string            `json:"kind"`
	CreationDate         uint64            `json:"creationDate"`
	Key                  string            `json:"key"`
	User                 *User             `json:"user,omitempty"`
	UserKey              *string           `json:"userKey,omitempty"`
	Variation            *int              `json:"variation,omitempty"`
	Value                ldvalue.Value     `json:"value"`
	Default              ldvalue.Value     `json:"default"`
	Version              *int              `json:"version,omitempty"`
	PrereqOf             *string           `json:"prereqOf,omitempty"`
	Reason               *EvaluationReason `json:"reason,omitempty"`
	TrackEvents          bool              `json:"trackEvents,omitempty"`
	DebugEventsUntilDate *uint64           `json:"debugEventsUntilDate,omitempty"`
}

type identifyEventOutput struct {
	Kind         string  `json:"kind"`
	CreationDate uint64  `json:"creationDate"`
	Key          *string `json:"key,omitempty"`
	User         *User   `json:"user"`
}

type indexEventOutput struct {
	Kind         string `json:"kind"`
	CreationDate uint64 `json:"creationDate"`
	User         *User  `json:"user"`
}

type customEventOutput struct {
	Kind         string         `json:"kind"`
	CreationDate uint64         `json:"creationDate"`
	Key          string         `json:"key"`
	User         *User          `json:"user,omitempty"`
	UserKey      *string        `json:"userKey,omitempty"`
	Data         *ldvalue.Value `json:"data,omitempty"`
	MetricValue  *float64       `json:"metricValue,omitempty"`
}

type summaryEventOutput struct {
	Kind      string                       `json:"kind"`
	StartDate uint64                       `json:"startDate"`
	EndDate   uint64                       `json:"endDate"`
	Features  map[string]flagSummaryOutput `json:"features"`
}

type flagSummaryOutput struct {
	Default  ldvalue.Value       `json:"default"`
	Counters []flagCounterOutput `json:"counters"`
}

type flagCounterOutput struct {
	Value     ldvalue.Value `json:"value"`
	Variation *int          `json:"variation,omitempty"`
	Version   *int          `json:"version,omitempty"`
	Count     int           `json:"count"`
	Unknown   *bool         `json:"unknown,omitempty"`
}

// eventOutputFormatter transforms the buffered event objects into the
// JSON-serializable structures of the event schema, applying user redaction.
type eventOutputFormatter struct {
	config Config
}

// makeOutputEventsJSON serializes a flush payload into the JSON array to be
// posted. It returns nil if there is nothing to send.
func (ef eventOutputFormatter) makeOutputEventsJSON(events []Event, summary summaryEventsState) []byte {
	out := ef.makeOutputEvents(events, summary)
	if len(out) == 0 {
		return nil
	}
	jsonPayload, err := json.Marshal(out)
	if err != nil {
		ef.config.Loggers.Errorf("Unexpected error marshalling event json: %+v", err)
		return nil
	}
	return jsonPayload
}

func (ef eventOutputFormatter) makeOutputEvents(events []Event, summary summaryEventsState) []interface{} {
	out := make([]interface{}, 0, len(events)+1)
	for _, event := range events {
		if formatted := ef.makeOutputEvent(event); formatted != nil {
			out = append(out, formatted)
		}
	}
	if len(summary.counters) > 0 {
		out = append(out, ef.makeSummaryEvent(summary))
	}
	return out
}

func (ef eventOutputFormatter) makeOutputEvent(event Event) interface{} {
	switch evt := event.(type) {
	case FeatureRequestEvent:
		fe := featureRequestEventOutput{
			Kind:                 "feature",
			CreationDate:         evt.CreationDate,
			Key:                  evt.Key,
			Variation:            evt.Variation,
			Value:                evt.Value,
			Default:              evt.Default,
			Version:              evt.Version,
			PrereqOf:             evt.PrereqOf,
			Reason:               evt.Reason,
			TrackEvents:          evt.TrackEvents,
			DebugEventsUntilDate: evt.DebugEventsUntilDate,
		}
		if evt.Debug {
			// Debug events always carry the full user, and are not
			// themselves marked as tracked.
			fe.Kind = "debug"
			fe.TrackEvents = false
			fe.DebugEventsUntilDate = nil
			fe.User = ef.scrubbedUser(evt.User)
		} else if ef.config.InlineUsersInEvents {
			fe.User = ef.scrubbedUser(evt.User)
		} else {
			key := evt.User.GetKey()
			fe.UserKey = &key
		}
		return fe
	case CustomEvent:
		ce := customEventOutput{
			Kind:         "custom",
			CreationDate: evt.CreationDate,
			Key:          evt.Key,
		}
		if ef.config.InlineUsersInEvents {
			ce.User = ef.scrubbedUser(evt.User)
		} else {
			key := evt.User.GetKey()
			ce.UserKey = &key
		}
		if !evt.Data.IsNull() {
			data := evt.Data
			ce.Data = &data
		}
		if evt.HasMetric {
			metric := evt.MetricValue
			ce.MetricValue = &metric
		}
		return ce
	case IdentifyEvent:
		key := evt.User.GetKey()
		return identifyEventOutput{
			Kind:         "identify",
			CreationDate: evt.CreationDate,
			Key:          &key,
			User:         ef.scrubbedUser(evt.User),
		}
	case IndexEvent:
		return indexEventOutput{
			Kind:         "index",
			CreationDate: evt.CreationDate,
			User:         ef.scrubbedUser(evt.User),
		}
	}
	return nil
}

// makeSummaryEvent produces the single summary event for a flush: the
// per-flag counter maps are converted into arrays of counter objects.
func (ef eventOutputFormatter) makeSummaryEvent(snapshot summaryEventsState) summaryEventOutput {
	features := make(map[string]flagSummaryOutput)
	unknownTrue := true
	for key, value := range snapshot.counters {
		flagData, known := features[key.key]
		if !known {
			flagData = flagSummaryOutput{Default: value.flagDefault}
		}
		counter := flagCounterOutput{
			Value: value.flagValue,
			Count: value.count,
		}
		if key.variation >= 0 {
			variation := key.variation
			counter.Variation = &variation
		}
		if key.version == 0 {
			counter.Unknown = &unknownTrue
		} else {
			version := key.version
			counter.Version = &version
		}
		flagData.Counters = append(flagData.Counters, counter)
		features[key.key] = flagData
	}
	return summaryEventOutput{
		Kind:      "summary",
		StartDate: snapshot.startDate,
		EndDate:   snapshot.endDate,
		Features:  features,
	}
}

func (ef eventOutputFormatter) scrubbedUser(user User) *User {
	scrubbed := scrubUser(user, ef.config.AllAttributesPrivate, ef.config.PrivateAttributeNames)
	return &scrubbed
}
