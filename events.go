package ldclient

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldlog"
	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

// EventProcessor defines the interface for dispatching analytics events.
type EventProcessor interface {
	// SendEvent records an event asynchronously.
	SendEvent(Event)
	// Flush specifies that any buffered events should be sent as soon as
	// possible, rather than waiting for the next flush interval. This method
	// is asynchronous, so events still may not be sent until a later time.
	Flush()
	// Close shuts down all event processor activity, after first ensuring
	// that all buffered events have been delivered.
	Close() error
}

// Event is an interface implemented by all analytics event types.
type Event interface {
	// GetBase returns the BaseEvent fields common to all events.
	GetBase() BaseEvent
}

// BaseEvent contains properties common to all events.
type BaseEvent struct {
	CreationDate uint64
	User         User
}

// FeatureRequestEvent is generated by evaluating a feature flag or one of its
// prerequisites.
type FeatureRequestEvent struct {
	BaseEvent
	Key       string
	Variation *int
	Value     ldvalue.Value
	Default   ldvalue.Value
	Version   *int
	PrereqOf  *string
	Reason    *EvaluationReason
	// TrackEvents is true if the event should be sent in full to the events
	// service, rather than only contributing to the summary counters.
	TrackEvents          bool
	DebugEventsUntilDate *uint64
	Debug                bool
}

// CustomEvent is generated by calling the client's Track methods.
type CustomEvent struct {
	BaseEvent
	Key         string
	Data        ldvalue.Value
	HasMetric   bool
	MetricValue float64
}

// IdentifyEvent is generated by calling the client's Identify method.
type IdentifyEvent struct {
	BaseEvent
}

// IndexEvent is generated internally to capture the full user body once per
// user-key deduplication window, so that other events can carry only the
// user key.
type IndexEvent struct {
	BaseEvent
}

// GetBase returns the BaseEvent part of the event.
func (evt FeatureRequestEvent) GetBase() BaseEvent {
	return evt.BaseEvent
}

// GetBase returns the BaseEvent part of the event.
func (evt CustomEvent) GetBase() BaseEvent {
	return evt.BaseEvent
}

// GetBase returns the BaseEvent part of the event.
func (evt IdentifyEvent) GetBase() BaseEvent {
	return evt.BaseEvent
}

// GetBase returns the BaseEvent part of the event.
func (evt IndexEvent) GetBase() BaseEvent {
	return evt.BaseEvent
}

// newSuccessfulEvalEvent creates a feature request event for an evaluation
// that found the flag, whether or not the result was one of its variations.
func newSuccessfulEvalEvent(
	flag *FeatureFlag,
	user User,
	variation *int,
	value ldvalue.Value,
	defaultVal ldvalue.Value,
	reason EvaluationReason,
	includeReason bool,
	prereqOf *string,
) FeatureRequestEvent {
	version := flag.Version
	requireExperimentData := flag.IsExperimentationEnabled(reason)
	evt := FeatureRequestEvent{
		BaseEvent: BaseEvent{
			CreationDate: now(),
			User:         user,
		},
		Key:                  flag.Key,
		Variation:            variation,
		Value:                value,
		Default:              defaultVal,
		Version:              &version,
		PrereqOf:             prereqOf,
		TrackEvents:          requireExperimentData || flag.TrackEvents,
		DebugEventsUntilDate: flag.DebugEventsUntilDate,
	}
	if requireExperimentData || includeReason {
		r := reason
		evt.Reason = &r
	}
	return evt
}

// newUnknownFlagEvent creates a feature request event for an evaluation that
// could not find the flag or otherwise failed before reaching the flag data.
func newUnknownFlagEvent(
	key string,
	user User,
	defaultVal ldvalue.Value,
	reason EvaluationReason,
	includeReason bool,
) FeatureRequestEvent {
	evt := FeatureRequestEvent{
		BaseEvent: BaseEvent{
			CreationDate: now(),
			User:         user,
		},
		Key:     key,
		Value:   defaultVal,
		Default: defaultVal,
	}
	if includeReason {
		r := reason
		evt.Reason = &r
	}
	return evt
}

// newCustomEvent constructs a custom analytics event.
func newCustomEvent(key string, user User, data ldvalue.Value, hasMetric bool, metricValue float64) CustomEvent {
	return CustomEvent{
		BaseEvent: BaseEvent{
			CreationDate: now(),
			User:         user,
		},
		Key:         key,
		Data:        data,
		HasMetric:   hasMetric,
		MetricValue: metricValue,
	}
}

// NewIdentifyEvent constructs an identify event.
func NewIdentifyEvent(user User) IdentifyEvent {
	return IdentifyEvent{
		BaseEvent: BaseEvent{
			CreationDate: now(),
			User:         user,
		},
	}
}

const (
	maxFlushWorkers    = 5
	eventSchemaHeader  = "X-LaunchDarkly-Event-Schema"
	payloadIDHeader    = "X-LaunchDarkly-Payload-ID"
	currentEventSchema = "3"
	bulkEventsPath     = "/bulk"
)

type defaultEventProcessor struct {
	inboxCh       chan eventDispatcherMessage
	dispatcher    *eventDispatcher
	inboxFullOnce sync.Once
	closeOnce     sync.Once
	loggers       ldlog.Loggers
}

type eventDispatcher struct {
	sdkKey            string
	config            Config
	lastKnownPastTime uint64
	disabled          bool
	stateLock         sync.Mutex
}

type flushPayload struct {
	events  []Event
	summary summaryEventsState
}

// Payload of the inboxCh channel.
type eventDispatcherMessage interface{}

type sendEventMessage struct {
	event Event
}

type flushEventsMessage struct{}

type shutdownEventsMessage struct {
	replyCh chan struct{}
}

type syncEventsMessage struct {
	replyCh chan struct{}
}

// newDefaultEventProcessor creates the standard implementation of analytics
// event processing, with one dispatcher goroutine that owns all event state
// and a small pool of flush workers that perform delivery.
func newDefaultEventProcessor(sdkKey string, config Config, client *http.Client) EventProcessor {
	if client == nil {
		client = config.newHTTPClient()
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultConfig.Capacity
	}
	inboxCh := make(chan eventDispatcherMessage, config.Capacity)
	dispatcher := startEventDispatcher(sdkKey, config, client, inboxCh)
	return &defaultEventProcessor{
		inboxCh:    inboxCh,
		dispatcher: dispatcher,
		loggers:    config.Loggers,
	}
}

// recordServerTime forwards a server clock reading from a data source
// response to the dispatcher; see eventDispatcher.recordServerTime.
func (ep *defaultEventProcessor) recordServerTime(serverTimeMillis uint64) {
	ep.dispatcher.recordServerTime(serverTimeMillis)
}

func (ep *defaultEventProcessor) SendEvent(evt Event) {
	ep.postNonBlockingMessageToInbox(sendEventMessage{event: evt})
}

func (ep *defaultEventProcessor) Flush() {
	ep.postNonBlockingMessageToInbox(flushEventsMessage{})
}

func (ep *defaultEventProcessor) postNonBlockingMessageToInbox(message eventDispatcherMessage) {
	select {
	case ep.inboxCh <- message:
		return
	default:
	}
	// If the inbox is full, the dispatcher is seriously backed up. Blocking
	// here would slow down the application's own goroutines, so the event is
	// dropped instead. The warning is logged only once.
	ep.inboxFullOnce.Do(func() {
		ep.loggers.Warn("Events are being produced faster than they can be processed; some events will be dropped")
	})
}

func (ep *defaultEventProcessor) Close() error {
	ep.closeOnce.Do(func() {
		// These messages are posted with blocking sends, unlike analytics
		// events, because they are necessary for an orderly shutdown.
		ep.inboxCh <- flushEventsMessage{}
		m := shutdownEventsMessage{replyCh: make(chan struct{})}
		ep.inboxCh <- m
		<-m.replyCh
	})
	return nil
}

func startEventDispatcher(
	sdkKey string,
	config Config,
	client *http.Client,
	inboxCh <-chan eventDispatcherMessage,
) *eventDispatcher {
	ed := &eventDispatcher{
		sdkKey: sdkKey,
		config: config,
	}

	// Start a fixed-size pool of workers that wait on flushCh. This is the
	// maximum number of flushes that can be in flight concurrently.
	flushCh := make(chan *flushPayload, 1)
	var workersGroup sync.WaitGroup
	for i := 0; i < maxFlushWorkers; i++ {
		startFlushTask(sdkKey, config, client, flushCh, &workersGroup,
			func(resp *http.Response) { ed.handleResponse(resp) })
	}
	go ed.runMainLoop(inboxCh, flushCh, &workersGroup)
	return ed
}

func (ed *eventDispatcher) runMainLoop(
	inboxCh <-chan eventDispatcherMessage,
	flushCh chan<- *flushPayload,
	workersGroup *sync.WaitGroup,
) {
	if err := recover(); err != nil {
		ed.config.Loggers.Errorf("Unexpected panic in event processing thread: %+v", err)
	}

	buffer := newEventBuffer(ed.config.Capacity, ed.config.Loggers)
	userKeys := newLruCache(ed.config.UserKeysCapacity)

	flushInterval := ed.config.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultConfig.FlushInterval
	}
	userKeysFlushInterval := ed.config.UserKeysFlushInterval
	if userKeysFlushInterval <= 0 {
		userKeysFlushInterval = DefaultConfig.UserKeysFlushInterval
	}
	flushTicker := time.NewTicker(flushInterval)
	usersResetTicker := time.NewTicker(userKeysFlushInterval)

	for {
		select {
		case message := <-inboxCh:
			switch m := message.(type) {
			case sendEventMessage:
				ed.processEvent(m.event, buffer, &userKeys)
			case flushEventsMessage:
				ed.triggerFlush(buffer, flushCh, workersGroup)
			case syncEventsMessage:
				workersGroup.Wait()
				m.replyCh <- struct{}{}
			case shutdownEventsMessage:
				flushTicker.Stop()
				usersResetTicker.Stop()
				workersGroup.Wait() // Wait for all in-progress flushes to complete
				close(flushCh)      // Causes all idle flush workers to terminate
				m.replyCh <- struct{}{}
				return
			}
		case <-flushTicker.C:
			ed.triggerFlush(buffer, flushCh, workersGroup)
		case <-usersResetTicker.C:
			userKeys.clear()
		}
	}
}

func (ed *eventDispatcher) processEvent(evt Event, buffer *eventBuffer, userKeys *lruCache) {
	// Every feature request event is counted in the summary, regardless of
	// whether a full event is sent.
	buffer.addToSummary(evt)

	// Decide whether to add the event to the payload. Feature events may be
	// added twice, once for the event (if tracked) and once for debugging.
	willAddFullEvent := false
	var debugEvent Event
	switch evt := evt.(type) {
	case FeatureRequestEvent:
		willAddFullEvent = evt.TrackEvents
		if ed.shouldDebugEvent(&evt) {
			de := evt
			de.Debug = true
			debugEvent = de
		}
	default:
		willAddFullEvent = true
	}

	// For each user we haven't seen before, an index event is added - unless
	// this is already an identify event, or the event will contain an inline
	// user. The index event is added before the event that referenced the user.
	if !(willAddFullEvent && ed.config.InlineUsersInEvents) {
		user := evt.GetBase().User
		alreadySeen := userKeys.add(user.GetKey())
		if !alreadySeen {
			if _, ok := evt.(IdentifyEvent); !ok {
				indexEvent := IndexEvent{
					BaseEvent{CreationDate: evt.GetBase().CreationDate, User: user},
				}
				buffer.addEvent(indexEvent)
			}
		}
	}
	if willAddFullEvent {
		buffer.addEvent(evt)
	}
	if debugEvent != nil {
		buffer.addEvent(debugEvent)
	}
}

func (ed *eventDispatcher) shouldDebugEvent(evt *FeatureRequestEvent) bool {
	if evt.DebugEventsUntilDate == nil {
		return false
	}
	// The "last known past time" comes from the last HTTP response we got
	// from the server. In case the client's time is set wrong, at least we
	// know that any expiration date earlier than that point is definitely in
	// the past. If there's any discrepancy, we want to err on the side of
	// cutting off event debugging sooner.
	ed.stateLock.Lock()
	defer ed.stateLock.Unlock()
	return *evt.DebugEventsUntilDate > ed.lastKnownPastTime &&
		*evt.DebugEventsUntilDate > now()
}

// recordServerTime notes a server clock reading, in epoch milliseconds, from
// any HTTP response the SDK has received. Debug event cutoff dates honor the
// server clock when it is available.
func (ed *eventDispatcher) recordServerTime(serverTimeMillis uint64) {
	ed.stateLock.Lock()
	defer ed.stateLock.Unlock()
	if serverTimeMillis > ed.lastKnownPastTime {
		ed.lastKnownPastTime = serverTimeMillis
	}
}

// Signal that we would like to do a flush as soon as possible.
func (ed *eventDispatcher) triggerFlush(buffer *eventBuffer, flushCh chan<- *flushPayload,
	workersGroup *sync.WaitGroup) {
	if ed.isDisabled() {
		buffer.clear()
		return
	}
	// Is there anything to flush?
	payload := buffer.getPayload()
	if len(payload.events) == 0 && len(payload.summary.counters) == 0 {
		return
	}
	workersGroup.Add(1) // Increment the count of active flushes
	select {
	case flushCh <- &payload:
		// If the channel wasn't full, then there is a worker available who
		// will pick up this flush payload and send it. The event buffer and
		// summary state can now be cleared from the main goroutine.
		buffer.clear()
	default:
		// We can't start a flush right now because we're waiting for one of
		// the workers to pick up the last one. Do not reset the buffer or
		// summary state; the events will go out with the next flush.
		workersGroup.Done()
	}
}

func (ed *eventDispatcher) isDisabled() bool {
	ed.stateLock.Lock()
	defer ed.stateLock.Unlock()
	return ed.disabled
}

func (ed *eventDispatcher) handleResponse(resp *http.Response) {
	if err := checkForHttpError(resp.StatusCode, resp.Request.URL.String()); err != nil {
		ed.config.Loggers.Error(httpErrorMessage(resp.StatusCode, "posting events", "some events were dropped"))
		if !isHTTPErrorRecoverable(resp.StatusCode) {
			ed.stateLock.Lock()
			defer ed.stateLock.Unlock()
			ed.disabled = true
		}
	} else {
		dt, err := http.ParseTime(resp.Header.Get("Date"))
		if err == nil {
			ed.recordServerTime(toUnixMillis(dt))
		}
	}
}

type sendEventsTask struct {
	client    *http.Client
	eventsURI string
	sdkKey    string
	config    Config
	formatter eventOutputFormatter

	// A payload that could not be delivered is retained and retried before
	// the next batch; events that arrive in the meantime accumulate into the
	// new batch.
	retainedPayload []byte
}

func startFlushTask(sdkKey string, config Config, client *http.Client, flushCh <-chan *flushPayload,
	workersGroup *sync.WaitGroup, responseFn func(*http.Response)) {
	ef := eventOutputFormatter{config: config}
	t := sendEventsTask{
		client:    client,
		eventsURI: config.EventsUri + bulkEventsPath,
		sdkKey:    sdkKey,
		config:    config,
		formatter: ef,
	}
	go t.run(flushCh, responseFn, workersGroup)
}

func (t *sendEventsTask) run(flushCh <-chan *flushPayload, responseFn func(*http.Response),
	workersGroup *sync.WaitGroup) {
	for {
		payload, more := <-flushCh
		if !more {
			// Channel has been closed - we're shutting down
			break
		}
		if t.retainedPayload != nil {
			if resp := t.postEvents(t.retainedPayload, "retried event payload"); resp != nil {
				t.retainedPayload = nil
				responseFn(resp)
			}
		}
		jsonPayload := t.formatter.makeOutputEventsJSON(payload.events, payload.summary)
		if jsonPayload != nil {
			resp := t.postEvents(jsonPayload, "event payload")
			if resp == nil {
				t.retainedPayload = jsonPayload
			} else {
				responseFn(resp)
			}
		}
		workersGroup.Done() // Decrement the count of in-progress flushes
	}
}

// postEvents delivers a serialized batch of events, making one retry attempt
// after a transient failure. It returns nil if delivery did not get a usable
// response, in which case the payload may be retried later.
func (t *sendEventsTask) postEvents(jsonPayload []byte, description string) *http.Response {
	payloadUUID, _ := uuid.NewRandom()
	payloadID := payloadUUID.String() // if NewRandom somehow failed, we'll just proceed with an empty string

	t.config.Loggers.Debugf("Sending %s: %s", description, jsonPayload)

	var resp *http.Response
	var respErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			t.config.Loggers.Warn("Will retry posting events after 1 second")
			time.Sleep(1 * time.Second)
		}
		req, reqErr := http.NewRequest("POST", t.eventsURI, bytes.NewReader(jsonPayload))
		if reqErr != nil {
			t.config.Loggers.Errorf("Unexpected error while creating event request: %+v", reqErr)
			return nil
		}

		addBaseHeaders(req, t.sdkKey, t.config)
		req.Header.Add("Content-Type", "application/json")
		req.Header.Add(eventSchemaHeader, currentEventSchema)
		req.Header.Add(payloadIDHeader, payloadID)

		resp, respErr = t.client.Do(req)

		if resp != nil && resp.Body != nil {
			_, _ = ioutil.ReadAll(resp.Body)
			_ = resp.Body.Close()
		}

		if respErr != nil {
			t.config.Loggers.Warnf("Unexpected error while sending events: %+v", respErr)
			continue
		} else if resp.StatusCode >= 400 && isHTTPErrorRecoverable(resp.StatusCode) {
			t.config.Loggers.Warnf("Received error status %d when sending events", resp.StatusCode)
			continue
		} else {
			break
		}
	}
	if respErr != nil {
		return nil
	}
	return resp
}

// nullEventProcessor is used when events are disabled.
type nullEventProcessor struct{}

func newNullEventProcessor() EventProcessor {
	return nullEventProcessor{}
}

func (n nullEventProcessor) SendEvent(e Event) {}

func (n nullEventProcessor) Flush() {}

func (n nullEventProcessor) Close() error {
	return nil
}
