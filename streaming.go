package ldclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	es "github.com/launchdarkly/eventsource"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldlog"
)

const (
	putEvent    = "put"
	patchEvent  = "patch"
	deleteEvent = "delete"

	streamingPath = "/all"

	streamMaxRetryDelay      = 30 * time.Second
	streamRetryResetInterval = 60 * time.Second
	streamJitterRatio        = 0.5
	defaultStreamRetryDelay  = 1 * time.Second
)

// streamProcessor is the streaming data source: it holds a server-sent-events
// connection open and applies each put/patch/delete message to the store.
// Reconnection uses capped exponential backoff with jitter, and never clears
// the store; evaluations continue against the last received data while the
// connection is down.
type streamProcessor struct {
	store              FeatureStore
	client             *http.Client
	config             Config
	sdkKey             string
	setInitializedOnce sync.Once
	isInitialized      bool
	halt               chan struct{}
	connectionAttempts int
	closeOnce          sync.Once
}

type putData struct {
	Path string  `json:"path"`
	Data allData `json:"data"`
}

type patchData struct {
	Path string `json:"path"`
	// Data is left unparsed until the path has identified the item kind.
	Data json.RawMessage `json:"data"`
}

type deleteData struct {
	Path    string `json:"path"`
	Version int    `json:"version"`
}

func newStreamProcessor(sdkKey string, config Config, client *http.Client) *streamProcessor {
	sp := &streamProcessor{
		store:  config.FeatureStore,
		config: config,
		sdkKey: sdkKey,
		halt:   make(chan struct{}),
	}
	if client != nil {
		// The stream connection must not use the regular request timeout,
		// which would sever it on every read deadline.
		streamClient := *client
		streamClient.Timeout = 0
		sp.client = &streamClient
	} else {
		sp.client = &http.Client{}
	}
	return sp
}

func (sp *streamProcessor) Initialized() bool {
	return sp.isInitialized
}

func (sp *streamProcessor) Start(closeWhenReady chan<- struct{}) {
	sp.config.Loggers.Info("Starting LaunchDarkly streaming connection")
	go sp.subscribe(closeWhenReady)
}

func (sp *streamProcessor) events(stream *es.Stream, closeWhenReady chan<- struct{}) {
	var readyOnce sync.Once
	notifyReady := func() {
		readyOnce.Do(func() {
			close(closeWhenReady)
		})
	}
	// Consider the stream started when we either receive the initial "put",
	// or give up on the connection entirely.
	defer notifyReady()

	for {
		select {
		case event, ok := <-stream.Events:
			if !ok {
				sp.config.Loggers.Info("Event stream closed")
				return
			}
			sp.handleEvent(event, notifyReady)
		case <-sp.halt:
			stream.Close()
			return
		}
	}
}

func (sp *streamProcessor) handleEvent(event es.Event, notifyReady func()) {
	switch event.Event() {
	case putEvent:
		var put putData
		if err := json.Unmarshal([]byte(event.Data()), &put); err != nil {
			sp.config.Loggers.Errorf("Unexpected error unmarshalling PUT json: %+v", err)
			return
		}
		err := sp.store.Init(makeAllVersionedDataMap(put.Data.Flags, put.Data.Segments))
		if err != nil {
			sp.config.Loggers.Errorf("Error initializing store: %+v", err)
			return
		}
		sp.setInitializedOnce.Do(func() {
			sp.config.Loggers.Info("LaunchDarkly streaming is active")
			sp.isInitialized = true
			notifyReady()
		})

	case patchEvent:
		var patch patchData
		if err := json.Unmarshal([]byte(event.Data()), &patch); err != nil {
			sp.config.Loggers.Errorf("Unexpected error unmarshalling PATCH json: %+v", err)
			return
		}
		kind, key, err := parsePath(patch.Path)
		if err != nil {
			sp.config.Loggers.Warnf("Unable to process event %s: %+v", event.Event(), err)
			return
		}
		item := kind.GetDefaultItem()
		if err = json.Unmarshal(patch.Data, item); err != nil {
			sp.config.Loggers.Errorf("Unexpected error unmarshalling JSON for %s item: %+v", kind.GetNamespace(), err)
			return
		}
		// The key in the path is authoritative; the one in the body must agree.
		versioned, ok := item.(VersionedData)
		if !ok || versioned.GetKey() != key {
			sp.config.Loggers.Warnf("Received patch with mismatched key for path %s", patch.Path)
			return
		}
		if err = sp.store.Upsert(kind, versioned); err != nil {
			sp.config.Loggers.Errorf("Unexpected error storing %s item: %+v", kind.GetNamespace(), err)
		}

	case deleteEvent:
		var data deleteData
		if err := json.Unmarshal([]byte(event.Data()), &data); err != nil {
			sp.config.Loggers.Errorf("Unexpected error unmarshalling DELETE json: %+v", err)
			return
		}
		kind, key, err := parsePath(data.Path)
		if err != nil {
			sp.config.Loggers.Warnf("Unable to process event %s: %+v", event.Event(), err)
			return
		}
		if err = sp.store.Delete(kind, key, data.Version); err != nil {
			sp.config.Loggers.Errorf("Unexpected error deleting %s item: %+v", kind.GetNamespace(), err)
		}

	default:
		sp.config.Loggers.Infof("Unexpected event found in stream: %s", event.Event())
	}
}

func (sp *streamProcessor) subscribe(closeWhenReady chan<- struct{}) {
	req, _ := http.NewRequest("GET", sp.config.StreamUri+streamingPath, nil)
	addBaseHeaders(req, sp.sdkKey, sp.config)
	sp.config.Loggers.Info("Connecting to LaunchDarkly stream")

	errorHandler := func(err error) es.StreamErrorHandlerResult {
		if hse, ok := err.(es.SubscriptionError); ok {
			sp.config.Loggers.Error(httpErrorMessage(hse.Code, "streaming connection", "will retry"))
			if !isHTTPErrorRecoverable(hse.Code) {
				return es.StreamErrorHandlerResult{CloseNow: true}
			}
			return es.StreamErrorHandlerResult{CloseNow: false}
		}
		sp.config.Loggers.Warnf("Unexpected error on stream connection: %+v (will retry)", err)
		return es.StreamErrorHandlerResult{CloseNow: false}
	}

	stream, err := es.SubscribeWithRequestAndOptions(req,
		es.StreamOptionHTTPClient(sp.client),
		es.StreamOptionReadTimeout(5*time.Minute),
		es.StreamOptionInitialRetry(defaultStreamRetryDelay),
		es.StreamOptionUseBackoff(streamMaxRetryDelay),
		es.StreamOptionUseJitter(streamJitterRatio),
		es.StreamOptionRetryResetInterval(streamRetryResetInterval),
		es.StreamOptionErrorHandler(errorHandler),
		es.StreamOptionCanRetryFirstConnection(-1),
		es.StreamOptionLogger(sp.config.Loggers.ForLevel(ldlog.Info)),
	)
	if err != nil {
		sp.config.Loggers.Errorf("Unable to establish streaming connection: %+v", err)
		close(closeWhenReady)
		return
	}
	sp.events(stream, closeWhenReady)
}

func (sp *streamProcessor) Close() error {
	sp.closeOnce.Do(func() {
		sp.config.Loggers.Info("Closing event stream")
		close(sp.halt)
	})
	return nil
}

// parsePath maps a streaming message path to a data kind and item key:
// "/flags/<key>" for flags, "/segments/<key>" for segments.
func parsePath(path string) (VersionedDataKind, string, error) {
	switch {
	case strings.HasPrefix(path, "/segments/"):
		return Segments, strings.TrimPrefix(path, "/segments/"), nil
	case strings.HasPrefix(path, "/flags/"):
		return Features, strings.TrimPrefix(path, "/flags/"), nil
	default:
		return nil, "", fmt.Errorf("unrecognized path %q", path)
	}
}
