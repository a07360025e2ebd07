package ldclient

import (
	"net/http"
	"time"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldlog"
)

// Config exposes advanced configuration options for the LaunchDarkly client.
type Config struct {
	// BaseUri is the base URI of the polling service.
	BaseUri string
	// StreamUri is the base URI of the streaming service.
	StreamUri string
	// EventsUri is the base URI of the analytics event service.
	EventsUri string
	// Stream selects between the streaming data source (true, the default)
	// and the polling data source.
	Stream bool
	// SendEvents is true if the client should send analytics events. If it
	// is false the event processor is a null sink.
	SendEvents bool
	// Timeout is the deadline applied to each HTTP request.
	Timeout time.Duration
	// FlushInterval is how often the event buffer is flushed.
	FlushInterval time.Duration
	// PollInterval is how often the polling data source fetches flag data.
	// It cannot be set below MinimumPollInterval.
	PollInterval time.Duration
	// Capacity is the event buffer size: the client buffers up to this many
	// events in memory before flushing. If the capacity is exceeded before a
	// flush, events are discarded.
	Capacity int
	// Offline disables all network I/O: evaluations return the caller's
	// default value without reading the feature store, and no events are sent.
	Offline bool
	// UseLdd disables the streaming and polling data sources, relying on an
	// externally populated feature store (usually one fed by the relay
	// proxy in daemon mode).
	UseLdd bool
	// InlineUsersInEvents is true if the full user body should be included
	// in every analytics event, instead of index events plus user keys.
	InlineUsersInEvents bool
	// AllAttributesPrivate is true if all user attributes (other than the
	// key) should be redacted from analytics events.
	AllAttributesPrivate bool
	// PrivateAttributeNames marks a set of attribute names, built-in or
	// custom, as private for all users: their values are redacted from
	// analytics events.
	PrivateAttributeNames []string
	// UserKeysCapacity is the number of user keys the event processor
	// remembers at one time, for deduplicating index events.
	UserKeysCapacity int
	// UserKeysFlushInterval is how often the set of known user keys is
	// reset, after which index events will be generated again for returning
	// users.
	UserKeysFlushInterval time.Duration
	// FeatureStore holds the feature flag data. If nil, an in-memory store
	// is used.
	FeatureStore FeatureStore
	// EventProcessor, if non-nil, replaces the default analytics event
	// pipeline. Most applications will not need this; it is used mainly in
	// testing.
	EventProcessor EventProcessor
	// UpdateProcessor, if non-nil, replaces the default data source that
	// keeps the feature store in sync.
	UpdateProcessor UpdateProcessor
	// UpdateProcessorFactory, if non-nil, is called during client creation
	// to construct the data source; use this for data sources that need the
	// final configuration, such as the file data source.
	UpdateProcessorFactory func(sdkKey string, config Config) (UpdateProcessor, error)
	// Loggers is the destination for all SDK log output.
	Loggers ldlog.Loggers
	// LogEvaluationErrors is true if evaluation errors (such as a missing
	// flag key) should be logged, rather than only reported in the
	// evaluation detail.
	LogEvaluationErrors bool
	// LogUserKeyInErrors is true if user keys may appear in log messages.
	LogUserKeyInErrors bool
	// UserAgent is an optional string to append to the SDK's User-Agent
	// header value.
	UserAgent string
}

// MinimumPollInterval is the lowest allowed value of Config.PollInterval.
const MinimumPollInterval = 30 * time.Second

// DefaultConfig provides the default configuration options for the
// LaunchDarkly client. Copy it and modify fields as needed:
//
//	config := ld.DefaultConfig
//	config.FlushInterval = 10 * time.Second
//	client, err := ld.MakeCustomClient(sdkKey, config, 5*time.Second)
var DefaultConfig = Config{
	BaseUri:               "https://app.launchdarkly.com",
	StreamUri:             "https://stream.launchdarkly.com",
	EventsUri:             "https://events.launchdarkly.com",
	Stream:                true,
	SendEvents:            true,
	Timeout:               3 * time.Second,
	FlushInterval:         5 * time.Second,
	PollInterval:          MinimumPollInterval,
	Capacity:              10000,
	Offline:               false,
	UserKeysCapacity:      1000,
	UserKeysFlushInterval: 5 * time.Minute,
}

func (c Config) newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: c.Timeout,
	}
}
