// Package ldclient is the main package for the LaunchDarkly SDK.
//
// This package contains the types and methods that most applications will
// use. The "ldlog" package provides the SDK's logging abstraction, and the
// "ldvalue" package provides the representation of arbitrary JSON values
// used for flag variations and custom user attributes.
package ldclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

// Version is the client version.
const Version = "4.17.0"

// LDClient is the LaunchDarkly client. Client instances are thread-safe.
// Applications should instantiate a single instance for the lifetime of their
// application.
type LDClient struct {
	sdkKey         string
	config         Config
	eventProcessor EventProcessor
	dataSource     UpdateProcessor
	store          FeatureStore
}

// UpdateProcessor is the common interface for the data sources that keep the
// feature store in sync: streaming, polling, file data, or none.
type UpdateProcessor interface {
	// Initialized returns true once the data source has received a complete
	// data set and stored it.
	Initialized() bool
	// Start begins the background synchronization. The channel is closed
	// when the data source has either become initialized or permanently
	// failed.
	Start(closeWhenReady chan<- struct{})
	// Close stops the background synchronization.
	Close() error
}

type nullUpdateProcessor struct{}

func (n nullUpdateProcessor) Initialized() bool {
	return true
}

func (n nullUpdateProcessor) Close() error {
	return nil
}

func (n nullUpdateProcessor) Start(closeWhenReady chan<- struct{}) {
	close(closeWhenReady)
}

// Initialization errors
var (
	ErrInitializationTimeout = errors.New("timeout encountered waiting for LaunchDarkly client initialization")
	ErrInitializationFailed  = errors.New("LaunchDarkly client initialization failed")
	ErrClientNotInitialized  = errors.New("feature flag evaluation called before LaunchDarkly client initialization completed")
)

// MakeClient creates a new client instance that connects to LaunchDarkly with
// the default configuration. The duration parameter allows callers to block
// until the client has connected to LaunchDarkly and is properly initialized.
func MakeClient(sdkKey string, waitFor time.Duration) (*LDClient, error) {
	return MakeCustomClient(sdkKey, DefaultConfig, waitFor)
}

// MakeCustomClient creates a new client instance that connects to
// LaunchDarkly with a custom configuration. The duration parameter allows
// callers to block until the client has connected to LaunchDarkly and is
// properly initialized.
func MakeCustomClient(sdkKey string, config Config, waitFor time.Duration) (*LDClient, error) {
	if sdkKey == "" {
		return nil, errors.New("an SDK key must be specified")
	}

	closeWhenReady := make(chan struct{})

	config.BaseUri = strings.TrimRight(config.BaseUri, "/")
	config.StreamUri = strings.TrimRight(config.StreamUri, "/")
	config.EventsUri = strings.TrimRight(config.EventsUri, "/")
	if config.PollInterval < MinimumPollInterval {
		config.PollInterval = MinimumPollInterval
	}
	config.UserAgent = strings.TrimSpace("GoClient/" + Version + " " + config.UserAgent)
	config.Loggers.Init()
	config.Loggers.Infof("Starting LaunchDarkly client %s", Version)

	if config.FeatureStore == nil {
		config.FeatureStore = NewInMemoryFeatureStore(config.Loggers)
	}

	defaultHTTPClient := config.newHTTPClient()

	client := LDClient{
		sdkKey: sdkKey,
		config: config,
		store:  config.FeatureStore,
	}

	if config.EventProcessor != nil {
		client.eventProcessor = config.EventProcessor
	} else if config.SendEvents && !config.Offline {
		client.eventProcessor = newDefaultEventProcessor(sdkKey, config, defaultHTTPClient)
	} else {
		client.eventProcessor = newNullEventProcessor()
	}

	dataSource, err := createDataSource(sdkKey, config, defaultHTTPClient, client.eventProcessor)
	if err != nil {
		return nil, err
	}
	client.dataSource = dataSource
	client.dataSource.Start(closeWhenReady)

	if waitFor > 0 && !config.Offline && !config.UseLdd {
		config.Loggers.Infof("Waiting up to %d milliseconds for LaunchDarkly client to start...",
			waitFor/time.Millisecond)
	}
	timeout := time.After(waitFor)
	for {
		select {
		case <-closeWhenReady:
			if !client.dataSource.Initialized() {
				config.Loggers.Warn("LaunchDarkly client initialization failed")
				return &client, ErrInitializationFailed
			}
			config.Loggers.Info("Successfully initialized LaunchDarkly client!")
			return &client, nil
		case <-timeout:
			if waitFor > 0 {
				config.Loggers.Warn("Timeout encountered waiting for LaunchDarkly client initialization")
				return &client, ErrInitializationTimeout
			}
			go func() { <-closeWhenReady }() // Don't block the data source when not waiting
			return &client, nil
		}
	}
}

func createDataSource(
	sdkKey string,
	config Config,
	httpClient *http.Client,
	eventProcessor EventProcessor,
) (UpdateProcessor, error) {
	if config.Offline {
		config.Loggers.Info("Started LaunchDarkly client in offline mode")
		return nullUpdateProcessor{}, nil
	}
	if config.UpdateProcessor != nil {
		return config.UpdateProcessor, nil
	}
	if config.UpdateProcessorFactory != nil {
		return config.UpdateProcessorFactory(sdkKey, config)
	}
	if config.UseLdd {
		config.Loggers.Info("Started LaunchDarkly client in LDD mode")
		return nullUpdateProcessor{}, nil
	}
	if config.Stream {
		return newStreamProcessor(sdkKey, config, httpClient), nil
	}
	config.Loggers.Warn("You should only disable the streaming API if instructed to do so by LaunchDarkly support")
	requestor := newRequestor(sdkKey, config, httpClient)
	if dep, ok := eventProcessor.(*defaultEventProcessor); ok {
		requestor.recordServerTime = dep.recordServerTime
	}
	return newPollingProcessor(config, requestor), nil
}

// Identify reports details about a user.
func (client *LDClient) Identify(user User) error {
	if user.GetKey() == "" {
		client.config.Loggers.Warn("Identify called with empty user key!")
		return nil
	}
	client.eventProcessor.SendEvent(NewIdentifyEvent(user))
	return nil
}

// Track reports that a user has performed an event. The key parameter is
// defined by the application and appears in analytics reports.
func (client *LDClient) Track(key string, user User) error {
	return client.TrackData(key, user, ldvalue.Null())
}

// TrackData reports that a user has performed an event, and associates it
// with custom data of any JSON type.
func (client *LDClient) TrackData(key string, user User, data ldvalue.Value) error {
	if user.GetKey() == "" {
		client.config.Loggers.Warn("Track called with empty user key!")
		return nil
	}
	client.eventProcessor.SendEvent(newCustomEvent(key, user, data, false, 0))
	return nil
}

// TrackMetric reports that a user has performed an event, and associates it
// with a numeric metric value and optionally other custom data.
func (client *LDClient) TrackMetric(key string, user User, metricValue float64, data ldvalue.Value) error {
	if user.GetKey() == "" {
		client.config.Loggers.Warn("Track called with empty user key!")
		return nil
	}
	client.eventProcessor.SendEvent(newCustomEvent(key, user, data, true, metricValue))
	return nil
}

// IsOffline returns whether the LaunchDarkly client is in offline mode.
func (client *LDClient) IsOffline() bool {
	return client.config.Offline
}

// SecureModeHash generates the secure mode hash value for a user, for use
// with client-side SDKs in secure mode.
func (client *LDClient) SecureModeHash(user User) string {
	key := []byte(client.sdkKey)
	h := hmac.New(sha256.New, key)
	_, _ = h.Write([]byte(user.GetKey()))
	return hex.EncodeToString(h.Sum(nil))
}

// Initialized returns whether the LaunchDarkly client has received an initial
// set of feature flag data.
func (client *LDClient) Initialized() bool {
	return client.IsOffline() || client.config.UseLdd || client.dataSource.Initialized()
}

// Close shuts down the LaunchDarkly client. After calling this, the client
// should no longer be used. The method blocks until all pending analytics
// events (if any) have been sent.
func (client *LDClient) Close() error {
	client.config.Loggers.Info("Closing LaunchDarkly client")
	_ = client.eventProcessor.Close()
	_ = client.dataSource.Close()
	return nil
}

// Flush tells the client that all pending analytics events (if any) should be
// delivered as soon as possible. Flushing is asynchronous, so this method
// returns before the flush has completed; however, if you call Close(),
// events are guaranteed to be sent before that method returns.
func (client *LDClient) Flush() {
	client.eventProcessor.Flush()
}

// AllFlags returns a map from feature flag keys to values for a given user.
// If the result of a flag's evaluation would have returned the default
// variation, the value in the map will be a null Value. This method does not send
// analytics events back to LaunchDarkly.
func (client *LDClient) AllFlags(user User) map[string]ldvalue.Value {
	state := client.AllFlagsState(user)
	return state.ToValuesMap()
}

// AllFlagsState returns an object that encapsulates the state of all feature
// flags for a given user, including the flag values and also metadata that
// can be used on the front end. You may pass any combination of
// ClientSideOnly, WithReasons, and DetailsOnlyForTrackedFlags as optional
// parameters to control what data is included.
//
// The most common use case for this method is to bootstrap a set of
// client-side feature flags from a back-end service. This method does not
// send analytics events back to LaunchDarkly.
func (client *LDClient) AllFlagsState(user User, options ...FlagsStateOption) FeatureFlagsState {
	valid := true
	if client.IsOffline() {
		client.config.Loggers.Warn("Called AllFlagsState in offline mode. Returning empty state")
		valid = false
	} else if user.GetKey() == "" {
		client.config.Loggers.Warn("Called AllFlagsState with empty user key. Returning empty state")
		valid = false
	} else if !client.Initialized() {
		if client.store.Initialized() {
			client.config.Loggers.Warn("Called AllFlagsState before client initialization; using last known values from feature store")
		} else {
			client.config.Loggers.Warn("Called AllFlagsState before client initialization. Feature store not available; returning empty state")
			valid = false
		}
	}

	if !valid {
		return FeatureFlagsState{valid: false}
	}

	items, err := client.store.All(Features)
	if err != nil {
		client.config.Loggers.Warn("Unable to fetch flags from feature store. Returning empty state. Error: " + err.Error())
		return FeatureFlagsState{valid: false}
	}

	state := newFeatureFlagsState()
	clientSideOnly := hasFlagsStateOption(options, ClientSideOnly)
	withReasons := hasFlagsStateOption(options, WithReasons)
	detailsOnlyIfTracked := hasFlagsStateOption(options, DetailsOnlyForTrackedFlags)
	for _, item := range items {
		if flag, ok := item.(*FeatureFlag); ok {
			if clientSideOnly && !flag.ClientSide {
				continue
			}
			detail, _ := flag.EvaluateDetail(user, client.store, false)
			var reason EvaluationReason
			if withReasons {
				reason = detail.Reason
			}
			state.addFlag(flag, detail.Value, detail.VariationIndex, reason, detailsOnlyIfTracked)
		}
	}

	return state
}

// BoolVariation returns the value of a boolean feature flag for a given user.
// It returns defaultVal if there is an error, if the flag doesn't exist, or
// if the flag is off and has no off variation.
func (client *LDClient) BoolVariation(key string, user User, defaultVal bool) (bool, error) {
	detail, err := client.variation(key, user, ldvalue.Bool(defaultVal), true, false)
	return detail.Value.BoolValue(), err
}

// BoolVariationDetail is the same as BoolVariation, but also returns further
// information about how the value was calculated. The "reason" data will
// also be included in analytics events.
func (client *LDClient) BoolVariationDetail(key string, user User, defaultVal bool) (bool, EvaluationDetail, error) {
	detail, err := client.variation(key, user, ldvalue.Bool(defaultVal), true, true)
	return detail.Value.BoolValue(), detail, err
}

// IntVariation returns the value of a feature flag (whose variations are
// integers) for the given user. If the flag variation has a numeric value
// that is not an integer, it is rounded toward zero.
func (client *LDClient) IntVariation(key string, user User, defaultVal int) (int, error) {
	detail, err := client.variation(key, user, ldvalue.Int(defaultVal), true, false)
	return detail.Value.IntValue(), err
}

// IntVariationDetail is the same as IntVariation, but also returns further
// information about how the value was calculated.
func (client *LDClient) IntVariationDetail(key string, user User, defaultVal int) (int, EvaluationDetail, error) {
	detail, err := client.variation(key, user, ldvalue.Int(defaultVal), true, true)
	return detail.Value.IntValue(), detail, err
}

// Float64Variation returns the value of a feature flag (whose variations are
// numbers) for the given user.
func (client *LDClient) Float64Variation(key string, user User, defaultVal float64) (float64, error) {
	detail, err := client.variation(key, user, ldvalue.Float64(defaultVal), true, false)
	return detail.Value.Float64Value(), err
}

// Float64VariationDetail is the same as Float64Variation, but also returns
// further information about how the value was calculated.
func (client *LDClient) Float64VariationDetail(key string, user User, defaultVal float64) (float64, EvaluationDetail, error) {
	detail, err := client.variation(key, user, ldvalue.Float64(defaultVal), true, true)
	return detail.Value.Float64Value(), detail, err
}

// StringVariation returns the value of a feature flag (whose variations are
// strings) for the given user.
func (client *LDClient) StringVariation(key string, user User, defaultVal string) (string, error) {
	detail, err := client.variation(key, user, ldvalue.String(defaultVal), true, false)
	return detail.Value.StringValue(), err
}

// StringVariationDetail is the same as StringVariation, but also returns
// further information about how the value was calculated.
func (client *LDClient) StringVariationDetail(key string, user User, defaultVal string) (string, EvaluationDetail, error) {
	detail, err := client.variation(key, user, ldvalue.String(defaultVal), true, true)
	return detail.Value.StringValue(), detail, err
}

// JSONVariation returns the value of a feature flag for the given user,
// allowing the value to be of any JSON type.
func (client *LDClient) JSONVariation(key string, user User, defaultVal ldvalue.Value) (ldvalue.Value, error) {
	detail, err := client.variation(key, user, defaultVal, false, false)
	return detail.Value, err
}

// JSONVariationDetail is the same as JSONVariation, but also returns further
// information about how the value was calculated.
func (client *LDClient) JSONVariationDetail(key string, user User, defaultVal ldvalue.Value) (ldvalue.Value, EvaluationDetail, error) {
	detail, err := client.variation(key, user, defaultVal, false, true)
	return detail.Value, detail, err
}

// variation is the generic method underlying all of the Variation entry
// points. It performs the evaluation, queues the analytics events, and maps
// every failure to the caller's default value with an error reason.
func (client *LDClient) variation(
	key string,
	user User,
	defaultVal ldvalue.Value,
	checkType bool,
	sendReasonsInEvents bool,
) (EvaluationDetail, error) {
	if client.IsOffline() {
		return newEvaluationError(defaultVal, EvalErrorClientNotReady), nil
	}
	detail, flag, err := client.evaluateInternal(key, user, defaultVal, sendReasonsInEvents)
	if err != nil {
		detail.Value = defaultVal
		detail.VariationIndex = nil
	} else if checkType && defaultVal.Type() != ldvalue.NullType && detail.Value.Type() != defaultVal.Type() {
		detail = newEvaluationError(defaultVal, EvalErrorWrongType)
		err = fmt.Errorf("flag %s returned a value of an unexpected type", key)
	}

	var evt FeatureRequestEvent
	if flag == nil {
		evt = newUnknownFlagEvent(key, user, defaultVal, detail.Reason, sendReasonsInEvents)
	} else {
		evt = newSuccessfulEvalEvent(flag, user, detail.VariationIndex, detail.Value, defaultVal,
			detail.Reason, sendReasonsInEvents, nil)
	}
	client.eventProcessor.SendEvent(evt)

	return detail, err
}

// evaluateInternal performs all the steps of evaluation except for sending
// the main feature request event; events for prerequisites are sent here so
// that they always precede it.
func (client *LDClient) evaluateInternal(
	key string,
	user User,
	defaultVal ldvalue.Value,
	sendReasonsInEvents bool,
) (EvaluationDetail, *FeatureFlag, error) {
	evalErrorResult := func(errKind EvalErrorKind, flag *FeatureFlag, err error) (EvaluationDetail, *FeatureFlag, error) {
		detail := newEvaluationError(defaultVal, errKind)
		if client.config.LogEvaluationErrors {
			client.config.Loggers.Warn(err)
		}
		return detail, flag, err
	}

	if key == "" {
		return evalErrorResult(EvalErrorNullKey, nil, errors.New("flag evaluation called with empty flag key"))
	}

	if user.GetKey() == "" {
		return evalErrorResult(EvalErrorUserNotSpecified, nil,
			fmt.Errorf("user.Key cannot be empty when evaluating flag: %s", key))
	}

	if !client.Initialized() {
		if client.store.Initialized() {
			client.config.Loggers.Warn("Feature flag evaluation called before LaunchDarkly client initialization completed; using last known values from feature store")
		} else {
			return evalErrorResult(EvalErrorClientNotReady, nil, ErrClientNotInitialized)
		}
	}

	data, storeErr := client.store.Get(Features, key)
	if storeErr != nil {
		client.config.Loggers.Errorf("Encountered error fetching feature from store: %+v", storeErr)
		detail := newEvaluationError(defaultVal, EvalErrorStoreError)
		return detail, nil, storeErr
	}

	var feature *FeatureFlag
	if data != nil {
		var ok bool
		feature, ok = data.(*FeatureFlag)
		if !ok {
			return evalErrorResult(EvalErrorException, nil,
				fmt.Errorf("unexpected data type (%T) found in store for feature key: %s. Returning default value", data, key))
		}
	} else {
		return evalErrorResult(EvalErrorFlagNotFound, nil,
			fmt.Errorf("unknown feature key: %s. Verify that this feature key exists. Returning default value", key))
	}

	detail, prereqEvents := feature.EvaluateDetail(user, client.store, sendReasonsInEvents)
	if detail.Reason.Kind == EvalReasonError && client.config.LogEvaluationErrors {
		client.config.Loggers.Warnf("flag evaluation for %s failed with error %s, default value was returned",
			key, detail.Reason.ErrorKind)
	}
	if detail.IsDefaultValue() {
		detail.Value = defaultVal
	}
	for _, event := range prereqEvents {
		client.eventProcessor.SendEvent(event)
	}
	return detail, feature, nil
}
