package ldclient

import (
	"sync"
	"time"
)

// pollingProcessor is the polling data source: it issues a GET for the full
// data set at most once per poll interval and replaces the store contents
// with each changed response. A failed poll leaves the store untouched, so
// evaluations continue against the last known data.
type pollingProcessor struct {
	store              FeatureStore
	requestor          *requestor
	config             Config
	setInitializedOnce sync.Once
	isInitialized      bool
	quit               chan struct{}
	closeOnce          sync.Once
}

func newPollingProcessor(config Config, requestor *requestor) *pollingProcessor {
	return &pollingProcessor{
		store:     config.FeatureStore,
		requestor: requestor,
		config:    config,
		quit:      make(chan struct{}),
	}
}

func (pp *pollingProcessor) Start(closeWhenReady chan<- struct{}) {
	pp.config.Loggers.Infof("Starting LaunchDarkly polling with interval: %+v", pp.config.PollInterval)

	ticker := newTickerWithInitialTick(pp.config.PollInterval)

	go func() {
		defer ticker.Stop()

		var readyOnce sync.Once
		notifyReady := func() {
			readyOnce.Do(func() {
				close(closeWhenReady)
			})
		}

		for {
			select {
			case <-pp.quit:
				notifyReady()
				return
			case <-ticker.C:
				if err := pp.poll(); err != nil {
					pp.config.Loggers.Errorf("Error when requesting feature updates: %+v", err)
					if hse, ok := err.(httpStatusError); ok && !isHTTPErrorRecoverable(hse.Code) {
						pp.config.Loggers.Error(httpErrorMessage(hse.Code, "polling request", "polling will be terminated"))
						notifyReady()
						return
					}
					continue
				}
				pp.setInitializedOnce.Do(func() {
					pp.isInitialized = true
					pp.config.Loggers.Info("First polling request successful")
					notifyReady()
				})
			}
		}
	}()
}

func (pp *pollingProcessor) poll() error {
	data, cached, err := pp.requestor.requestAll()
	if err != nil {
		return err
	}

	// A cached response means the data set has not changed, so there is
	// nothing to write to the store.
	if cached {
		return nil
	}
	return pp.store.Init(makeAllVersionedDataMap(data.Flags, data.Segments))
}

func (pp *pollingProcessor) Close() error {
	pp.closeOnce.Do(func() {
		close(pp.quit)
	})
	return nil
}

func (pp *pollingProcessor) Initialized() bool {
	return pp.isInitialized
}

// tickerWithInitialTick is a time.Ticker that also fires once immediately.
type tickerWithInitialTick struct {
	*time.Ticker
	C <-chan time.Time
}

func newTickerWithInitialTick(interval time.Duration) *tickerWithInitialTick {
	c := make(chan time.Time)
	ticker := time.NewTicker(interval)
	t := &tickerWithInitialTick{
		C:      c,
		Ticker: ticker,
	}
	go func() {
		c <- time.Now() // Ensure we do an initial poll immediately
		for tt := range ticker.C {
			c <- tt
		}
	}()
	return t
}
