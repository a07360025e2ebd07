package ldclient

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/gregjones/httpcache"
)

const latestAllPath = "/sdk/latest-all"

// allData is the shape of the combined flag and segment payload, as returned
// by the polling endpoint and by streaming "put" events.
type allData struct {
	Flags    map[string]*FeatureFlag `json:"flags"`
	Segments map[string]*Segment     `json:"segments"`
}

// requestor fetches flag data from the polling endpoint. Responses are cached
// by ETag, so an unchanged data set costs a 304 rather than a re-parse.
type requestor struct {
	sdkKey     string
	httpClient *http.Client
	config     Config

	// recordServerTime, if set, receives the server clock reading from each
	// successful response.
	recordServerTime func(uint64)
}

func newRequestor(sdkKey string, config Config, httpClient *http.Client) *requestor {
	baseTransport := http.DefaultTransport
	if httpClient != nil && httpClient.Transport != nil {
		baseTransport = httpClient.Transport
	}

	cachingTransport := &httpcache.Transport{
		Cache:               httpcache.NewMemoryCache(),
		MarkCachedResponses: true,
		Transport:           baseTransport,
	}

	cachingClient := cachingTransport.Client()
	cachingClient.Timeout = config.Timeout

	return &requestor{
		sdkKey:     sdkKey,
		httpClient: cachingClient,
		config:     config,
	}
}

// requestAll fetches the full data set. The second return value is true if
// the response was served from the local cache, meaning the data has not
// changed since the last request.
func (r *requestor) requestAll() (allData, bool, error) {
	var data allData
	body, cached, err := r.makeRequest(latestAllPath)
	if err != nil {
		return data, false, err
	}
	if cached {
		return data, true, nil
	}
	if err = json.Unmarshal(body, &data); err != nil {
		return data, false, err
	}
	return data, false, nil
}

func (r *requestor) makeRequest(resource string) ([]byte, bool, error) {
	req, reqErr := http.NewRequest("GET", r.config.BaseUri+resource, nil)
	if reqErr != nil {
		return nil, false, reqErr
	}
	addBaseHeaders(req, r.sdkKey, r.config)

	res, resErr := r.httpClient.Do(req)
	if resErr != nil {
		return nil, false, resErr
	}

	defer func() {
		_, _ = ioutil.ReadAll(res.Body)
		_ = res.Body.Close()
	}()

	if err := checkForHttpError(res.StatusCode, req.URL.String()); err != nil {
		return nil, false, err
	}

	if r.recordServerTime != nil {
		if serverTime, ok := parseServerDateHeader(res); ok {
			r.recordServerTime(serverTime)
		}
	}

	cached := res.Header.Get(httpcache.XFromCache) != ""

	body, ioErr := ioutil.ReadAll(res.Body)
	if ioErr != nil {
		return nil, false, ioErr
	}
	return body, cached, nil
}
