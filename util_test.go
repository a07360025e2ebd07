package ldclient

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerDateHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Date", "Fri, 29 Mar 2019 17:55:35 GMT")

	millis, ok := parseServerDateHeader(resp)
	require.True(t, ok)
	assert.True(t, millis >= 1553880000000 && millis <= 1553911000000,
		"parsed time %d out of expected range", millis)
}

func TestParseServerDateHeaderFailures(t *testing.T) {
	_, ok := parseServerDateHeader(nil)
	assert.False(t, ok)

	resp := &http.Response{Header: http.Header{}}
	_, ok = parseServerDateHeader(resp)
	assert.False(t, ok)

	resp.Header.Set("Date", "not a date")
	_, ok = parseServerDateHeader(resp)
	assert.False(t, ok)
}

func TestCheckForHttpError(t *testing.T) {
	assert.NoError(t, checkForHttpError(200, "url"))
	assert.NoError(t, checkForHttpError(202, "url"))
	assert.Error(t, checkForHttpError(401, "url"))
	assert.Error(t, checkForHttpError(404, "url"))
	assert.Error(t, checkForHttpError(500, "url"))
}

func TestIsHTTPErrorRecoverable(t *testing.T) {
	for _, code := range []int{400, 408, 429, 500, 503} {
		assert.True(t, isHTTPErrorRecoverable(code), "status %d should be recoverable", code)
	}
	for _, code := range []int{401, 403, 404} {
		assert.False(t, isHTTPErrorRecoverable(code), "status %d should not be recoverable", code)
	}
}

func TestUnixMillisConversion(t *testing.T) {
	tm := unixMillisToUtcTime(1000)
	assert.Equal(t, int64(1), tm.Unix())
	assert.Equal(t, uint64(1000), toUnixMillis(tm))
}

func TestDescribeUserForErrorLog(t *testing.T) {
	user := NewUser("sensitive-key")
	assert.NotContains(t, describeUserForErrorLog(&user, false), "sensitive-key")
	assert.Contains(t, describeUserForErrorLog(&user, true), "sensitive-key")
}
