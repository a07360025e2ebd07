package ldfilewatch

import (
	"io/ioutil"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ld "gopkg.in/launchdarkly/go-server-sdk.v4"
	"gopkg.in/launchdarkly/go-server-sdk.v4/ldfiledata"
	"gopkg.in/launchdarkly/go-server-sdk.v4/ldlog"
)

func writeFile(t *testing.T, filePath string, content string) {
	require.NoError(t, ioutil.WriteFile(filePath, []byte(content), 0600))
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestWatcherReloadsWhenFileChanges(t *testing.T) {
	dir, err := ioutil.TempDir("", "file-watch-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	filePath := path.Join(dir, "flags.json")
	writeFile(t, filePath, `{"flagValues": {"my-flag": "value1"}}`)

	store := ld.NewInMemoryFeatureStore(ldlog.NewDisabledLoggers())
	config := ld.DefaultConfig
	config.FeatureStore = store
	config.Loggers = ldlog.NewDisabledLoggers()

	factory := ldfiledata.NewFileDataSourceFactory(
		ldfiledata.FilePaths(filePath),
		ldfiledata.Reloader(WatchFiles))
	dataSource, err := factory("", config)
	require.NoError(t, err)
	defer dataSource.Close()

	closeWhenReady := make(chan struct{})
	dataSource.Start(closeWhenReady)
	select {
	case <-closeWhenReady:
	case <-time.After(time.Second):
		require.Fail(t, "timed out waiting for file data source to start")
	}

	flagHasValue := func(expected string) func() bool {
		return func() bool {
			item, _ := store.Get(ld.Features, "my-flag")
			if flag, ok := item.(*ld.FeatureFlag); ok && len(flag.Variations) == 1 {
				return flag.Variations[0].StringValue() == expected
			}
			return false
		}
	}
	require.True(t, waitFor(t, time.Second, flagHasValue("value1")))

	writeFile(t, filePath, `{"flagValues": {"my-flag": "value2"}}`)
	assert.True(t, waitFor(t, 3*time.Second, flagHasValue("value2")),
		"store should have been reinitialized with the new file contents")
}

func TestWatcherReloadsWhenFileAppearsLater(t *testing.T) {
	dir, err := ioutil.TempDir("", "file-watch-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	filePath := path.Join(dir, "flags.json")

	store := ld.NewInMemoryFeatureStore(ldlog.NewDisabledLoggers())
	config := ld.DefaultConfig
	config.FeatureStore = store
	config.Loggers = ldlog.NewDisabledLoggers()

	factory := ldfiledata.NewFileDataSourceFactory(
		ldfiledata.FilePaths(filePath),
		ldfiledata.Reloader(WatchFiles))
	dataSource, err := factory("", config)
	require.NoError(t, err)
	defer dataSource.Close()

	closeWhenReady := make(chan struct{})
	dataSource.Start(closeWhenReady)

	writeFile(t, filePath, `{"flagValues": {"my-flag": "value1"}}`)

	assert.True(t, waitFor(t, 3*time.Second, func() bool {
		item, _ := store.Get(ld.Features, "my-flag")
		return item != nil
	}), "store should have been initialized once the file appeared")
}
