// Package ldfiledata allows the LaunchDarkly client to read feature flag
// data from a file, for use in testing and development.
//
// To use it, configure the client with the factory returned by
// NewFileDataSourceFactory:
//
//	config := ld.DefaultConfig
//	config.SendEvents = false
//	config.UpdateProcessorFactory = ldfiledata.NewFileDataSourceFactory(
//	    ldfiledata.FilePaths("my-flags.json"))
//
// Data files may be in JSON or YAML, containing full flag definitions under
// "flags", simplified single-value flags under "flagValues", and segments
// under "segments":
//
//	flagValues:
//	  my-string-flag-key: "value-1"
//	flags:
//	  my-full-flag-key:
//	    on: true
//	    variations: [false, true]
//	    fallthrough: {variation: 1}
//
// Duplicate keys across files are an error. To reload files automatically
// when they change, use the Reloader option with the ldfilewatch package.
package ldfiledata

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"sync"

	yaml "gopkg.in/ghodss/yaml.v1"

	ld "gopkg.in/launchdarkly/go-server-sdk.v4"
	"gopkg.in/launchdarkly/go-server-sdk.v4/ldlog"
	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

// ReloaderFactory is a function type used with the Reloader option, to
// specify a mechanism for detecting when data files should be reloaded. Its
// standard implementation is ldfilewatch.WatchFiles.
type ReloaderFactory func(paths []string, loggers ldlog.Loggers, reload func(), closeCh <-chan struct{}) error

// FileDataSourceOption is an optional parameter for NewFileDataSourceFactory.
type FileDataSourceOption interface {
	apply(fs *fileDataSource) error
}

type filePathsOption struct {
	paths []string
}

func (o filePathsOption) apply(fs *fileDataSource) error {
	abs, err := absFilePaths(o.paths)
	if err != nil {
		return err
	}
	fs.absFilePaths = append(fs.absFilePaths, abs...)
	return nil
}

// FilePaths creates an option for NewFileDataSourceFactory, to specify the
// input data files. The paths may be any number of absolute or relative file
// paths.
func FilePaths(paths ...string) FileDataSourceOption {
	return filePathsOption{paths}
}

type reloaderOption struct {
	reloaderFactory ReloaderFactory
}

func (o reloaderOption) apply(fs *fileDataSource) error {
	fs.reloaderFactory = o.reloaderFactory
	return nil
}

// Reloader creates an option for NewFileDataSourceFactory, to specify a
// mechanism for reloading data files when they change.
func Reloader(reloaderFactory ReloaderFactory) FileDataSourceOption {
	return reloaderOption{reloaderFactory}
}

// NewFileDataSourceFactory returns a function to be used in the
// UpdateProcessorFactory configuration property, which makes the client read
// feature flag data from one or more files instead of connecting to
// LaunchDarkly. The client's feature store is initialized with the file
// contents; streaming and polling are disabled.
func NewFileDataSourceFactory(options ...FileDataSourceOption) func(string, ld.Config) (ld.UpdateProcessor, error) {
	return func(sdkKey string, config ld.Config) (ld.UpdateProcessor, error) {
		return newFileDataSource(config, options...)
	}
}

type fileDataSource struct {
	store           ld.FeatureStore
	loggers         ldlog.Loggers
	absFilePaths    []string
	reloaderFactory ReloaderFactory
	isInitialized   bool
	readyCh         chan<- struct{}
	readyOnce       sync.Once
	closeCh         chan struct{}
	closeOnce       sync.Once
	lock            sync.Mutex
}

func newFileDataSource(config ld.Config, options ...FileDataSourceOption) (*fileDataSource, error) {
	fs := &fileDataSource{
		store:   config.FeatureStore,
		loggers: config.Loggers,
		closeCh: make(chan struct{}),
	}
	for _, o := range options {
		if err := o.apply(fs); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

func absFilePaths(paths []string) ([]string, error) {
	absPaths := make([]string, 0, len(paths))
	for _, p := range paths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("unable to determine absolute path for '%s'", p)
		}
		absPaths = append(absPaths, absPath)
	}
	return absPaths, nil
}

// fileDataSet is the parsed content of one data file. The ghodss yaml
// package translates YAML into JSON before unmarshalling, so the same struct
// tags serve both formats.
type fileDataSet struct {
	Flags      map[string]*ld.FeatureFlag `json:"flags"`
	FlagValues map[string]ldvalue.Value   `json:"flagValues"`
	Segments   map[string]*ld.Segment     `json:"segments"`
}

func (fs *fileDataSource) Initialized() bool {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.isInitialized
}

func (fs *fileDataSource) Start(closeWhenReady chan<- struct{}) {
	fs.readyCh = closeWhenReady
	fs.reload()

	// If there is no reloader, the readiness signal is sent even if the
	// initial load failed: the files are not going to fix themselves. With a
	// reloader, the signal waits for the first successful load.
	if fs.reloaderFactory == nil {
		fs.signalStartComplete()
		return
	}

	if err := fs.reloaderFactory(fs.absFilePaths, fs.loggers, fs.reload, fs.closeCh); err != nil {
		fs.loggers.Errorf("Unable to start reloader: %s", err)
		fs.signalStartComplete()
	}
}

func (fs *fileDataSource) reload() {
	filesData := make([]fileDataSet, 0, len(fs.absFilePaths))
	for _, path := range fs.absFilePaths {
		data, err := readFile(path)
		if err != nil {
			fs.loggers.Errorf("Unable to load flags: %s [%s]", err, path)
			return
		}
		filesData = append(filesData, data)
	}
	storeData, err := mergeFileData(filesData...)
	if err != nil {
		fs.loggers.Errorf("Unable to load flags: %s", err)
		return
	}
	if err := fs.store.Init(storeData); err != nil {
		fs.loggers.Errorf("Unable to initialize feature store from file data: %s", err)
		return
	}
	fs.lock.Lock()
	fs.isInitialized = true
	fs.lock.Unlock()
	fs.signalStartComplete()
}

func (fs *fileDataSource) signalStartComplete() {
	fs.readyOnce.Do(func() {
		close(fs.readyCh)
	})
}

func readFile(path string) (fileDataSet, error) {
	var data fileDataSet
	bytes, err := ioutil.ReadFile(path) //nolint:gosec // G304: the file path comes from the application's own configuration
	if err != nil {
		return data, fmt.Errorf("unable to read file: %s", err)
	}
	if err = yaml.Unmarshal(bytes, &data); err != nil {
		return data, fmt.Errorf("unable to parse file: %s", err)
	}
	return data, nil
}

// makeFlagWithValue wraps a bare value from the flagValues section in a
// minimal always-on flag that serves that value to every user.
func makeFlagWithValue(key string, value ldvalue.Value) *ld.FeatureFlag {
	zero := 0
	return &ld.FeatureFlag{
		Key:         key,
		Version:     1,
		On:          true,
		Fallthrough: ld.VariationOrRollout{Variation: &zero},
		Variations:  []ldvalue.Value{value},
	}
}

func mergeFileData(allFileData ...fileDataSet) (map[ld.VersionedDataKind]map[string]ld.VersionedData, error) {
	all := map[ld.VersionedDataKind]map[string]ld.VersionedData{
		ld.Features: {},
		ld.Segments: {},
	}
	for _, d := range allFileData {
		for key, f := range d.Flags {
			// Keys come from the enclosing map, so the body may omit them.
			if f.Key == "" {
				f.Key = key
			}
			if err := addItem(all, ld.Features, key, f); err != nil {
				return nil, err
			}
		}
		for key, value := range d.FlagValues {
			if err := addItem(all, ld.Features, key, makeFlagWithValue(key, value)); err != nil {
				return nil, err
			}
		}
		for key, s := range d.Segments {
			if s.Key == "" {
				s.Key = key
			}
			if err := addItem(all, ld.Segments, key, s); err != nil {
				return nil, err
			}
		}
	}
	return all, nil
}

func addItem(all map[ld.VersionedDataKind]map[string]ld.VersionedData,
	kind ld.VersionedDataKind, key string, item ld.VersionedData) error {
	items := all[kind]
	if _, exists := items[key]; exists {
		return fmt.Errorf("%s '%s' is specified by multiple files", kind.GetNamespace(), key)
	}
	items[key] = item
	return nil
}

func (fs *fileDataSource) Close() error {
	fs.closeOnce.Do(func() {
		close(fs.closeCh)
	})
	return nil
}
