package activitypub

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fedipress/fedipress/store"
	"github.com/fedipress/fedipress/util"
)

// Runtime bundles everything the federation core needs: config, record
// store, logger, HTTP client, key cache and delivery queue. All operations
// take it explicitly; tests construct a fresh one per case instead of
// resetting globals.
type Runtime struct {
	Conf   *util.AppConfig
	Store  store.Store
	Locks  *store.NamespaceLock
	Log    *log.Logger
	Client *http.Client
	Keys   *KeyCache
	Queue  *DeliveryQueue

	// Now is the clock; tests override it to drive retry schedules.
	Now func() time.Time

	// LogDir receives per-task NDJSON delivery logs; empty disables them.
	LogDir string
}

// NewRuntime wires a runtime from config and a store. The HTTP client
// carries the federation timeout; every outbound request goes through it.
func NewRuntime(conf *util.AppConfig, st store.Store, logger *log.Logger) *Runtime {
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: util.Name})
	}

	rt := &Runtime{
		Conf:  conf,
		Store: st,
		Locks: store.NewNamespaceLock(),
		Log:   logger,
		Client: &http.Client{
			Timeout: time.Duration(conf.Conf.FederationTimeoutMs) * time.Millisecond,
		},
		Now: time.Now,
	}
	rt.Keys = NewKeyCache(rt)
	rt.Queue = NewDeliveryQueue(rt)

	if fs, ok := st.(*store.FsStore); ok {
		rt.LogDir = filepath.Join(fs.Root(), "delivery-logs")
	}

	return rt
}

// FederationTimeout returns the per-request deadline for outbound calls.
func (rt *Runtime) FederationTimeout() time.Duration {
	return time.Duration(rt.Conf.Conf.FederationTimeoutMs) * time.Millisecond
}
