package activitypub

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fedipress/fedipress/store"
	"github.com/fedipress/fedipress/util"
)

// newTestRuntime builds a runtime over an in-memory store with a frozen
// clock and without the enqueue-triggered background drain, so tests drive
// the queue deterministically.
func newTestRuntime(t *testing.T, mutate func(*util.AppConfig)) *Runtime {
	t.Helper()

	conf := util.DefaultConf()
	conf.Conf.SiteBaseUrl = "https://example.com"
	conf.Conf.FederationTimeoutMs = 2000
	if mutate != nil {
		mutate(conf)
	}
	if err := conf.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}

	rt := NewRuntime(conf, store.NewMemStore(), log.New(io.Discard))
	rt.Queue.AutoDrain = false

	frozen := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rt.Now = func() time.Time { return frozen }

	return rt
}

// setClock repoints the runtime clock at an adjustable instant.
func setClock(rt *Runtime, at time.Time) *time.Time {
	current := at
	rt.Now = func() time.Time { return current }
	return &current
}
