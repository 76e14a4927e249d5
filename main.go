package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/fedipress/fedipress/activitypub"
	"github.com/fedipress/fedipress/store"
	"github.com/fedipress/fedipress/util"
	"github.com/fedipress/fedipress/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          util.Name,
	})

	st, err := openStore(conf)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	rt := activitypub.NewRuntime(conf, st, logger)

	var stopWorker func()
	if conf.Conf.FederationEnabled {
		stopWorker = activitypub.StartDeliveryWorker(rt)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := web.Run(rt); err != nil {
			log.Fatal(err)
		}
	}()

	<-done
	logger.Info("Stopping federation server")
	if stopWorker != nil {
		stopWorker()
	}
}

func openStore(conf *util.AppConfig) (store.Store, error) {
	dataDir, err := util.ResolveDataDir(conf.Conf.ActivityPubDir)
	if err != nil {
		return nil, err
	}

	switch conf.Conf.StorageBackend {
	case "sqlite":
		return store.NewSqlStore(filepath.Join(dataDir, "fedipress.db"))
	case "memory":
		return store.NewMemStore(), nil
	default:
		return store.NewFsStore(dataDir)
	}
}
