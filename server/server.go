// Copyright 2023 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mendersoftware/go-lib-micro/config"
	"github.com/mendersoftware/go-lib-micro/log"

	api "github.com/testfarm/devicehub/api/http"
	"github.com/testfarm/devicehub/api/tcp"
	"github.com/testfarm/devicehub/app"
	"github.com/testfarm/devicehub/client/adb"
	"github.com/testfarm/devicehub/client/nats"
	dconfig "github.com/testfarm/devicehub/config"
	"github.com/testfarm/devicehub/store"
	"github.com/testfarm/devicehub/utils"
)

// InitAndRun initializes the hub and runs it until a termination signal
// arrives. The data store may be nil for memory-only operation.
func InitAndRun(conf config.Reader, dataStore store.DataStore) error {
	ctx := context.Background()

	log.Setup(conf.GetBool(dconfig.SettingDebugLog))
	l := log.FromContext(ctx)

	var natsClient nats.Client
	if uri := conf.GetString(dconfig.SettingNatsURI); uri != "" {
		var err error
		natsClient, err = nats.NewClientWithDefaults(uri)
		if err != nil {
			return err
		}
		defer natsClient.Close()
	}

	adbClient := adb.NewClient(nil)
	selector := app.NewSelector(adbClient, adbClient)
	hub := app.New(dataStore, natsClient, selector, utils.RealClock{})

	router, err := api.NewRouter(hub, natsClient)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:    conf.GetString(dconfig.SettingListen),
		Handler: router,
	}

	allocateTimeout := time.Duration(
		conf.GetInt(dconfig.SettingAllocateTimeout)) * time.Second
	protocolSrv := tcp.NewServer(hub, tcp.Config{
		AllocateTimeout: allocateTimeout,
	})

	errChan := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	go func() {
		addr := conf.GetString(dconfig.SettingProtocolListen)
		if err := protocolSrv.ListenAndServe(addr); err != nil {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, unix.SIGINT, unix.SIGTERM)
	select {
	case sig := <-quit:
		l.Infof("received signal %s: shutting down", sig)
	case err := <-errChan:
		l.Errorf("server error: %s", err.Error())
	}

	protocolSrv.Shutdown()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxWithTimeout); err != nil {
		l.Error("Server Shutdown: ", err)
	}

	return nil
}
