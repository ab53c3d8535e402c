// Copyright The TrustTunnel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"net/http"

	"boa-agent/pkg/boaagent/container"
	"boa-agent/pkg/boaagent/monitor"
	"boa-agent/pkg/boaagent/orchestrator"
	"boa-agent/pkg/common/logutil"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// runServer configures and starts the boa-agent server.
func runServer(opt *Option) error {
	level, err := logrus.ParseLevel(opt.LogConfig.Level)
	if err != nil {
		return err
	}

	logutil.SetLevel(level)
	logutil.SetExpireDay(opt.LogConfig.ExpireDays)

	setupSignal()

	logGlobalConfig(opt)

	dockerClient, err := container.NewDockerClient(opt.ContainerConfig)
	if err != nil {
		return err
	}

	adapter := container.NewDockerAdapter(dockerClient)
	logger := logutil.GetLogger("orchestrator")

	go startMonitorServer(opt.MetricsAddr)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warnf("websocket upgrade failed: %v", err)
			return
		}

		entry := logrus.NewEntry(logger)
		orchestrator.New(conn, adapter, opt.ContainerPrefix, entry).Run()
	})

	server := &http.Server{
		Addr:    opt.ListenAddr,
		Handler: monitor.WrapPrometheus(r),
	}

	return server.ListenAndServe()
}

// startMonitorServer starts the standalone metrics listener.
func startMonitorServer(addr string) {
	r := mux.NewRouter()
	r.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	server.ListenAndServe()
}
