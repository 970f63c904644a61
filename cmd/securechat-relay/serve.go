// SecureChat - End-to-End Encrypted Chat
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SecureChat.
//
// SecureChat is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SecureChat is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SecureChat. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/securechat/internal/config"
	"github.com/sage-x-project/securechat/internal/logger"
	"github.com/sage-x-project/securechat/internal/metrics"
	"github.com/sage-x-project/securechat/internal/repo"
	"github.com/sage-x-project/securechat/pkg/relay"
	wsgateway "github.com/sage-x-project/securechat/pkg/transport/websocket"
)

var (
	configPath string
	listenAddr string
	wsAddr     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, os.Getenv("SECURECHAT_ENV"))
		if err != nil {
			return err
		}

		log := logger.NewDefaultLogger()

		addr := listenAddr
		if addr == "" {
			addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		}

		r := relay.New(cfg, log,
			repo.NewMemoryUserRepo(),
			repo.NewMemoryGroupRepo(),
			repo.NewMemoryContactRepo())

		bound, err := r.Listen(addr)
		if err != nil {
			return err
		}
		log.Info("relay started", logger.String("addr", bound))

		if wsAddr != "" {
			gateway := wsgateway.NewServer(r.ConnHandler())
			mux := http.NewServeMux()
			mux.Handle("/ws", gateway.Handler())
			go func() {
				if err := http.ListenAndServe(wsAddr, mux); err != nil {
					log.Warn("websocket gateway stopped", logger.Error(err))
				}
			}()
			log.Info("websocket gateway listening", logger.String("addr", wsAddr))
		}

		if cfg.Metrics.Enabled {
			go func() {
				if err := metrics.StartServer(cfg.Metrics.Addr); err != nil {
					log.Warn("metrics server stopped", logger.Error(err))
				}
			}()
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		log.Info("shutting down")
		return r.Close()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&wsAddr, "ws-listen", "", "optional websocket gateway address (e.g. :8666)")
	rootCmd.AddCommand(serveCmd)
}
