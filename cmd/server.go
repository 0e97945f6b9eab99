/*
Copyright 2024 Brazil Data Cube Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	builder "github.com/brazil-data-cube/bdc-collection-builder-sub001"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/api"
)

func initializeRouter(b *builderInstance) *gin.Engine {
	return api.NewAPI(b.builder).Router()
}

// serverCommands defines the "start" command: the HTTP surface plus the
// periodic dispatcher and the stuck-activity sweeper.
func serverCommands(b *builderInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start builder server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			router := initializeRouter(b)

			go func() {
				if err := b.builder.StartDispatchLoop(ctx); err != nil && err != context.Canceled {
					log.Printf("dispatch loop stopped: %v", err)
				}
			}()

			sweeper := builder.NewStuckActivityRecovery(b.builder)
			sweeper.Start(ctx)
			defer sweeper.Stop()

			server := &http.Server{
				Addr:    ":" + b.cnf.Server.Port,
				Handler: router,
			}
			log.Printf("Starting server on %s", b.cnf.Server.Port)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		},
	}

	return cmd
}
