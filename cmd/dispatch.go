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
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// dispatchCommands defines the "dispatch" command: one dispatch pass outside
// the periodic schedule.
func dispatchCommands(b *builderInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "run one dispatch pass",
		Run: func(cmd *cobra.Command, args []string) {
			report, err := b.builder.RunOnce(context.Background())
			if err != nil {
				log.Fatalf("dispatch pass failed: %v", err)
			}
			fmt.Printf("claimed %d, submitted %d, failed %d, released %d\n",
				report.Claimed, report.Submitted, report.Failed, report.Released)
		},
	}

	return cmd
}

// restartCommands defines the "restart" command: revive failed, stuck and
// suspended activities. With --id only that row is revived.
func restartCommands(b *builderInstance) *cobra.Command {
	var id int64

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "revive failed, stuck and suspended activities",
		Run: func(cmd *cobra.Command, args []string) {
			var target *int64
			if cmd.Flags().Changed("id") {
				target = &id
			}

			report, err := b.builder.Restart(context.Background(), target)
			if err != nil {
				log.Fatalf("restart failed: %v", err)
			}
			fmt.Printf("revived %d activities, submitted %d\n", report.Revived, report.Dispatch.Submitted)
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "restart a single activity by id")
	return cmd
}
