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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	builder "github.com/brazil-data-cube/bdc-collection-builder-sub001"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/config"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/database"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/notification"
)

// Builder represents the CLI application, encapsulating the root Cobra command.
type Builder struct {
	cmd *cobra.Command
}

// builderInstance holds the Builder instance and its configuration, shared by
// every subcommand.
type builderInstance struct {
	builder *builder.Builder
	cnf     *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and initializes the Builder instance before any
// command runs.
func preRun(app *builderInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("builder.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newBuilder, err := setupBuilder(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.builder = newBuilder
		app.cnf = cnf

		return nil
	}
}

// setupBuilder connects the data source and wires the orchestrator.
func setupBuilder(cfg *config.Configuration) (*builder.Builder, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newBuilder, err := builder.NewBuilder(db)
	if err != nil {
		return nil, fmt.Errorf("error creating builder: %v", err)
	}
	return newBuilder, nil
}

// NewCLI creates the command-line interface for the collection builder.
func NewCLI() *Builder {
	var configFile string
	b := &builderInstance{}

	var rootCmd = &cobra.Command{
		Use:   "builder",
		Short: "Satellite scene collection builder",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./builder.json", "Configuration file for the collection builder")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(dispatchCommands(b))
	rootCmd.AddCommand(restartCommands(b))
	rootCmd.AddCommand(migrateCommands(b))

	return &Builder{cmd: rootCmd}
}

func (w Builder) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
