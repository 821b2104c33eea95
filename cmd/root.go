// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd is VexFS's cobra-based CLI, mirroring the teacher's cmd/
// package: flags bound through cfg.BindFlags and an optional --config-file
// unmarshalled into the same cfg.Config the mount subcommand consumes.
// Status/dashboard subcommands are a spec Non-goal; mount is the only
// entry point this package wires up.
package cmd

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lspecian/vexfs-sub013/cfg"
	"github.com/lspecian/vexfs-sub013/logger"
)

var (
	cfgFile       string
	crashLog      string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	Settings      cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "vexfs",
	Short: "VexFS embeds HNSW-based approximate nearest neighbor search into a filesystem's storage layer",
	Long: `VexFS is a filesystem that stores vectors alongside ordinary files and
serves approximate nearest neighbor queries directly out of its storage
layer, without a side-car database.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		return cfg.Validate(&Settings)
	},
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// useYAMLTags makes viper.Unmarshal match keys against cfg.Config's yaml
// struct tags, the hyphenated names cfg.BindFlags binds flags under.
func useYAMLTags(c *mapstructure.DecoderConfig) { c.TagName = "yaml" }

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&Settings, viper.DecodeHook(cfg.DecodeHook()), useYAMLTags)
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file %q: %w", cfgFile, err)
		return
	}
	unmarshalErr = viper.Unmarshal(&Settings, viper.DecodeHook(cfg.DecodeHook()), useYAMLTags)
}

// initCrashLog wires --crash-log once cobra has parsed flags; it runs as a
// cobra.OnInitialize hook rather than inside Execute so crashLog has already
// been populated by pflag parsing.
func initCrashLog() {
	if crashLog != "" {
		debug.SetCrashOutput(&CrashWriter{fileName: crashLog}, debug.CrashOptions{})
	}
}

func init() {
	cobra.OnInitialize(initConfig, initCrashLog)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file overriding defaults.")
	rootCmd.PersistentFlags().StringVar(&crashLog, "crash-log", "", "If set, panics are additionally appended to this file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
	logger.Init("text", "INFO")
	rootCmd.AddCommand(mountCmd)
}
