// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// settings are the resolved flag, environment and config file values.
type settings struct {
	Layout      string
	Engine      string
	Locale      string
	CacheDir    string
	Output      string
	LockTimeout time.Duration
	MemoryLimit string
	CSV         string
	CSVSheet    string
	Charset     string
}

func loadSettings(v *viper.Viper) settings {
	return settings{
		Layout:      v.GetString("layout"),
		Engine:      strings.ToLower(v.GetString("engine")),
		Locale:      v.GetString("locale"),
		CacheDir:    v.GetString("cache-dir"),
		Output:      v.GetString("output"),
		LockTimeout: v.GetDuration("lock-timeout"),
		MemoryLimit: v.GetString("memory-limit"),
		CSV:         v.GetString("csv"),
		CSVSheet:    v.GetString("csv-sheet"),
		Charset:     v.GetString("charset"),
	}
}

// newRootCmd builds the command tree over a viper instance.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var (
		cfgFile string
		verbose bool
	)
	root := &cobra.Command{
		Use:   "pivotrefresh",
		Short: "Recompute the pivot tables of a workbook",
		Long: `pivotrefresh rebuilds pivot tables described by a YAML layout from
their source ranges and writes them into the workbook.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
			if cfgFile == "" {
				return nil
			}
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return err
			}
			log.WithField("config", v.ConfigFileUsed()).Debug("Using config file")
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.StringP("layout", "l", "pivot.yaml", "YAML layout of the pivot tables")
	flags.String("engine", "excelize", "aggregate evaluator: excelize or duckdb")
	flags.String("locale", "", "locale ordering text and month names, e.g. es-ES")
	flags.String("cache-dir", "", "directory keeping pivot caches between runs")
	flags.Duration("lock-timeout", 30*time.Second, "how long to wait for the workbook lock")
	flags.String("memory-limit", "1GB", "DuckDB memory limit")
	flags.String("csv", "", "CSV file imported into the source sheet before refresh")
	flags.String("csv-sheet", "Sheet1", "sheet receiving the CSV import")
	flags.String("charset", "", "CSV text encoding, e.g. windows-1252 (default UTF-8)")
	for _, name := range []string{"layout", "engine", "locale", "cache-dir", "lock-timeout", "memory-limit", "csv", "csv-sheet", "charset"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	v.SetEnvPrefix("PIVOTREFRESH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(newRefreshCmd(v), newHeadersCmd(v))
	return root
}
