// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command pivotrefresh recomputes the pivot tables of a workbook from a
// YAML layout.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		log.WithError(err).Error("pivotrefresh failed")
		os.Exit(1)
	}
}
