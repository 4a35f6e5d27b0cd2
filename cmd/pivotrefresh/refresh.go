// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"errors"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRefreshCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh WORKBOOK",
		Short: "Refresh the pivot tables of a workbook and save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(loadSettings(v), args[0])
		},
	}
	cmd.Flags().StringP("output", "o", "", "save to this file instead of the workbook")
	_ = v.BindPFlag("output", cmd.Flags().Lookup("output"))
	return cmd
}

// runRefresh refreshes every table of the layout and saves the workbook.
// The workbook is saved only when all tables refreshed.
func runRefresh(cfg settings, path string) (err error) {
	s, err := openSession(cfg, path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()
	if err := s.build(); err != nil {
		return err
	}
	if err := s.refresh(); err != nil {
		return err
	}
	output := cfg.Output
	if output == "" {
		output = path
	}
	if err := writeFile(output, func(w io.Writer) error {
		_, err := s.file.WriteTo(w)
		return err
	}); err != nil {
		return err
	}
	if err := s.saveCaches(); err != nil {
		return err
	}
	log.WithFields(log.Fields{"workbook": output, "tables": len(s.tables)}).Info("Saved workbook")
	return nil
}
