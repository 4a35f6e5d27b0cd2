// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	pivot "github.com/OmniMCP-AI/excelize-pivot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newHeadersCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "headers WORKBOOK",
		Short: "Print the row and column headers the layout produces, without saving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeaders(loadSettings(v), args[0], cmd.OutOrStdout())
		},
	}
}

func runHeaders(cfg settings, path string, w io.Writer) (err error) {
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
	for _, pt := range s.tables {
		fmt.Fprintf(w, "%s %s\n", pt.Name, pt.Address)
		for _, axis := range []struct {
			name    string
			headers []*pivot.AxisHeader
		}{{"row", pt.RowHeaders}, {"column", pt.ColumnHeaders}} {
			for _, h := range axis.headers {
				fmt.Fprintf(w, "%s\t%s\t%s\n", axis.name, h.Kind, describeHeader(pt, h))
			}
		}
	}
	return nil
}

// describeHeader renders a header path as its item labels.
func describeHeader(pt *pivot.PivotTable, h *pivot.AxisHeader) string {
	labels := make([]string, 0, len(h.Path))
	for _, seg := range h.Path {
		if seg.Field.IsDataFields() {
			labels = append(labels, pt.DataFields[seg.Item].Name)
			continue
		}
		v, err := pt.Cache.Fields[seg.Field.Index()].Items.Get(seg.Shared)
		if err != nil {
			labels = append(labels, "?")
			continue
		}
		labels = append(labels, v.Text())
	}
	if h.Kind == pivot.HeaderGrand && h.DataField >= 0 {
		labels = append(labels, pt.DataFields[h.DataField].Name)
	}
	return strings.Join(labels, " / ")
}
