// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ux

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/olekukonko/tablewriter"
)

var Logger *UserLog

type UserLog struct {
	log    *zap.Logger
	writer io.Writer
}

func NewUserLog(log *zap.Logger, userwriter io.Writer) {
	if Logger == nil {
		Logger = &UserLog{
			log:    log,
			writer: userwriter,
		}
	}
}

// PrintToUser prints msg directly to the user writer (command output)
// Does NOT log to avoid duplication - logs should go to the log file separately
func (ul *UserLog) PrintToUser(msg string, args ...interface{}) {
	formattedMsg := fmt.Sprintf(msg, args...)
	_, _ = fmt.Fprintln(ul.writer, formattedMsg)
}

// Info logs an info message
func (ul *UserLog) Info(msg string, args ...interface{}) {
	ul.log.Info(fmt.Sprintf(msg, args...))
}

// Error logs an error message
func (ul *UserLog) Error(msg string, args ...interface{}) {
	ul.log.Error(fmt.Sprintf(msg, args...))
}

// GreenCheckmarkToUser prints a checkmark success message to the user
func (ul *UserLog) GreenCheckmarkToUser(msg string, args ...interface{}) {
	formattedMsg := fmt.Sprintf("✓ %s", fmt.Sprintf(msg, args...))
	_, _ = fmt.Fprintln(ul.writer, formattedMsg)
	ul.log.Info(formattedMsg)
}

// RedXToUser prints a red X error message to the user
func (ul *UserLog) RedXToUser(msg string, args ...interface{}) {
	formattedMsg := fmt.Sprintf("✗ %s", fmt.Sprintf(msg, args...))
	_, _ = fmt.Fprintln(ul.writer, formattedMsg)
	ul.log.Error(formattedMsg)
}

// PrintError prints a visible error message with ERROR prefix to the user
func (ul *UserLog) PrintError(msg string, args ...interface{}) {
	formattedMsg := fmt.Sprintf(msg, args...)
	_, _ = fmt.Fprintf(ul.writer, "\nERROR: %s\n", formattedMsg)
	ul.log.Error(formattedMsg)
}

// PrintTable renders rows to the user writer, with the header as the first
// row (tablewriter v1 does not expose SetHeader).
func (ul *UserLog) PrintTable(header []string, rows [][]string) {
	table := tablewriter.NewWriter(ul.writer)
	_ = table.Append(header)
	for _, row := range rows {
		_ = table.Append(row)
	}
	_ = table.Render()
}

// FormatUint renders a number with thousands separators for user output.
func FormatUint(input uint64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%d", input)
}

// NewNopUserLog returns a throwaway UserLog for tests.
func NewNopUserLog() *UserLog {
	return &UserLog{log: zap.NewNop(), writer: io.Discard}
}

// NewUserLogTo returns a UserLog writing user output to w, independent of
// the process-wide logger.
func NewUserLogTo(w io.Writer) *UserLog {
	return &UserLog{log: zap.NewNop(), writer: w}
}

// Default returns the process-wide UserLog, creating a stdout-backed one if
// none was configured yet.
func Default() *UserLog {
	if Logger == nil {
		NewUserLog(zap.NewNop(), os.Stdout)
	}
	return Logger
}
