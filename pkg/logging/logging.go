// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package logging configures the shared logrus logger used across the
// loader, following the same subsystem-scoped WithField idiom Cilium
// uses throughout its own packages.
package logging

import "github.com/sirupsen/logrus"

// DefaultLogger is the base logger every subsystem field is derived from.
var DefaultLogger = logrus.New()

// Subsystem returns a scoped logger entry tagged with the given
// subsystem name, e.g. logging.Subsystem("elf").
func Subsystem(name string) *logrus.Entry {
	return DefaultLogger.WithField("subsys", name)
}

func init() {
	DefaultLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}
