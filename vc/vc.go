// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package vc provides buildtime information.
//
// Version is a compile-time constant in version.go. That file is generated
// from the state of the git checkout (git describe style, e.g.
// v0.0.5-7-g9ae6d28-dirty) and has to be refreshed before release builds:
//
//	go generate ./vc
//
// Builds from a source archive keep the committed value or, when
// regenerated, fall back to v0.0.0-unknown.
package vc // import "github.com/google/perf_data_converter/vc"

//go:generate go run ../tools/genversion generate -o version.go
