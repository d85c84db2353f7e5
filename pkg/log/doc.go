// Copyright 2024 The Fuselite Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log implements modal execution logs. A logger emits at one or more
// modes (info, warn, error, fatal, debug); a process-wide mode mask filters
// what actually gets written, and individual files can override the global
// mask at runtime.
//
// Basic usage:
//
//	logger := log.New()
//	logger.Info("hello, world")
//
// The logger is configured with variadic options; writers compose:
//
//	writer := log.SynchronizedWriter(os.Stderr)
//	writer = log.MultiWriter(writer,
//		log.LogRotationWriter("/logs", 50<<20 /* 50 MiB */))
//
//	logf := log.Lmode | log.Ldate | log.Ltime | log.Lshortfile
//	logger := log.New(log.Writer(writer), log.Flags(logf))
//
// Headers have the form:
//
//	I240419 06:33:04.606396 conn.go:42] message
package log
