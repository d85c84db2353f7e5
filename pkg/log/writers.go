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

package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	program  = "?"
	hostname = "?"
	pid      = -1
)

func init() {
	program = filepath.Base(os.Args[0])
	if host, err := os.Hostname(); err == nil {
		hostname = host
	}
	pid = os.Getpid()
}

// DefaultWriter returns an os.Stderr writer that is safe for concurrent use.
func DefaultWriter() io.Writer {
	return SynchronizedWriter(os.Stderr)
}

// LogRotationWriter returns an io.Writer that writes to rotating files in
// dirname, starting a fresh file whenever the current one would grow past
// sizeThreshold bytes. A <program>.log symlink in the directory tracks the
// newest file.
//
// A single write larger than the threshold still lands in one file; that is
// the only case where a log file exceeds the limit.
func LogRotationWriter(dirname string, sizeThreshold int) io.Writer {
	os.MkdirAll(dirname, os.ModePerm)
	return &logRotationWriter{
		dirname:       dirname,
		symlink:       fmt.Sprintf("%s.log", program),
		sizeThreshold: sizeThreshold,
	}
}

// SynchronizedWriter wraps w with a mutex for concurrent use.
func SynchronizedWriter(w io.Writer) io.Writer {
	return &synchronizedWriter{w: w}
}

// MultiWriter multiplexes writes to all the given writers.
func MultiWriter(w io.Writer, ws ...io.Writer) io.Writer {
	mw := &multiWriter{}
	mw.ws = append(mw.ws, w)
	mw.ws = append(mw.ws, ws...)
	return mw
}

// Log file names look like
// <program>.<host>.<date>.<time>.<pid>.log
func generateLogFilename(t time.Time) string {
	return fmt.Sprintf("%s.%s.%s.%d.log",
		program, hostname, t.Format("2006-01-02.15:04:05.999"), pid)
}

type logRotationWriter struct {
	dirname, symlink               string
	currentFileSize, sizeThreshold int

	currentFile *os.File
}

func (r *logRotationWriter) Write(b []byte) (n int, err error) {
	if r.currentFile == nil || r.currentFileSize+len(b) > r.sizeThreshold {
		fname := generateLogFilename(time.Now())
		f, err := os.Create(filepath.Join(r.dirname, fname))
		if err != nil {
			return 0, err
		}
		r.currentFile = f
		r.currentFileSize = 0
		// Best effort symlink upkeep.
		os.Remove(filepath.Join(r.dirname, r.symlink))
		os.Symlink(fname, filepath.Join(r.dirname, r.symlink))
	}

	n, err = r.currentFile.Write(b)
	r.currentFileSize += n
	return n, err
}

type synchronizedWriter struct {
	sync.Mutex
	w io.Writer
}

func (s *synchronizedWriter) Write(b []byte) (n int, err error) {
	s.Lock()
	n, err = s.w.Write(b)
	s.Unlock()
	return n, err
}

type multiWriter struct {
	ws []io.Writer
}

// Best effort write to every writer; returns the smallest n and the last
// non-nil error.
func (m *multiWriter) Write(b []byte) (n int, err error) {
	n = len(b)
	for _, w := range m.ws {
		nbytes, er := w.Write(b)
		if nbytes < n {
			n = nbytes
		}
		if er != nil {
			err = er
		}
	}
	return n, err
}
