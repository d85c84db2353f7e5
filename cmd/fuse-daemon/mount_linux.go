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

package fusedaemon

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/fuselite/fuselite/pkg/fuse"
	"github.com/fuselite/fuselite/pkg/log"
	"github.com/fuselite/fuselite/pkg/memfs"
)

// mount opens /dev/fuse and attaches it at mountPoint. The kernel learns
// the device fd and the permission policy through the mount data string;
// cfg.Mount is completed with the fd and root mode actually used.
func mount(logger *log.Logger, mountPoint string, cfg *memfs.Config) (*fuse.Conn, error) {
	dev, err := os.OpenFile("/dev/fuse", os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	cfg.Mount.FD = int(dev.Fd())
	cfg.Mount.RootMode = memfs.DefaultRootMode
	if cfg.RootMode != 0 {
		cfg.Mount.RootMode = 040000 | (cfg.RootMode & 07777)
	}

	flags := uintptr(unix.MS_NOSUID | unix.MS_NODEV)
	if err := unix.Mount("fuselite", mountPoint, "fuse.fuselite", flags, cfg.Mount.String()); err != nil {
		dev.Close()
		return nil, err
	}

	logger.Infof("mounted point: %s", mountPoint)
	return fuse.NewConn(dev), nil
}

func unmount(logger *log.Logger, mountPoint string) error {
	if err := unix.Unmount(mountPoint, 0); err != nil {
		return err
	}
	logger.Infof("unmounted point: %s", mountPoint)
	return nil
}
