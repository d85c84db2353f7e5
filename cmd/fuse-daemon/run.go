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
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fuselite/fuselite/pkg/cli"
	"github.com/fuselite/fuselite/pkg/log"
	"github.com/fuselite/fuselite/pkg/memfs"
)

var FuseDaemonCmd = &cli.Command{
	Run:       fuseDaemonCmdRun,
	UsageLine: "fuse-daemon [-allow-other] [-default-permissions] [-enable-write-ops] [-seed-manifest file] [-unmount] [logger flags] <mount-point>",
	Short:     "serve an in-memory filesystem at the specified mount point",
	Long: `
Fuse-daemon mounts and serves a small in-memory filesystem. The filesystem
starts out with a single hello.txt file in the root directory; a YAML seed
manifest can add more. Mutating operations are refused with EACCES unless
-enable-write-ops is given.

The -allow-other and -default-permissions flags correspond to the fuse mount
options of the same name and select the permission policy: with neither,
only the mount owner may use the filesystem; with both, full owner/group/
other mode bit checks apply; with -allow-other alone, no checks apply.

A filesystem mounted by an earlier invocation is detached with -unmount.
    `,
}

func fuseDaemonCmdRun(cmd *cli.Command, args []string) error {
	var (
		allowOtherFlag   bool
		defaultPermsFlag bool
		enableWritesFlag bool
		exitAfterInit    bool
		stopOnDestroy    bool
		rootModeFlag     string
		helloModeFlag    string
		maxFileSizeFlag  uint64
		seedManifestFlag string
		unmountFlag      bool

		logDirFlag         string
		suppressStderrFlag bool
		logLevelFlag       string
	)

	cmd.FlagSet.BoolVar(&allowOtherFlag, "allow-other", false,
		"Permit processes of other users to access the filesystem")
	cmd.FlagSet.BoolVar(&defaultPermsFlag, "default-permissions", false,
		"Check owner/group/other permission bits on every operation")
	cmd.FlagSet.BoolVar(&enableWritesFlag, "enable-write-ops", false,
		"Allow mutating operations (create, write, remove, rename, truncate)")
	cmd.FlagSet.BoolVar(&exitAfterInit, "exit-after-init", false,
		"Exit cleanly right after the INIT handshake (handshake probe)")
	cmd.FlagSet.BoolVar(&stopOnDestroy, "stop-on-destroy", false,
		"Exit the serve loop when the kernel sends DESTROY")
	cmd.FlagSet.StringVar(&rootModeFlag, "root-mode", "",
		"Octal permission bits for the root directory (default 0755)")
	cmd.FlagSet.StringVar(&helloModeFlag, "hello-mode", "",
		"Octal permission bits for the seeded hello.txt (default 0644)")
	cmd.FlagSet.Uint64Var(&maxFileSizeFlag, "max-file-size", 0,
		"Per-file size cap in bytes (default 1 MiB)")
	cmd.FlagSet.StringVar(&seedManifestFlag, "seed-manifest", "",
		"YAML manifest of extra files and directories to seed")
	cmd.FlagSet.BoolVar(&unmountFlag, "unmount", false,
		"Unmount filesystem at specified directory")
	cmd.FlagSet.StringVar(&logDirFlag, "log-dir", "",
		"Write log files to the specified directory")
	cmd.FlagSet.BoolVar(&suppressStderrFlag, "suppress-stderr", false,
		"Suppress standard error logging")
	cmd.FlagSet.StringVar(&logLevelFlag, "log-level", "",
		"Minimum log level: debug, info, warn or error")

	if err := cmd.FlagSet.Parse(args); err != nil {
		return cli.CmdParseError(err)
	}

	if cmd.FlagSet.NArg() > 1 {
		return cli.CmdParseError(
			fmt.Errorf("unrecognized arguments: %v", cmd.FlagSet.Args()[1:]))
	}
	if cmd.FlagSet.NArg() == 0 {
		return cli.CmdParseError(errors.New("unspecified mount-point"))
	}
	mountPoint := cmd.FlagSet.Arg(0)

	if logLevelFlag != "" {
		m, err := log.ParseMode(logLevelFlag)
		if err != nil {
			return cli.CmdParseError(err)
		}
		log.SetGlobalLogMode(m)
	}

	writer := io.Discard
	if logDirFlag != "" {
		writer = log.LogRotationWriter(logDirFlag, 50<<20 /* 50 MiB */)
	}
	if !suppressStderrFlag {
		writer = log.MultiWriter(writer, os.Stderr)
	}
	writer = log.SynchronizedWriter(writer)
	logger := log.New(log.Writer(writer), log.Flags(log.LstdFlags))

	if unmountFlag {
		if err := unmount(logger, mountPoint); err != nil {
			logger.Error(err.Error())
			return err
		}
		return nil
	}

	cfg := memfs.Config{
		EnableWriteOps: enableWritesFlag,
		ExitAfterInit:  exitAfterInit,
		StopOnDestroy:  stopOnDestroy,
		MaxFileSize:    maxFileSizeFlag,
	}
	cfg.Mount.AllowOther = allowOtherFlag
	cfg.Mount.DefaultPermissions = defaultPermsFlag
	cfg.Mount.UserID = uint32(os.Getuid())
	cfg.Mount.GroupID = uint32(os.Getgid())

	var err error
	if cfg.RootMode, err = parseOctalFlag("root-mode", rootModeFlag); err != nil {
		return cli.CmdParseError(err)
	}
	if cfg.HelloMode, err = parseOctalFlag("hello-mode", helloModeFlag); err != nil {
		return cli.CmdParseError(err)
	}
	if seedManifestFlag != "" {
		if cfg.Seed, err = memfs.LoadSeedManifest(seedManifestFlag); err != nil {
			logger.Error(err.Error())
			return err
		}
	}

	conn, err := mount(logger, mountPoint, &cfg)
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	defer conn.Close()
	defer unmount(logger, mountPoint)

	srv, err := memfs.NewServer(conn, cfg, logger)
	if err != nil {
		logger.Error(err.Error())
		return err
	}

	// On SIGINT/SIGTERM flip the server to stopping and switch the device
	// to non-blocking reads so an idle serve loop notices.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		s, ok := <-sigc
		if !ok {
			return
		}
		logger.Infof("received %v, shutting down", s)
		srv.Stop()
		if err := conn.SetNonblock(true); err != nil {
			logger.Errorf("switching device to non-blocking: %v", err)
		}
	}()

	if err := srv.Serve(); err != nil {
		logger.Error(err.Error())
		return err
	}
	return nil
}

func parseOctalFlag(name, value string) (uint32, error) {
	if value == "" {
		return 0, nil
	}
	bits, err := strconv.ParseUint(value, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("bad -%s value %q: not an octal mode", name, value)
	}
	return uint32(bits), nil
}
