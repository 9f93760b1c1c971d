// +build linux

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/greenhandatsjtu/pura/internal/create"
	"github.com/greenhandatsjtu/pura/internal/logging"
	"github.com/greenhandatsjtu/pura/internal/oci"
	"github.com/greenhandatsjtu/pura/internal/process"
	"github.com/greenhandatsjtu/pura/internal/profiling"
	"github.com/greenhandatsjtu/pura/internal/state"
)

const defaultRoot = "/tmp/pura"

func main() {
	// The hidden re-exec target: never registered as a cli.Command so it
	// carries no help text and doesn't show up in usage, but it must be
	// dispatched before urfave/cli parses argv, since "init" (argv[1]) is
	// not a registered command.
	if len(os.Args) > 1 && os.Args[1] == "init" {
		process.RunInit()
		return
	}

	stop := profiling.Start()
	defer stop()

	app := cli.NewApp()
	app.Name = "pura"
	app.Usage = "a minimal OCI container runtime"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "root",
			Value: defaultRoot,
			Usage: "root directory for container state",
		},
		cli.StringFlag{
			Name:  "log",
			Usage: "path to log file (default: stderr)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "txt",
			Usage: "log output format: txt or json",
		},
	}
	app.Before = func(c *cli.Context) error {
		closer, err := logging.Configure(logging.Options{
			Path:   c.GlobalString("log"),
			Format: c.GlobalString("log-format"),
		})
		if err != nil {
			return err
		}
		cli.OsExiter = func(code int) {
			closer()
			os.Exit(code)
		}
		return nil
	}
	app.Commands = []cli.Command{
		createCommand,
		startCommand,
		killCommand,
		deleteCommand,
		stateCommand,
		specCommand,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Error(err)
		os.Exit(1)
	}
}

var createCommand = cli.Command{
	Name:      "create",
	Usage:     "create a container",
	ArgsUsage: "ID",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "bundle, b", Usage: "path to the bundle directory"},
		cli.StringFlag{Name: "pid-file", Usage: "path to write the container pid to"},
		cli.StringFlag{Name: "console-socket", Usage: "path to an AF_UNIX socket which will receive the console pty"},
	},
	Action: func(c *cli.Context) error {
		id := c.Args().First()
		if id == "" {
			return cli.NewExitError("ID is required", 1)
		}
		if c.String("bundle") == "" || c.String("pid-file") == "" {
			return cli.NewExitError("--bundle and --pid-file are required", 1)
		}

		err := create.Run(create.Options{
			ID:            id,
			Bundle:        c.String("bundle"),
			PidFile:       c.String("pid-file"),
			ConsoleSocket: c.String("console-socket"),
			Root:          c.GlobalString("root"),
		})
		if err != nil {
			logrus.WithError(err).Error("create failed")
			return cli.NewExitError(err.Error(), create.ExitCode(err))
		}
		return nil
	},
}

// startCommand, killCommand, and deleteCommand are stubs per spec.md
// section 1's scope note: they exist so the CLI surface is complete and
// so a later implementation can reuse the rendezvous primitives create
// already exercises, but they are not implemented by this core.
// stateCommand loads the stored state.json and prints it.

var startCommand = cli.Command{
	Name:      "start",
	Usage:     "start a created container (not implemented)",
	ArgsUsage: "ID",
	Action: func(c *cli.Context) error {
		return cli.NewExitError("start: not implemented", 1)
	},
}

var killCommand = cli.Command{
	Name:      "kill",
	Usage:     "send a signal to a container (not implemented)",
	ArgsUsage: "ID SIGNAL",
	Action: func(c *cli.Context) error {
		return cli.NewExitError("kill: not implemented", 1)
	},
}

var deleteCommand = cli.Command{
	Name:      "delete",
	Usage:     "delete a container (not implemented)",
	ArgsUsage: "ID",
	Action: func(c *cli.Context) error {
		return cli.NewExitError("delete: not implemented", 1)
	},
}

var stateCommand = cli.Command{
	Name:      "state",
	Usage:     "query a container's state",
	ArgsUsage: "ID",
	Action: func(c *cli.Context) error {
		id := c.Args().First()
		if id == "" {
			return cli.NewExitError("ID is required", 1)
		}
		dir := state.Dir(c.GlobalString("root"), id)
		doc, err := state.Load(dir)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		data, err := json.MarshalIndent(doc, "", "\t")
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		fmt.Fprintln(c.App.Writer, string(data))
		return nil
	},
}

const specConfig = "config.json"

var specCommand = cli.Command{
	Name:  "spec",
	Usage: "create a minimal starter config.json in the current directory",
	Action: func(c *cli.Context) error {
		if _, err := os.Stat(specConfig); err == nil {
			return cli.NewExitError(specConfig+" already exists", 1)
		}

		example := &oci.Spec{
			Root: oci.Root{Path: "rootfs"},
			Process: &oci.Process{
				Terminal: true,
				Args:     []string{"sh"},
				Env:      []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"},
				Cwd:      "/",
			},
			Linux: &oci.Linux{
				Namespaces: []oci.Namespace{
					{Type: "mount"},
					{Type: "uts"},
					{Type: "ipc"},
					{Type: "pid"},
				},
			},
		}

		data, err := json.MarshalIndent(example, "", "\t")
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return os.WriteFile(specConfig, data, 0644)
	},
}
