// Command confd-netconf is the standalone NETCONF frontend of spec.md
// §4.I: it speaks framed NETCONF XML on stdin/stdout and re-dials the
// backend's control socket as an ordinary pkg/session client.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sdcio/confd/pkg/netconf"
)

func main() {
	var socketPath string
	root := &cobra.Command{
		Use:           "confd-netconf",
		Short:         "confd-netconf bridges NETCONF-over-stdio to the confd-backend control socket",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(socketPath)
		},
	}
	root.Flags().StringVarP(&socketPath, "socket", "u", "/usr/local/var/run/confd.sock", "backend control socket path")

	if err := root.Execute(); err != nil {
		log.Errorf("confd-netconf: %v", err)
		os.Exit(1)
	}
}

func run(socketPath string) error {
	backend, err := netconf.Dial(socketPath)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	fe := netconf.New(backend, uint32(os.Getpid()), os.Stdout)
	if err := fe.Greet(); err != nil {
		return err
	}
	return fe.Run(ctx, os.Stdin)
}
