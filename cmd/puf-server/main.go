package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/MapleMaven/esp32-sram-puf/api/enrollhandler"
	"github.com/MapleMaven/esp32-sram-puf/cmd/flags"
	"github.com/MapleMaven/esp32-sram-puf/enrollment"
	"github.com/MapleMaven/esp32-sram-puf/httpserver"
	"github.com/MapleMaven/esp32-sram-puf/interfaces"
	"github.com/MapleMaven/esp32-sram-puf/puf"
	"github.com/MapleMaven/esp32-sram-puf/storage"
)

var ServerServiceLogFlag = flags.LogServiceFlagFn("puf-server")

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for the enrollment API",
}

func main() {
	app := &cli.App{
		Name:  "puf-server",
		Usage: "Serve SRAM PUF enrollment for a fleet of devices",
		Flags: append(append([]cli.Flag{ListenAddrFlag, flags.StorageFlag, ServerServiceLogFlag}, flags.ServerFlags...), flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String(ListenAddrFlag.Name)

			logger := flags.SetupLogger(cCtx)

			location, err := interfaces.NewStorageLocation(cCtx.String(flags.StorageFlag.Name))
			if err != nil {
				logger.Error("Invalid storage location", "err", err)
				return err
			}
			backend, err := storage.NewFactory(logger).BackendFor(location)
			if err != nil {
				logger.Error("Failed to create storage backend", "err", err)
				return err
			}
			defer backend.Close()

			logger.Info("Storage backend ready", "backend", backend.Name())

			controller, err := enrollment.NewController(puf.DefaultConfig(), logger)
			if err != nil {
				logger.Error("Failed to create enrollment controller", "err", err)
				return err
			}

			srv, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr), enrollhandler.NewHandler(controller, backend, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			srv.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			srv.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
