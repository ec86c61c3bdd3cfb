package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/MapleMaven/esp32-sram-puf/cmd/flags"
	"github.com/MapleMaven/esp32-sram-puf/enrollment"
	"github.com/MapleMaven/esp32-sram-puf/interfaces"
	"github.com/MapleMaven/esp32-sram-puf/puf"
	"github.com/MapleMaven/esp32-sram-puf/sram"
	"github.com/MapleMaven/esp32-sram-puf/storage"
)

var EnrollServiceLogFlag = flags.LogServiceFlagFn("puf-enroll")

var ResetCauseFlag = &cli.StringFlag{
	Name:  "reset-cause",
	Value: "power-on",
	Usage: "hardware reset cause of this boot (power-on, software, watchdog, brownout, deep-sleep-wake)",
}
var SampleFileFlag = &cli.StringFlag{
	Name:  "sample-file",
	Usage: "path to a captured SRAM dump for this boot",
}
var DeviceSeedFlag = &cli.StringFlag{
	Name:  "device-seed",
	Usage: "hex seed for the simulated device model (instead of --sample-file)",
}
var ForceFlag = &cli.BoolFlag{
	Name:  "force",
	Usage: "skip the confirmation prompt",
}
var LabelFlag = &cli.StringFlag{
	Name:  "label",
	Usage: "derive an application sub-key under this label instead of printing the raw key",
}
var SoftResetsFlag = &cli.IntFlag{
	Name:  "inject-soft-resets",
	Value: 0,
	Usage: "number of soft resets to interleave into the simulated run",
}

func main() {
	app := &cli.App{
		Name:  "puf-enroll",
		Usage: "Enroll SRAM PUF devices and derive their keys",
		Flags: append([]cli.Flag{flags.StorageFlag, EnrollServiceLogFlag}, flags.CommonFlags...),
		Commands: []*cli.Command{
			{
				Name:   "boot",
				Usage:  "run one enrollment step for a single boot",
				Flags:  []cli.Flag{flags.DeviceFlag, ResetCauseFlag, SampleFileFlag, DeviceSeedFlag},
				Action: runBoot,
			},
			{
				Name:   "status",
				Usage:  "print the device's enrollment state",
				Flags:  []cli.Flag{flags.DeviceFlag},
				Action: runStatus,
			},
			{
				Name:   "derive",
				Usage:  "re-derive the final key from a completed record",
				Flags:  []cli.Flag{flags.DeviceFlag, LabelFlag},
				Action: runDerive,
			},
			{
				Name:   "reset",
				Usage:  "manual reset: erase the device's enrollment record",
				Flags:  []cli.Flag{flags.DeviceFlag, ForceFlag},
				Action: runReset,
			},
			{
				Name:   "simulate",
				Usage:  "run a full enrollment against the simulated device model",
				Flags:  []cli.Flag{flags.DeviceFlag, DeviceSeedFlag, SoftResetsFlag},
				Action: runSimulate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup(cCtx *cli.Context) (*enrollment.Controller, interfaces.KVBackend, interfaces.KVStore, *slog.Logger, error) {
	logger := flags.SetupLogger(cCtx)

	device, err := interfaces.NewDeviceID(cCtx.String(flags.DeviceFlag.Name))
	if err != nil {
		return nil, nil, nil, nil, err
	}

	location, err := interfaces.NewStorageLocation(cCtx.String(flags.StorageFlag.Name))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	backend, err := storage.NewFactory(logger).BackendFor(location)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	controller, err := enrollment.NewController(puf.DefaultConfig(), logger.With("device", device.String()))
	if err != nil {
		backend.Close()
		return nil, nil, nil, nil, err
	}

	return controller, backend, backend.Namespace(device.String()), logger, nil
}

func runBoot(cCtx *cli.Context) error {
	controller, backend, kv, _, err := setup(cCtx)
	if err != nil {
		return err
	}
	defer backend.Close()

	cause, err := interfaces.ParseResetCause(cCtx.String(ResetCauseFlag.Name))
	if err != nil {
		return err
	}

	source, err := bootSource(cCtx, controller.Config())
	if err != nil {
		return err
	}

	outcome, err := controller.Step(context.Background(), kv, cause, source)
	if err != nil {
		return err
	}
	printOutcome(outcome)
	return nil
}

func bootSource(cCtx *cli.Context, cfg puf.Config) (sram.SampleSource, error) {
	sampleFile := cCtx.String(SampleFileFlag.Name)
	seedHex := cCtx.String(DeviceSeedFlag.Name)

	switch {
	case sampleFile != "" && seedHex != "":
		return nil, fmt.Errorf("--sample-file and --device-seed are mutually exclusive")
	case sampleFile != "":
		return sram.NewFileSource(sampleFile, cfg.SampleSize), nil
	case seedHex != "":
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, fmt.Errorf("invalid device seed: %w", err)
		}
		model, err := sram.NewDeviceModel(seed, cfg.SampleSize)
		if err != nil {
			return nil, err
		}
		return sram.SourceFunc(func() ([]byte, error) {
			return model.PowerOn(context.Background())
		}), nil
	default:
		return nil, fmt.Errorf("one of --sample-file or --device-seed is required")
	}
}

func runStatus(cCtx *cli.Context) error {
	controller, backend, kv, _, err := setup(cCtx)
	if err != nil {
		return err
	}
	defer backend.Close()

	outcome, err := controller.Status(context.Background(), kv)
	if err != nil {
		return err
	}

	if outcome.State == enrollment.StateComplete {
		fmt.Printf("Enrollment complete.\n")
		fmt.Printf("Stability: %d / %d bits used.\n", outcome.StableBits, outcome.TotalBits)
	} else {
		fmt.Printf("Training Step: %d / %d\n", outcome.Round, outcome.Rounds)
	}
	return nil
}

func runDerive(cCtx *cli.Context) error {
	controller, backend, kv, _, err := setup(cCtx)
	if err != nil {
		return err
	}
	defer backend.Close()

	outcome, err := controller.Derive(context.Background(), kv)
	if err != nil {
		return err
	}

	fmt.Printf("Stability: %d / %d bits used.\n", outcome.StableBits, outcome.TotalBits)

	if label := cCtx.String(LabelFlag.Name); label != "" {
		sub, err := puf.AppKey(*outcome.Key, label, interfaces.KeySize)
		if err != nil {
			return err
		}
		fmt.Printf("APP KEY [%s]: %s\n", label, hex.EncodeToString(sub))
		return nil
	}

	fmt.Printf("FINAL PUF KEY: %s\n", outcome.Key)
	return nil
}

func runReset(cCtx *cli.Context) error {
	controller, backend, kv, _, err := setup(cCtx)
	if err != nil {
		return err
	}
	defer backend.Close()

	if !cCtx.Bool(ForceFlag.Name) {
		fmt.Printf("Erase enrollment record for device %s? [y/N] ", cCtx.String(flags.DeviceFlag.Name))
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := controller.Reset(context.Background(), kv); err != nil {
		return err
	}
	fmt.Println("Enrollment record erased.")
	return nil
}

func runSimulate(cCtx *cli.Context) error {
	controller, backend, kv, logger, err := setup(cCtx)
	if err != nil {
		return err
	}
	defer backend.Close()

	seedHex := cCtx.String(DeviceSeedFlag.Name)
	if seedHex == "" {
		return fmt.Errorf("--device-seed is required for simulation")
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return fmt.Errorf("invalid device seed: %w", err)
	}

	cfg := controller.Config()
	model, err := sram.NewDeviceModel(seed, cfg.SampleSize)
	if err != nil {
		return err
	}
	logger.Info("Simulating device", slog.Int("weak_bits", model.WeakBits()))

	ctx := context.Background()
	softResets := cCtx.Int(SoftResetsFlag.Name)

	for {
		// Interleave soft resets to exercise the gate the way a flasher
		// restart would.
		if softResets > 0 {
			softResets--
			img, warmErr := model.WarmReset()
			source := sram.SourceFunc(func() ([]byte, error) { return img, warmErr })
			outcome, err := controller.Step(ctx, kv, interfaces.ResetSoftware, source)
			if err != nil {
				return err
			}
			printOutcome(outcome)
		}

		source := sram.SourceFunc(func() ([]byte, error) { return model.PowerOn(ctx) })
		outcome, err := controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
		if err != nil {
			return err
		}
		printOutcome(outcome)

		if outcome.State == enrollment.StateComplete {
			return nil
		}
	}
}

func printOutcome(outcome enrollment.Outcome) {
	switch outcome.Event {
	case enrollment.EventFinalized:
		fmt.Printf("Stability: %d / %d bits used.\n", outcome.StableBits, outcome.TotalBits)
		fmt.Printf("FINAL PUF KEY: %s\n", outcome.Key)
	case enrollment.EventResetRejected:
		fmt.Printf("Boot rejected (%s). To continue enrollment: %s\n", outcome.Event, outcome.Prompt)
	case enrollment.EventCorruptionRepaired:
		fmt.Printf("Storage mismatch detected; enrollment restarted from step 0. Next: %s\n", outcome.Prompt)
	case enrollment.EventPersistFailed:
		fmt.Printf("Storage write failed; step %d will be retried. Next: %s\n", outcome.Round, outcome.Prompt)
	default:
		fmt.Printf("Training Step: %d / %d\n", outcome.Round, outcome.Rounds)
		fmt.Printf("To continue enrollment: %s\n", outcome.Prompt)
	}
}
