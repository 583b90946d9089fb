// Command scrap-commander sends a single signed task_request to an
// executor and waits for its reply (§4.1, §6).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/dyson-labs/scrap/internal/commander"
	"github.com/dyson-labs/scrap/internal/cryptoeng"
	"github.com/dyson-labs/scrap/internal/keys"
	"github.com/dyson-labs/scrap/internal/scraplog"
	"github.com/dyson-labs/scrap/internal/udpconn"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[scrap-commander] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "scrap-commander"
	app.Usage = "send a SCRAP task request to an executor"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "target-host"},
		cli.IntFlag{Name: "target-port", Value: 7227},
		cli.StringFlag{Name: "token", Usage: "path to the binary capability token"},
		cli.StringFlag{Name: "keys"},
		cli.StringFlag{Name: "task-id"},
		cli.StringFlag{Name: "requested-capability"},
		cli.StringFlag{Name: "task-type", Value: "imaging"},
		cli.Int64Flag{Name: "max-amount-sats", Value: 22000},
		cli.BoolFlag{Name: "allow-mock-signatures"},
		cli.IntFlag{Name: "timeout", Value: 15},
		cli.StringFlag{Name: "log-file"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func run(ctx *cli.Context) error {
	targetHost := ctx.String("target-host")
	tokenPath := ctx.String("token")
	keysPath := ctx.String("keys")
	taskID := ctx.String("task-id")
	requestedCapability := ctx.String("requested-capability")

	if targetHost == "" || tokenPath == "" || keysPath == "" || taskID == "" || requestedCapability == "" {
		return cli.NewExitError("target-host, token, keys, task-id, and requested-capability are required", 1)
	}

	backend, err := scraplog.NewBackend(ctx.String("log-file"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer backend.Close()
	commander.UseLogger(backend.Logger("CMDR", "info"))

	bundle, err := keys.Load(keysPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if bundle.CommanderPubkey == "" {
		return cli.NewExitError("keys require commander_pubkey", 1)
	}

	tokenBytes, err := os.ReadFile(tokenPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	engine := cryptoeng.SchnorrEngine(cryptoeng.NewUnavailableEngine())
	if bundle.CommanderPrivkey != "" {
		engine = cryptoeng.NewProductionEngine()
	}

	cfg := commander.Config{
		TargetAddr:          fmt.Sprintf("%s:%d", targetHost, ctx.Int("target-port")),
		TaskID:              taskID,
		TaskType:            ctx.String("task-type"),
		RequestedCapability: requestedCapability,
		MaxAmountSats:       ctx.Int64("max-amount-sats"),
		TokenB64:            base64Encode(tokenBytes),
		CommanderPubkey:     bundle.CommanderPubkey,
		CommanderPrivkey:    bundle.CommanderPrivkey,
		AllowMockSignatures: ctx.Bool("allow-mock-signatures"),
		Timeout:             time.Duration(ctx.Int("timeout")) * time.Second,
		Engine:              engine,
	}

	req, err := commander.BuildRequest(cfg)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	conn, err := udpconn.Bind("0.0.0.0:0")
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer conn.Close()

	outcome, err := commander.Send(conn, cfg, req)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if outcome.Rejected {
		return cli.NewExitError("task rejected: "+fmt.Sprint(outcome.Reject.Details), 2)
	}
	if outcome.TimedOut {
		return cli.NewExitError("timed out waiting for a response", 2)
	}
	return nil
}
