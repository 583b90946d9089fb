// Command scrap-bridge runs the settlement bridge demo: create a BTCPay
// invoice, dispatch the matching task_request, and wait for payment and a
// proof of execution (§4.10, §6).
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"github.com/dyson-labs/scrap/internal/bridge"
	"github.com/dyson-labs/scrap/internal/invoiceclient"
	"github.com/dyson-labs/scrap/internal/scraplog"
	"github.com/dyson-labs/scrap/internal/settlement"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[scrap-bridge] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "scrap-bridge"
	app.Usage = "run the SCRAP settlement bridge against BTCPay"
	app.Flags = []cli.Flag{
		cli.Float64Flag{Name: "usd"},
		cli.StringFlag{Name: "task-id"},
		cli.StringFlag{Name: "token-id"},
		cli.StringFlag{Name: "token", Value: "demo/config/token.json"},
		cli.StringFlag{Name: "token-bin", Value: "demo/config/token.bin", Usage: "path to the raw capability token bytes written by scrap-operator issue-token --out"},
		cli.StringFlag{Name: "keys", Value: "demo/config/keys.json"},
		cli.StringFlag{Name: "requested-capability"},
		cli.StringFlag{Name: "target-host"},
		cli.IntFlag{Name: "target-port", Value: 7227},
		cli.StringFlag{Name: "bind", Value: "0.0.0.0"},
		cli.IntFlag{Name: "bind-port", Value: 0},
		cli.Int64Flag{Name: "max-amount-sats", Value: 25000},
		cli.Int64Flag{Name: "timeout-blocks", Value: 144},
		cli.IntFlag{Name: "poll-interval", Value: 2},
		cli.IntFlag{Name: "invoice-timeout", Value: 900},
		cli.IntFlag{Name: "exec-timeout", Value: 60},
		cli.StringFlag{Name: "settlement-store", Value: "demo/runtime/settlement.json"},
		cli.StringFlag{Name: "btcpay-config"},
		cli.StringFlag{Name: "btcpay-url"},
		cli.StringFlag{Name: "btcpay-api-key"},
		cli.StringFlag{Name: "btcpay-store-id"},
		cli.BoolFlag{Name: "fake"},
		cli.BoolFlag{Name: "real"},
		cli.IntFlag{Name: "fake-auto-pay-after", Value: 2},
		cli.StringFlag{Name: "log-file"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

type tokenFile struct {
	TokenID         string `json:"token_id"`
	Capability      string `json:"capability"`
	CommanderPubkey string `json:"commander_pubkey"`
}

func run(ctx *cli.Context) error {
	if ctx.Bool("fake") && ctx.Bool("real") {
		return cli.NewExitError("choose only one: --fake or --real", 1)
	}

	tokenPath := ctx.String("token")
	rawToken, err := os.ReadFile(tokenPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	var tf tokenFile
	if err := json.Unmarshal(rawToken, &tf); err != nil {
		return cli.NewExitError("parsing token json: "+err.Error(), 1)
	}

	tokenBinPath := ctx.String("token-bin")
	tokenBin, err := os.ReadFile(tokenBinPath)
	if err != nil {
		return cli.NewExitError("reading capability token bytes (--token-bin): "+err.Error(), 1)
	}
	capabilityTokenB64 := base64.StdEncoding.EncodeToString(tokenBin)

	tokenID := ctx.String("token-id")
	if tokenID == "" {
		tokenID = tf.TokenID
	}
	if tokenID == "" {
		return cli.NewExitError("token_id missing (pass --token-id or include token_id in token json)", 1)
	}

	taskID := ctx.String("task-id")
	if taskID == "" {
		taskID = "task-" + uuid.New().String()
	}

	requestedCapability := ctx.String("requested-capability")
	if requestedCapability == "" {
		requestedCapability = tf.Capability
	}
	if requestedCapability == "" {
		requestedCapability = "telemetry.read"
	}

	backend, err := scraplog.NewBackend(ctx.String("log-file"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer backend.Close()
	bridge.UseLogger(backend.Logger("BRDG", "info"))

	store, err := settlement.NewStore(ctx.String("settlement-store"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	var client invoiceclient.Client
	if ctx.Bool("real") {
		apiBase := ctx.String("btcpay-url")
		apiKey := ctx.String("btcpay-api-key")
		storeID := ctx.String("btcpay-store-id")
		if v := os.Getenv("BTCPAY_URL"); v != "" {
			apiBase = v
		}
		if v := os.Getenv("BTCPAY_API_KEY"); v != "" {
			apiKey = v
		}
		if v := os.Getenv("BTCPAY_STORE_ID"); v != "" {
			storeID = v
		}
		if apiBase == "" || apiKey == "" || storeID == "" {
			return cli.NewExitError("missing BTCPay config: btcpay-url, btcpay-api-key, btcpay-store-id", 1)
		}
		client = invoiceclient.NewReal(apiBase, apiKey, storeID, 10*time.Second)
	} else {
		client = invoiceclient.NewFake(int64(ctx.Int("fake-auto-pay-after")))
	}

	rec, err := bridge.Run(bridge.Config{
		USDAmount:           ctx.Float64("usd"),
		TaskID:              taskID,
		TokenID:             tokenID,
		TokenJSON:           json.RawMessage(rawToken),
		CapabilityTokenB64:  capabilityTokenB64,
		RequestedCapability: requestedCapability,
		CommanderPubkey:     tf.CommanderPubkey,
		TargetAddr:          fmt.Sprintf("%s:%d", ctx.String("target-host"), ctx.Int("target-port")),
		BindAddr:            fmt.Sprintf("%s:%d", ctx.String("bind"), ctx.Int("bind-port")),
		MaxAmountSats:       ctx.Int64("max-amount-sats"),
		TimeoutBlocks:       ctx.Int64("timeout-blocks"),
		PollInterval:        time.Duration(ctx.Int("poll-interval")) * time.Second,
		InvoiceTimeout:      time.Duration(ctx.Int("invoice-timeout")) * time.Second,
		ExecTimeout:         time.Duration(ctx.Int("exec-timeout")) * time.Second,
		Store:               store,
		InvoiceClient:       client,
	})
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	fmt.Printf("DEMO SUCCESS task_id=%s invoice_id=%s payment_hash=%s proof_hash=%s\n",
		rec.TaskID, rec.BtcpayInvoiceID, rec.PaymentHash, rec.ProofHash)
	return nil
}
