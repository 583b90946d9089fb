// Command scrap-executor runs the SCRAP executor node: it validates
// incoming task_requests against a capability token and policy, then
// replies with task_accept/task_reject followed by a proof of execution
// (§4.2, §6).
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/dyson-labs/scrap/internal/cryptoeng"
	"github.com/dyson-labs/scrap/internal/executor"
	"github.com/dyson-labs/scrap/internal/keys"
	"github.com/dyson-labs/scrap/internal/replay"
	"github.com/dyson-labs/scrap/internal/scraplog"
	"github.com/dyson-labs/scrap/internal/udpconn"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[scrap-executor] %v\n", err)
	os.Exit(1)
}

type policy struct {
	NodeID               string `json:"node_id"`
	AllowMockSignatures  bool   `json:"allow_mock_signatures"`
	RequireCommanderSig  bool   `json:"require_commander_sig"`
	RevocationListPath   string `json:"revocation_list_path"`
	ReplayCachePath      string `json:"replay_cache_path"`
	ExecuteDelaySec      int    `json:"execute_delay_sec"`
}

func loadPolicy(path string) (*policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func main() {
	app := cli.NewApp()
	app.Name = "scrap-executor"
	app.Usage = "run a SCRAP executor node"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "bind", Value: "0.0.0.0"},
		cli.IntFlag{Name: "port", Value: 7227},
		cli.StringFlag{Name: "keys"},
		cli.StringFlag{Name: "policy"},
		cli.BoolFlag{Name: "allow-mock-signatures"},
		cli.BoolFlag{Name: "legacy-proof-hash", Usage: "use the tagged-hash proof_hash derivation instead of the protocol default (interop testing only)"},
		cli.StringFlag{Name: "log-file", Usage: "path to a rotating log file; stdout-only if empty"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func run(ctx *cli.Context) error {
	keysPath := ctx.String("keys")
	policyPath := ctx.String("policy")
	if keysPath == "" || policyPath == "" {
		return cli.NewExitError("--keys and --policy are required", 1)
	}

	bundle, err := keys.Load(keysPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	pol, err := loadPolicy(policyPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if pol.NodeID == "" {
		return cli.NewExitError("policy requires node_id", 1)
	}

	backend, err := scraplog.NewBackend(ctx.String("log-file"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer backend.Close()
	executor.UseLogger(backend.Logger("EXEC", "info"))

	operatorPubkey, err := keys.HexToBytes(bundle.OperatorPubkey)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	var cache *replay.Cache
	if pol.ReplayCachePath != "" {
		cache = replay.NewCache(pol.ReplayCachePath)
	}

	engine := cryptoeng.SchnorrEngine(cryptoeng.NewUnavailableEngine())
	if bundle.ExecutorPrivkey != "" {
		engine = cryptoeng.NewProductionEngine()
	}

	executeDelay := time.Duration(pol.ExecuteDelaySec) * time.Second
	if pol.ExecuteDelaySec == 0 {
		executeDelay = time.Second
	}

	bindAddr := fmt.Sprintf("%s:%d", ctx.String("bind"), ctx.Int("port"))
	conn, err := udpconn.Bind(bindAddr)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer conn.Close()

	e := executor.New(executor.Config{
		NodeID:              pol.NodeID,
		OperatorPubkey:      operatorPubkey,
		ExecutorPubkey:      bundle.ExecutorPubkey,
		ExecutorPrivkey:     bundle.ExecutorPrivkey,
		AllowMockSignatures: pol.AllowMockSignatures || ctx.Bool("allow-mock-signatures"),
		RequireCommanderSig: pol.RequireCommanderSig,
		RevocationListPath:  pol.RevocationListPath,
		ReplayCache:         cache,
		ExecuteDelay:        executeDelay,
		Engine:              engine,
		LegacyProofHash:     ctx.Bool("legacy-proof-hash"),
	}, conn)

	if err := e.Run(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}
