// Command scrap-operator issues and revokes SCRAP capability tokens (§6,
// grounded on controller/operator_stub.py and cmd/lncli's urfave/cli
// structuring idiom).
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/dyson-labs/scrap/internal/cryptoeng"
	"github.com/dyson-labs/scrap/internal/keys"
	"github.com/dyson-labs/scrap/internal/operator"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[scrap-operator] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "scrap-operator"
	app.Usage = "issue and revoke SCRAP capability tokens"
	app.Commands = []cli.Command{issueTokenCommand, revokeCommand}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

var issueTokenCommand = cli.Command{
	Name:  "issue-token",
	Usage: "issue a capability token",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "keys", Usage: "path to keys.json"},
		cli.StringFlag{Name: "out", Usage: "path to write the binary token"},
		cli.StringFlag{Name: "meta-out", Usage: "optional path to write token metadata JSON"},
		cli.StringFlag{Name: "subject", Usage: "commander public key this token is issued to"},
		cli.StringFlag{Name: "audience", Usage: "executor node_id this token authorizes"},
		cli.StringSliceFlag{Name: "capability", Usage: "capability string (repeatable)"},
		cli.IntFlag{Name: "expires-in", Value: 3600, Usage: "seconds until expiry"},
		cli.IntFlag{Name: "issued-at", Usage: "override issued_at (unix seconds); defaults to now"},
		cli.StringFlag{Name: "token-id", Usage: "override token_id (hex); defaults to random 16 bytes"},
		cli.IntFlag{Name: "not-before", Usage: "optional constraint_after unix timestamp"},
		cli.BoolFlag{Name: "allow-mock-signature", Usage: "allow a zero signature when no Schnorr backend is available"},
	},
	Action: issueToken,
}

func issueToken(ctx *cli.Context) error {
	keysPath := ctx.String("keys")
	outPath := ctx.String("out")
	subject := ctx.String("subject")
	audience := ctx.String("audience")
	caps := ctx.StringSlice("capability")

	if keysPath == "" || outPath == "" || subject == "" || audience == "" || len(caps) == 0 {
		return cli.NewExitError("keys, out, subject, audience, and at least one capability are required", 1)
	}

	bundle, err := keys.Load(keysPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	operatorPubkey, err := keys.HexToBytes(bundle.OperatorPubkey)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	issuedAt := uint32(ctx.Int("issued-at"))
	if issuedAt == 0 {
		issuedAt = uint32(nowUnix())
	}

	var tokenID []byte
	if s := ctx.String("token-id"); s != "" {
		tokenID, err = hex.DecodeString(s)
		if err != nil {
			return cli.NewExitError("invalid --token-id: "+err.Error(), 1)
		}
	}

	engine := cryptoeng.SchnorrEngine(cryptoeng.NewUnavailableEngine())
	if bundle.OperatorPrivkey != "" {
		engine = cryptoeng.NewProductionEngine()
	}

	res, err := operator.IssueToken(operator.IssueParams{
		OperatorPubkey:  operatorPubkey,
		OperatorPrivkey: bundle.OperatorPrivkey,
		Subject:         subject,
		Audience:        audience,
		Capabilities:    caps,
		IssuedAt:        issuedAt,
		ExpiresIn:       uint32(ctx.Int("expires-in")),
		TokenID:         tokenID,
		NotBefore:       uint32(ctx.Int("not-before")),
		AllowMockSig:    ctx.Bool("allow-mock-signature"),
		Engine:          engine,
	})
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if err := os.WriteFile(outPath, res.Token, 0o644); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if metaOut := ctx.String("meta-out"); metaOut != "" {
		if err := writeTokenMeta(metaOut, res, audience, subject, caps); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
	}

	fmt.Printf("token_id=%s issued_at=%d expires_at=%d signature_mocked=%v\n",
		hex.EncodeToString(res.TokenID), res.IssuedAt, res.ExpiresAt, res.SignatureMocked)
	return nil
}

var revokeCommand = cli.Command{
	Name:  "revoke",
	Usage: "append a token id to a revocation list",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "revocation-list", Usage: "path to the revocation list JSON file"},
		cli.StringFlag{Name: "token-id", Usage: "hex-encoded token id to revoke"},
	},
	Action: revoke,
}

func revoke(ctx *cli.Context) error {
	path := ctx.String("revocation-list")
	tokenID := ctx.String("token-id")
	if path == "" || tokenID == "" {
		return cli.NewExitError("revocation-list and token-id are required", 1)
	}
	if err := operator.Revoke(path, tokenID); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}
