package main

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/dyson-labs/scrap/internal/operator"
)

func nowUnix() int64 {
	return time.Now().Unix()
}

type tokenMeta struct {
	TokenID         string   `json:"token_id"`
	IssuedAt        uint32   `json:"issued_at"`
	ExpiresAt       uint32   `json:"expires_at"`
	Audience        string   `json:"audience"`
	Subject         string   `json:"subject"`
	Capabilities    []string `json:"capabilities"`
	SignatureMocked bool     `json:"signature_mocked"`
}

func writeTokenMeta(path string, res *operator.IssueResult, audience, subject string, caps []string) error {
	meta := tokenMeta{
		TokenID:         hex.EncodeToString(res.TokenID),
		IssuedAt:        res.IssuedAt,
		ExpiresAt:       res.ExpiresAt,
		Audience:        audience,
		Subject:         subject,
		Capabilities:    caps,
		SignatureMocked: res.SignatureMocked,
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, raw, 0o644)
}
