package bridge

import (
	"encoding/hex"

	"github.com/dyson-labs/scrap/internal/cryptoeng"
)

// derivedCorrelationID is a demo-only identifier linking a task_request to
// its settlement bridge invocation, derived as sha256(task_id ":" token_id)
// (grounded on settlement_bridge.py's derive_demo_correlation_id).
func derivedCorrelationID(taskID, tokenID string) string {
	sum := cryptoeng.SHA256([]byte(taskID + ":" + tokenID))
	return hex.EncodeToString(sum[:])
}
