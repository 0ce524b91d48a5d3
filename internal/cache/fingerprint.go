package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint derives a deterministic cache key from a node's type, id,
// resolved inputs, and config. Map keys are sorted by the JSON encoder, so
// equal invocations always hash equal.
func Fingerprint(nodeType, nodeID string, inputs, config map[string]any) string {
	payload := struct {
		Type   string         `json:"type"`
		ID     string         `json:"id"`
		Inputs map[string]any `json:"inputs"`
		Config map[string]any `json:"config"`
	}{nodeType, nodeID, inputs, config}

	data, err := json.Marshal(payload)
	if err != nil {
		// Unmarshalable values (channels, funcs) fall back to the fmt
		// rendering; still deterministic for comparable inputs.
		data = []byte(fmt.Sprintf("%s|%s|%v|%v", nodeType, nodeID, inputs, config))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
