package comfy

import "encoding/json"

// Event types observed on the execution event channel. Everything else the
// remote emits (status, progress, cached) is ignored by this package.
const eventExecuting = "executing"

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// executingData is the payload of an "executing" event. A nil Node is the
// remote's sentinel for "this job is finished".
type executingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

// parseExecuting decodes a text frame into an executing event. The second
// return is false for malformed payloads and for event types this package
// does not track; both are dropped without affecting state.
func parseExecuting(payload []byte) (executingData, bool) {
	var evt event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return executingData{}, false
	}
	if evt.Type != eventExecuting {
		return executingData{}, false
	}
	var data executingData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return executingData{}, false
	}
	return data, true
}
