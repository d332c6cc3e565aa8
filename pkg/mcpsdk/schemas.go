package mcpsdk

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// emptySchema is the input schema of open_wifi_settings, which takes no arguments.
// Some clients reject a schema without explicit properties and required lists,
// and additionalProperties keeps stray arguments from reaching the channel.
var emptySchema jsonschema.Schema

func init() {
	const raw = `{"type":"object","properties":{},"required":[],"additionalProperties":false}`
	if err := json.Unmarshal([]byte(raw), &emptySchema); err != nil {
		panic(fmt.Errorf("mcpsdk: invalid open_wifi_settings input schema: %w", err))
	}
}
