package redisdb

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cnquant/stockpulse/internal/common"
)

// encode marshals a value to a JSON string with HTML escaping disabled so
// Chinese text is stored as UTF-8, not \uXXXX escapes.
func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", common.WrapError(common.KindInternal, err, "json encode failed")
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// decode unmarshals a stored JSON string.
func decode(data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return common.WrapError(common.KindInternal, err, "json decode failed")
	}
	return nil
}
