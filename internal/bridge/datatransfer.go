package bridge

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Markers around the visitor data sent to the agent on first contact.
const (
	DataTransferBegin = "------------------------\nUSER HAS DATA: "
	DataTransferEnd   = "\n-------------------------"
)

// ComposeDataTransfer renders fields as sorted key:value lines between the
// transfer markers. It returns "" when there is nothing to send.
func ComposeDataTransfer(fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := fieldString(fields[k])
		if err != nil {
			return "", &DataTransferError{Key: k, Err: err}
		}
		lines = append(lines, k+":"+v)
	}
	return DataTransferBegin + strings.Join(lines, "\n") + DataTransferEnd, nil
}

// fieldString renders a custom-field value the way livechat stores it.
func fieldString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
