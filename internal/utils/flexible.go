package utils

import (
    "bytes"
    "encoding/json"
    "fmt"
    "strconv"
    "strings"
)

// FlexibleString allows JSON fields to be provided as string or number.
// Mobile clients are inconsistent about id fields.
type FlexibleString string

func (fs *FlexibleString) UnmarshalJSON(data []byte) error {
    if fs == nil {
        return fmt.Errorf("FlexibleString: nil receiver")
    }
    trimmed := bytes.TrimSpace(data)
    if bytes.Equal(trimmed, []byte("null")) {
        return nil
    }

    var s string
    if err := json.Unmarshal(trimmed, &s); err == nil {
        *fs = FlexibleString(strings.TrimSpace(s))
        return nil
    }

    var num json.Number
    if err := json.Unmarshal(trimmed, &num); err == nil {
        *fs = FlexibleString(num.String())
        return nil
    }

    return fmt.Errorf("FlexibleString: expected string or number, got %s", string(data))
}

func (fs FlexibleString) String() string {
    return string(fs)
}

// Uint parses the value as an unsigned id. Zero and parse failures both
// report !ok.
func (fs FlexibleString) Uint() (uint, bool) {
    n, err := strconv.ParseUint(string(fs), 10, 64)
    if err != nil || n == 0 {
        return 0, false
    }
    return uint(n), true
}

// ParseCoord decodes a latitude/longitude field that may arrive as a number,
// a quoted number, null, or garbage. Absent and null report (nil, false):
// no coordinate, not malformed. Anything unparseable reports (nil, true).
func ParseCoord(raw json.RawMessage) (val *float64, malformed bool) {
    trimmed := bytes.TrimSpace(raw)
    if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
        return nil, false
    }
    var f float64
    if err := json.Unmarshal(trimmed, &f); err == nil {
        return &f, false
    }
    var s string
    if err := json.Unmarshal(trimmed, &s); err == nil {
        f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
        if err != nil {
            return nil, true
        }
        return &f, false
    }
    return nil, true
}
