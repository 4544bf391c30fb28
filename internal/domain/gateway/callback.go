package gateway

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

var ErrMalformedCallback = errors.New("malformed gateway callback")

// Callback is a gateway-pushed status notification.
type Callback struct {
	Reference        string
	RawStatus        string
	GatewayReference string
	PollToken        string
	Fields           map[string]string
}

// ParseCallback accepts the vendor's form-encoded body, or a flat JSON object.
// Keys are matched case-insensitively.
func ParseCallback(contentType string, body []byte) (*Callback, error) {
	fields := map[string]string{}

	if strings.Contains(strings.ToLower(contentType), "json") {
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, ErrMalformedCallback
		}
		for k, v := range raw {
			switch x := v.(type) {
			case string:
				fields[strings.ToLower(k)] = x
			case nil:
			default:
				b, _ := json.Marshal(x)
				fields[strings.ToLower(k)] = string(b)
			}
		}
	} else {
		vals, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, ErrMalformedCallback
		}
		for k := range vals {
			fields[strings.ToLower(k)] = vals.Get(k)
		}
	}

	cb := &Callback{
		Reference:        strings.TrimSpace(fields["reference"]),
		RawStatus:        strings.TrimSpace(fields["status"]),
		GatewayReference: fields["paynowreference"],
		PollToken:        fields["pollurl"],
		Fields:           fields,
	}
	if cb.Reference == "" {
		return cb, ErrMalformedCallback
	}
	return cb, nil
}
