package extraction

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/joseph-ayodele/care-records/internal/common"
)

var errNoObject = errors.New("no JSON object in model output")

// LocateJSON returns the span from the first '{' to the last '}' of s,
// which strips narrative text and code fences around the model's object.
func LocateJSON(s string) ([]byte, error) {
	i := strings.IndexByte(s, '{')
	j := strings.LastIndexByte(s, '}')
	if i < 0 || j <= i {
		return nil, common.NoStructuredOutput("locate json", errNoObject)
	}
	return []byte(s[i : j+1]), nil
}

// decodeObject parses the located span into a generic object.
func decodeObject(span []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(span, &m); err != nil {
		return nil, common.NoStructuredOutput("parse json", err)
	}
	if m == nil {
		return nil, common.NoStructuredOutput("parse json", errNoObject)
	}
	return m, nil
}
