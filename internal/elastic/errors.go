package elastic

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/spigell/talent-screener/internal/oracle"
)

// ErrJobNotFound is returned when the jobs index has no document with the requested id.
var ErrJobNotFound = errors.New("job not found")

// Error is a failed Elasticsearch response.
type Error struct {
	Status int
	Type   string
	Reason string
}

func (e *Error) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("elasticsearch: status %d", e.Status)
	}
	return fmt.Sprintf("elasticsearch: status %d: %s: %s", e.Status, e.Type, e.Reason)
}

type errorBody struct {
	Error struct {
		Type      string `json:"type"`
		Reason    string `json:"reason"`
		RootCause []struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"root_cause"`
		CausedBy *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"caused_by"`
	} `json:"error"`
}

// Query errors Elasticsearch reports when a query does not fit the index mapping.
var schemaErrorTypes = map[string]struct{}{
	"query_shard_exception":            {},
	"parsing_exception":                {},
	"search_parse_exception":           {},
	"x_content_parse_exception":        {},
	"search_phase_execution_exception": {},
}

var fieldInReason = regexp.MustCompile(`\[([A-Za-z0-9_.]+)\]`)

func readError(res *esapi.Response) *Error {
	e := &Error{Status: res.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil || len(raw) == 0 {
		return e
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		e.Reason = strings.TrimSpace(string(raw))
		return e
	}

	e.Type, e.Reason = body.Error.Type, body.Error.Reason
	if len(body.Error.RootCause) > 0 && body.Error.RootCause[0].Type != "" {
		e.Type, e.Reason = body.Error.RootCause[0].Type, body.Error.RootCause[0].Reason
	} else if body.Error.CausedBy != nil && body.Error.CausedBy.Type != "" && e.Type == "search_phase_execution_exception" {
		e.Type, e.Reason = body.Error.CausedBy.Type, body.Error.CausedBy.Reason
	}
	return e
}

// classify turns a failed response into an oracle error where one applies.
func classify(res *esapi.Response) error {
	e := readError(res)

	switch {
	case res.StatusCode >= http.StatusInternalServerError,
		res.StatusCode == http.StatusTooManyRequests,
		e.Type == "index_not_found_exception":
		return &oracle.UnavailableError{Cause: e}
	case res.StatusCode == http.StatusBadRequest && isSchemaError(e.Type):
		return &oracle.InvalidFieldError{Fields: fieldsIn(e.Reason), Cause: e}
	}
	return e
}

func isSchemaError(kind string) bool {
	_, ok := schemaErrorTypes[kind]
	return ok
}

func fieldsIn(reason string) []string {
	var fields []string
	for _, m := range fieldInReason.FindAllStringSubmatch(reason, -1) {
		fields = append(fields, m[1])
	}
	return fields
}
