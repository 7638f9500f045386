package resource

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// mutationArgs is a decoded mutation request body, per C7: a single
// scalar becomes one positional entry; a JSON array becomes positional
// entries; a JSON object becomes keyword entries; a two-element
// [positional, keyword] array sets both.
type mutationArgs struct {
	Positional []json.RawMessage
	Keyword    map[string]json.RawMessage
}

// decodeMutation reads and classifies the request body. An empty body
// is a valid no-argument mutation.
func decodeMutation(c echo.Context) (mutationArgs, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return mutationArgs{}, fmt.Errorf("reading request body: %w", err)
	}
	if len(body) == 0 {
		return mutationArgs{}, nil
	}

	var raw json.RawMessage = body
	var asArray []json.RawMessage
	if err := json.Unmarshal(raw, &asArray); err == nil {
		if len(asArray) == 2 {
			var maybeKeyword map[string]json.RawMessage
			if json.Unmarshal(asArray[1], &maybeKeyword) == nil {
				var positional []json.RawMessage
				if json.Unmarshal(asArray[0], &positional) == nil {
					return mutationArgs{Positional: positional, Keyword: maybeKeyword}, nil
				}
			}
		}
		return mutationArgs{Positional: asArray}, nil
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return mutationArgs{Keyword: asObject}, nil
	}

	return mutationArgs{Positional: []json.RawMessage{raw}}, nil
}

// Arg returns the idx'th positional argument, or the keyword argument
// named key if no positional argument was given at that index.
func (a mutationArgs) Arg(idx int, key string) (json.RawMessage, bool) {
	if idx < len(a.Positional) {
		return a.Positional[idx], true
	}
	if a.Keyword != nil {
		if v, ok := a.Keyword[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Float64 decodes the idx'th/named argument as a float64.
func (a mutationArgs) Float64(idx int, key string, into *float64) error {
	raw, ok := a.Arg(idx, key)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "missing argument: "+key)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "argument "+key+" must be a number")
	}
	return nil
}

// Int64 decodes the idx'th/named argument as an int64.
func (a mutationArgs) Int64(idx int, key string, into *int64) error {
	raw, ok := a.Arg(idx, key)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "missing argument: "+key)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "argument "+key+" must be an integer")
	}
	return nil
}

// String decodes the idx'th/named argument as a string.
func (a mutationArgs) String(idx int, key string, into *string) error {
	raw, ok := a.Arg(idx, key)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "missing argument: "+key)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "argument "+key+" must be a string")
	}
	return nil
}

// Bool decodes the idx'th/named argument as a bool.
func (a mutationArgs) Bool(idx int, key string, into *bool) error {
	raw, ok := a.Arg(idx, key)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "missing argument: "+key)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "argument "+key+" must be a boolean")
	}
	return nil
}

// OptionalFloat64 behaves like Float64 but leaves into untouched
// (returning ok=false) when the argument is absent, for mutations whose
// arguments all carry sensible zero-value defaults.
func (a mutationArgs) OptionalFloat64(idx int, key string, into *float64) (bool, error) {
	raw, ok := a.Arg(idx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "argument "+key+" must be a number")
	}
	return true, nil
}

// OptionalInt64 is Int64's optional counterpart.
func (a mutationArgs) OptionalInt64(idx int, key string, into *int64) (bool, error) {
	raw, ok := a.Arg(idx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "argument "+key+" must be an integer")
	}
	return true, nil
}

// OptionalBool is Bool's optional counterpart.
func (a mutationArgs) OptionalBool(idx int, key string, into *bool) (bool, error) {
	raw, ok := a.Arg(idx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "argument "+key+" must be a boolean")
	}
	return true, nil
}
