package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samvad-hq/samvad-relay/internal/domain"
)

// MaxBodyBytes caps a POST /ping body; larger bodies are answered with 413.
const MaxBodyBytes = 1 << 20

// pingBody mirrors domain.RelayRequest with a pointer so that an absent or null
// url can be told apart from an empty string.
type pingBody struct {
	URL *string `json:"url" validate:"required"`
}

// bindRelayRequest decodes and checks a POST /ping body. It never writes a
// response; the caller decides how to render a rejection. The error is only
// set when the body could not be read, e.g. *http.MaxBytesError.
func bindRelayRequest(w http.ResponseWriter, r *http.Request) (domain.BindResult, error) {
	var raw []byte
	if r.Body != nil {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			return domain.BindResult{}, fmt.Errorf("read request body: %w", err)
		}
		raw = b
	}
	return bindBody(raw), nil
}

func bindBody(raw []byte) domain.BindResult {
	if len(bytes.TrimSpace(raw)) == 0 {
		return reject("None", missing("body"))
	}
	text := string(raw)

	if err := json.Unmarshal(raw, new(json.RawMessage)); err != nil {
		return reject(text, decodeError(err))
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return reject(text, decodeError(err))
	}

	obj, isObject := doc.(map[string]any)
	switch {
	case doc == nil:
		return reject(text, missing("body"))
	case !isObject:
		return reject(text, domain.FieldError{
			Loc:  []any{"body"},
			Msg:  "value is not a valid dict",
			Type: "type_error.dict",
		})
	}

	var body pingBody
	switch v := obj["url"].(type) {
	case nil:
	case string:
		body.URL = &v
	case json.Number:
		s := numberText(v)
		body.URL = &s
	case bool:
		s := "False"
		if v {
			s = "True"
		}
		body.URL = &s
	default:
		return reject(text, domain.FieldError{
			Loc:  []any{"body", "url"},
			Msg:  "str type expected",
			Type: "type_error.str",
		})
	}

	if err := validate.Struct(body); err != nil {
		return reject(text, fieldErrors(err, obj)...)
	}
	return domain.Bound(domain.RelayRequest{URL: *body.URL})
}

// fieldErrors converts validator errors into detail entries.
func fieldErrors(err error, obj map[string]any) []domain.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []domain.FieldError{{Loc: []any{"body"}, Msg: err.Error(), Type: "value_error"}}
	}

	out := make([]domain.FieldError, 0, len(verrs))
	for _, e := range verrs {
		loc := []any{"body", e.Field()}
		switch e.Tag() {
		case "required":
			if _, present := obj[e.Field()]; present {
				out = append(out, domain.FieldError{Loc: loc, Msg: "none is not an allowed value", Type: "type_error.none.not_allowed"})
			} else {
				out = append(out, missing(loc...))
			}
		default:
			out = append(out, domain.FieldError{
				Loc:  loc,
				Msg:  fmt.Sprintf("failed on the '%s' rule", e.Tag()),
				Type: "value_error." + e.Tag(),
			})
		}
	}
	return out
}

func decodeError(err error) domain.FieldError {
	// zero-based position of the offending character
	var offset int64
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) && syntaxErr.Offset > 0 {
		offset = syntaxErr.Offset - 1
	}
	return domain.FieldError{
		Loc:  []any{"body", offset},
		Msg:  err.Error(),
		Type: "value_error.jsondecode",
	}
}

func missing(loc ...any) domain.FieldError {
	return domain.FieldError{Loc: loc, Msg: "field required", Type: "value_error.missing"}
}

func reject(body string, detail ...domain.FieldError) domain.BindResult {
	return domain.Rejected(domain.ValidationFailure{
		Msg:    fmt.Sprintf("Doh!: No 'url' attribute in request body %s\n", strings.TrimRight(body, "\r\n")),
		Detail: detail,
	})
}

// numberText renders a JSON number the way it reads once coerced to a string:
// integers keep their digits, anything with a fraction or exponent is a float
// ("1e3" -> "1000.0", "1e16" -> "1e+16", "1e400" -> "inf").
func numberText(n json.Number) string {
	lit := n.String()
	if !strings.ContainsAny(lit, ".eE") {
		if i, ok := new(big.Int).SetString(lit, 10); ok {
			return i.String()
		}
		return lit
	}

	f, err := strconv.ParseFloat(lit, 64)
	if err != nil && !math.IsInf(f, 0) {
		return lit
	}
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}
	fixed := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(fixed, ".") {
		fixed += ".0"
	}
	return fixed
}
