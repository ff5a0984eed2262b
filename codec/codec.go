// Package codec translates submission answers between their external
// label-based form and the key-based form that is actually stored.
// Encoding resolves labels against the current registry state and
// rejects anything unresolvable; decoding projects stored keys back
// onto current labels, so a rename changes how every past answer is
// displayed without touching a single stored row.
package codec

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"

	"github.com/mbolis/quick-forms/apperr"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/registry"
)

// UnknownOption is the sentinel a stored key decodes to when its
// option no longer exists on the question. Historical submissions
// stay readable after schema edits.
const UnknownOption = "[unknown option]"

const dateFormat = "2006-01-02"

var reEmail = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Encode validates a raw answer for the question and returns the
// stored representation. Any failure means the whole value is
// rejected: there is no partially-encoded result.
func Encode(q model.Question, opts registry.Options, raw any) ([]byte, error) {
	encoded, err := encodeValue(q, opts, raw)
	if err != nil {
		return nil, err
	}

	stored, err := json.Marshal(encoded)
	if err != nil {
		return nil, apperr.Fatal(err, "codec.encode.marshal")
	}
	return stored, nil
}

func encodeValue(q model.Question, opts registry.Options, raw any) (any, error) {
	if model.IsChoiceType(q.Type) {
		if model.IsMultiType(q.Type) {
			return encodeMultiChoice(opts, raw)
		}
		return encodeChoice(opts, raw)
	}
	return encodeTyped(q, raw)
}

func encodeChoice(opts registry.Options, raw any) (any, error) {
	label, ok := raw.(string)
	if !ok {
		return nil, apperr.Validation("expected an option label, got %T", raw)
	}
	key, ok := opts.Resolve(label)
	if !ok {
		return nil, apperr.Validation("unknown option label %q", label)
	}
	return key, nil
}

func encodeMultiChoice(opts registry.Options, raw any) (any, error) {
	labels, err := stringSlice(raw)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, label := range labels {
		if seen[label] {
			return nil, apperr.Validation("duplicate option label %q", label)
		}
		seen[label] = true
	}

	var errs *multierror.Error
	keys := make([]string, 0, len(labels))
	for _, label := range labels {
		key, ok := opts.Resolve(label)
		if !ok {
			errs = multierror.Append(errs, apperr.Validation("unknown option label %q", label))
			continue
		}
		keys = append(keys, key)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return keys, nil
}

func stringSlice(raw any) ([]string, error) {
	switch vs := raw.(type) {
	case []string:
		return vs, nil
	case []any:
		labels := make([]string, len(vs))
		for i, v := range vs {
			label, ok := v.(string)
			if !ok {
				return nil, apperr.Validation("expected option labels, got %T", v)
			}
			labels[i] = label
		}
		return labels, nil
	}
	return nil, apperr.Validation("expected a list of option labels, got %T", raw)
}

func encodeTyped(q model.Question, raw any) (any, error) {
	switch q.Type {
	case model.TypeText:
		s, ok := raw.(string)
		if !ok {
			return nil, apperr.Validation("expected text, got %T", raw)
		}
		return s, nil

	case model.TypeNumber:
		return coerceNumber(raw)

	case model.TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, apperr.Validation("expected a boolean, got %T", raw)
		}
		return b, nil

	case model.TypeEmail:
		s, ok := raw.(string)
		if !ok || !reEmail.MatchString(s) {
			return nil, apperr.Validation("invalid email address %v", raw)
		}
		return s, nil

	case model.TypeDate:
		s, ok := raw.(string)
		if !ok {
			return nil, apperr.Validation("expected a date string, got %T", raw)
		}
		if _, err := time.Parse(dateFormat, s); err != nil {
			return nil, apperr.Validation("invalid date %q, want YYYY-MM-DD", s)
		}
		return s, nil

	case model.TypeRating:
		n, err := coerceNumber(raw)
		if err != nil {
			return nil, err
		}
		if n != math.Trunc(n) || n < 1 || n > 5 {
			return nil, apperr.Validation("rating must be an integer between 1 and 5, got %v", raw)
		}
		return int(n), nil
	}

	return nil, apperr.Validation("unsupported question type %q", q.Type)
}

func coerceNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, apperr.Validation("invalid number %q", v)
		}
		return n, nil
	}
	return 0, apperr.Validation("expected a number, got %T", raw)
}

// Decode turns a stored answer back into its display form using the
// current labels. A key with no current mapping decodes to the
// UnknownOption sentinel rather than failing.
func Decode(q model.Question, opts registry.Options, stored []byte) (any, error) {
	if !model.IsChoiceType(q.Type) {
		var value any
		if err := json.Unmarshal(stored, &value); err != nil {
			return nil, apperr.Fatal(err, "codec.decode.unmarshal")
		}
		return value, nil
	}

	if model.IsMultiType(q.Type) {
		var keys []string
		if err := json.Unmarshal(stored, &keys); err != nil {
			return nil, apperr.Fatal(err, "codec.decode.unmarshal_keys")
		}
		labels := make([]string, len(keys))
		for i, key := range keys {
			labels[i] = labelOrSentinel(opts, key)
		}
		return labels, nil
	}

	var key string
	if err := json.Unmarshal(stored, &key); err != nil {
		return nil, apperr.Fatal(err, "codec.decode.unmarshal_key")
	}
	return labelOrSentinel(opts, key), nil
}

func labelOrSentinel(opts registry.Options, key string) string {
	label, ok := opts.LabelFor(key)
	if !ok {
		return fmt.Sprintf("%s %s", UnknownOption, key)
	}
	return label
}
