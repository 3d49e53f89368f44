package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseError carries the raw model output that could not be decoded.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Decoded is the tagged result of decoding a structured model reply:
// either a validated Value or a ParseError. Callers decide the fallback.
type Decoded[T any] struct {
	Value T
	Err   *ParseError
}

// OK reports whether decoding succeeded.
func (d Decoded[T]) OK() bool {
	return d.Err == nil
}

func decodeFailure[T any](raw string, err error) Decoded[T] {
	return Decoded[T]{Err: &ParseError{Raw: raw, Err: err}}
}

// DecodeSafetyVerdict decodes a guard reply. Exactly the fields is_safe
// (bool) and reason (string) must be present.
func DecodeSafetyVerdict(raw string) Decoded[SafetyVerdict] {
	var wire struct {
		IsSafe *bool   `json:"is_safe"`
		Reason *string `json:"reason"`
	}
	if err := decodeStrict(raw, &wire, true); err != nil {
		return decodeFailure[SafetyVerdict](raw, err)
	}
	if wire.IsSafe == nil {
		return decodeFailure[SafetyVerdict](raw, errors.New("missing field is_safe"))
	}
	if wire.Reason == nil {
		return decodeFailure[SafetyVerdict](raw, errors.New("missing field reason"))
	}
	return Decoded[SafetyVerdict]{Value: SafetyVerdict{IsSafe: *wire.IsSafe, Reason: *wire.Reason}}
}

// DecodeReviewVerdict decodes a reviewer reply. decision is required and
// must be a non-empty string; reason is optional. Additional fields such as
// checklist scores are ignored.
func DecodeReviewVerdict(raw string) Decoded[ReviewVerdict] {
	var wire struct {
		Decision *string `json:"decision"`
		Reason   *string `json:"reason"`
	}
	if err := decodeStrict(raw, &wire, false); err != nil {
		return decodeFailure[ReviewVerdict](raw, err)
	}
	if wire.Decision == nil || strings.TrimSpace(*wire.Decision) == "" {
		return decodeFailure[ReviewVerdict](raw, errors.New("missing field decision"))
	}
	v := ReviewVerdict{Decision: Decision(strings.ToLower(strings.TrimSpace(*wire.Decision)))}
	if wire.Reason != nil {
		v.Reason = *wire.Reason
	}
	return Decoded[ReviewVerdict]{Value: v}
}

// decodeStrict decodes exactly one JSON object from raw into dst.
// A surrounding markdown code fence is tolerated. Repeated top-level keys
// are rejected: encoding/json would silently keep the last one.
func decodeStrict(raw string, dst any, disallowUnknown bool) error {
	body := stripCodeFence(raw)
	if body == "" {
		return errors.New("empty response")
	}
	if err := checkDuplicateKeys(body); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if disallowUnknown {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		return err
	}
	var trailing json.RawMessage
	if err := dec.Decode(&trailing); err != io.EOF {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

// checkDuplicateKeys reports a top-level key that appears twice, compared
// case-insensitively as encoding/json matches field names. Malformed input
// is left to the decoder.
func checkDuplicateKeys(body string) error {
	dec := json.NewDecoder(strings.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}

	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil
		}
		folded := strings.ToLower(key)
		if seen[folded] {
			return fmt.Errorf("duplicate field %s", key)
		}
		seen[folded] = true

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil
		}
	}
	return nil
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	// drop an info string such as "json"
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
