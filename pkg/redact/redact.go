// Package redact implements the sensitive-field redaction cross-cutting
// concern: before any payload crosses the wire or hits a log sink, fields
// matching a configured predicate are replaced with a constant marker.
// This must never be bypassed for LOG or ALERT traffic.
package redact

import (
	"encoding/json"
	"regexp"
	"strconv"
)

// Marker replaces the value of any field a Predicate matches.
const Marker = "***REDACTED***"

// Predicate decides whether the field at path (dot-separated, e.g.
// "wifi.radios.0.psk") carries a sensitive value.
type Predicate struct {
	paths   map[string]struct{}
	regexes []*regexp.Regexp
}

// NewPredicate compiles a predicate from an explicit path list and a set of
// regexes matched against the full path. Either may be empty.
func NewPredicate(paths []string, patterns []string) (*Predicate, error) {
	p := &Predicate{paths: make(map[string]struct{}, len(paths))}
	for _, path := range paths {
		p.paths[path] = struct{}{}
	}
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		p.regexes = append(p.regexes, re)
	}
	return p, nil
}

// Matches reports whether path is sensitive under this predicate.
func (p *Predicate) Matches(path string) bool {
	if p == nil {
		return false
	}
	if _, ok := p.paths[path]; ok {
		return true
	}
	for _, re := range p.regexes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// DefaultKeyPatterns matches common secret-bearing field names regardless
// of which section they appear under: api keys, pre-shared keys, VPN
// private keys, passwords.
var DefaultKeyPatterns = []string{
	`(?i)(^|\.)api_key$`,
	`(?i)(^|\.)psk$`,
	`(?i)(^|\.)password$`,
	`(?i)(^|\.)private_key$`,
	`(?i)(^|\.)secret$`,
}

// DefaultPredicate is the predicate applied when an adapter does not
// configure its own.
var DefaultPredicate, _ = NewPredicate(nil, DefaultKeyPatterns)

// JSON walks a JSON-compatible value (the result of json.Unmarshal into
// interface{}, or any value accepted by json.Marshal after a round-trip)
// and returns a copy with every sensitive leaf replaced by Marker.
func JSON(v interface{}, p *Predicate) interface{} {
	if p == nil {
		p = DefaultPredicate
	}
	return redactValue(v, "", p)
}

// Bytes redacts a JSON document given as raw bytes, returning the redacted
// JSON re-encoded. Used on outbound payloads right before they're written
// to the WebSocket or a log sink.
func Bytes(data []byte, p *Predicate) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(JSON(v, p))
}

func redactValue(v interface{}, path string, p *Predicate) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			if p.Matches(childPath) {
				out[k] = Marker
				continue
			}
			out[k] = redactValue(val, childPath, p)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			childPath := strconv.Itoa(i)
			if path != "" {
				childPath = path + "." + childPath
			}
			if p.Matches(childPath) {
				out[i] = Marker
				continue
			}
			out[i] = redactValue(val, childPath, p)
		}
		return out
	default:
		return v
	}
}
