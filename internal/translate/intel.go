// Package translate maps between the canonical model and one app's native
// event vocabulary. This file implements the STIX-2 pattern -> Zeek Intel
// direction; management.go and sighting.go cover the other two directions.
package translate

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adisbladis/threatbus/internal/model"
)

// zeekIntelTypeMap is the closed translation table from STIX-2 object paths
// to Zeek Intel::Type tags. See the Zeek INTEL framework and STIX-2 cyber
// observable object docs.
var zeekIntelTypeMap = map[string]string{
	"domain-name:value":               "DOMAIN",
	"email-addr:value":                "EMAIL",
	"file:name":                       "FILE_NAME",
	"file:hashes.MD5":                 "FILE_HASH",
	"file:hashes.'SHA-1'":             "FILE_HASH",
	"file:hashes.'SHA-256'":           "FILE_HASH",
	"file:hashes.'SHA-512'":           "FILE_HASH",
	"file:hashes.'SHA3-256'":          "FILE_HASH",
	"file:hashes.'SHA3-512'":          "FILE_HASH",
	"file:hashes.SSDEEP":              "FILE_HASH",
	"file:hashes.TLSH":                "FILE_HASH",
	"ipv4-addr:value":                 "ADDR",
	"ipv6-addr:value":                 "ADDR",
	"software:name":                   "SOFTWARE",
	"url:value":                       "URL",
	"user:user_id":                    "USER_NAME",
	"user:account_login":              "USER_NAME",
	"x509-certificate:hashes.'SHA-1'": "CERT_HASH",
}

var subnetPattern = regexp.MustCompile(`.+/.+`)

// IntelEvent is the Zeek-native shape of a translated Indicator: a
// positional argument tuple (created, id, tag, value, operation).
type IntelEvent struct {
	Created   time.Time
	ID        string
	Tag       string
	Value     string
	Operation model.Operation
}

// IsPointEqualityIoC reports whether pattern consists of exactly one
// observation with exactly one equality comparison, no qualifiers and no
// observation operators — i.e. it is shaped like "[path = 'literal']" with
// nothing else.
func IsPointEqualityIoC(pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if !strings.HasPrefix(pattern, "[") || !strings.HasSuffix(pattern, "]") {
		return false
	}
	if strings.Count(pattern, "[") != 1 || strings.Count(pattern, "]") != 1 {
		return false
	}
	inner := pattern[1 : len(pattern)-1]
	parts := strings.Split(inner, "=")
	if len(parts) != 2 {
		return false
	}
	path := strings.TrimSpace(parts[0])
	if path == "" || strings.ContainsAny(path[len(path)-1:], "!<>") {
		return false
	}
	return strings.TrimSpace(parts[1]) != ""
}

// ToIntelEvent maps a canonical Indicator to its Zeek Intel wire shape.
// It returns ok=false (and logs at debug) when the pattern is compound or
// its object path has no entry in the translation table.
func ToIntelEvent(ind model.Indicator, logger *zap.Logger) (IntelEvent, bool) {
	if !IsPointEqualityIoC(ind.Pattern) {
		logger.Debug("cannot map compound or qualified pattern to Zeek Intel item",
			zap.String("pattern", ind.Pattern))
		return IntelEvent{}, false
	}

	inner := strings.TrimSpace(ind.Pattern)
	inner = inner[1 : len(inner)-1]
	parts := strings.SplitN(inner, "=", 2)
	objectPath := strings.TrimSpace(parts[0])
	value := unquote(strings.TrimSpace(parts[1]))

	tag, ok := zeekIntelTypeMap[objectPath]
	if !ok {
		logger.Debug("no matching Zeek type for STIX-2 object path", zap.String("path", objectPath))
		return IntelEvent{}, false
	}

	switch {
	case tag == "URL":
		value = stripScheme(value)
	case tag == "ADDR" && subnetPattern.MatchString(value):
		tag = "SUBNET"
	}

	operation := model.OpAdd
	if ind.UpdateOp == model.OpRemove {
		operation = model.OpRemove
	}

	return IntelEvent{
		Created:   ind.Created,
		ID:        ind.ID,
		Tag:       tag,
		Value:     value,
		Operation: operation,
	}, true
}

// unquote strips a single layer of matching surrounding quotes, if present.
func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '\'' && v[len(v)-1] == '\'') || (v[0] == '"' && v[len(v)-1] == '"') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// stripScheme removes at most one leading http:// or https:// scheme,
// case-sensitive, as the Zeek URL Intel type never carries a scheme.
func stripScheme(v string) string {
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(v, scheme) {
			return v[len(scheme):]
		}
	}
	return v
}
