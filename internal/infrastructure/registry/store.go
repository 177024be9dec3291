package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
)

// Item is one record in the registry store, addressed by a two-part key:
// a partition key ("FRAMEWORK#<id>", "TENANT#<id>", "CATALOG") and a sort
// key ("#METADATA", "RULE#<ruleId>", "FRAMEWORK#<frameworkId>"). Payload is
// the JSON document stored under that key.
type Item struct {
	PK      string
	SK      string
	Payload json.RawMessage
}

// ErrItemNotFound marks an absent key, distinct from a store failure.
var ErrItemNotFound = errors.New("registry item not found")

// Store is the registry's persistence contract. Any key-value or document
// store supporting range scans on the sort key satisfies it. Query returns
// items in ascending sort-key order with an opaque continuation cursor;
// an empty cursor means the scan is exhausted.
type Store interface {
	Put(ctx context.Context, item Item) error
	Get(ctx context.Context, pk, sk string) (Item, error)
	Query(ctx context.Context, pk, skPrefix string, limit int, cursor string) ([]Item, string, error)
	Delete(ctx context.Context, pk, sk string) error
	Close()
}

// Pagination cursors are base64-encoded continuation positions (the last
// sort key seen). They are opaque to callers and interchangeable between
// store implementations.

func EncodeCursor(lastSK string) string {
	if lastSK == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(lastSK))
}

func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return "", errors.New("malformed pagination cursor")
	}
	return string(raw), nil
}

// Key builders for the registry's partition layout.

func FrameworkPK(frameworkID string) string { return "FRAMEWORK#" + frameworkID }
func TenantPK(tenantID string) string       { return "TENANT#" + tenantID }

const (
	CatalogPK  = "CATALOG"
	MetadataSK = "#METADATA"
)

func RuleSK(ruleID string) string           { return "RULE#" + ruleID }
func FrameworkSK(frameworkID string) string { return "FRAMEWORK#" + frameworkID }
