package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// GenerateCommitID generates a content-addressable commit ID. The ID
// includes a digest of the schema state so that two commits with
// identical metadata but different schemas produce different IDs.
func GenerateCommitID(message string, timestamp time.Time, parentID string, snapshot *SchemaSnapshot) string {
	data := fmt.Sprintf("%s|%s|%s|%s", message, timestamp.Format(time.RFC3339Nano), parentID, ComputeSchemaDigest(snapshot))
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// GenerateMergeCommitID generates a content-addressable commit ID for
// merge commits. Includes both parent IDs and the schema digest.
func GenerateMergeCommitID(message string, timestamp time.Time, parent1, parent2 string, snapshot *SchemaSnapshot) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s", message, timestamp.Format(time.RFC3339Nano), parent1, parent2, ComputeSchemaDigest(snapshot))
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeSchemaDigest computes a Merkle-style digest over a snapshot.
// Each entity is hashed individually, the hashes are sorted, and then
// hashed together to produce a deterministic digest regardless of map
// iteration order.
func ComputeSchemaDigest(snapshot *SchemaSnapshot) string {
	if snapshot == nil || snapshot.IsEmpty() {
		return ""
	}

	var hashes []string
	add := func(kind, id string, v interface{}) {
		data, _ := json.Marshal(v)
		h := sha256.Sum256([]byte(kind + "|" + id + "|" + string(data)))
		hashes = append(hashes, hex.EncodeToString(h[:]))
	}

	for id, obj := range snapshot.Objects {
		add("object", id, obj)
	}
	for id, link := range snapshot.Links {
		add("link", id, link)
	}
	for owner, props := range snapshot.Properties {
		for name, prop := range props {
			add("property", owner+"."+name, prop)
		}
	}
	for id, constraint := range snapshot.Constraints {
		add("constraint", id, constraint)
	}

	sort.Strings(hashes)

	combined := strings.Join(hashes, "")
	final := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(final[:])
}
