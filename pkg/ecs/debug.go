package ecs

import (
	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"
	"github.com/shamaton/msgpack/v2"
)

type worldSnapshot struct {
	ID             string                         `json:"id"`
	Tick           Tick                           `json:"tick"`
	LastMaintained Tick                           `json:"lastMaintained"`
	Entities       int                            `json:"entities"`
	Components     map[string][]componentSnapshot `json:"components"`
	Resources      []string                       `json:"resources"`
	Globals        []string                       `json:"globals"`
}

func (w *World) snapshot() (worldSnapshot, error) {
	snap := worldSnapshot{
		ID:             w.id,
		Tick:           w.Tick(),
		LastMaintained: w.LastMaintained(),
		Entities:       w.entities.count(),
		Components:     make(map[string][]componentSnapshot),
		Resources:      keyNames(w.resources.Keys()),
		Globals:        keyNames(w.globals.Keys()),
	}

	for _, col := range w.sortedColumns() {
		rows, err := col.snapshot(&w.entities)
		if err != nil {
			return worldSnapshot{}, eris.Wrapf(err, "failed to snapshot world %s", w.id)
		}
		snap.Components[col.key().String()] = rows
	}
	return snap, nil
}

// DebugSnapshot renders the world as JSON: every component value with its entity and ticks, and
// the names of every resource and global. Panics if a column is exclusively borrowed.
func (w *World) DebugSnapshot() ([]byte, error) {
	snap, err := w.snapshot()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal world snapshot")
	}
	return data, nil
}

// DebugSnapshotMsgpack is DebugSnapshot in msgpack. Component values stay JSON encoded.
func (w *World) DebugSnapshotMsgpack() ([]byte, error) {
	snap, err := w.snapshot()
	if err != nil {
		return nil, err
	}
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal world snapshot")
	}
	return data, nil
}

// ComponentSchemas returns the JSON schema of every registered component, keyed by component name.
func (w *World) ComponentSchemas() map[string]*jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		Anonymous:      true, // Don't add $id based on package path
		ExpandedStruct: true, // Inline the struct fields directly
	}

	cols := w.sortedColumns()
	schemas := make(map[string]*jsonschema.Schema, len(cols))
	for _, col := range cols {
		schemas[col.key().String()] = reflector.ReflectFromType(col.key().Type())
	}
	return schemas
}

func keyNames(keys []ResourceKey) []string {
	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = key.String()
	}
	return names
}
