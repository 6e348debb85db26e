package domain

// Patch is a field-level partial update. Keys are wire-format field names
// (snake_case); values replace the current field value. A Patch never
// represents a full entity, only the fields the user actually touched.
type Patch map[string]any

// Clone returns an independent shallow copy of the patch.
func (p Patch) Clone() Patch {
	if p == nil {
		return nil
	}
	out := make(Patch, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Entity is implemented by durable records held in the entity store.
type Entity interface {
	// EntityID returns the stable server-assigned identifier.
	EntityID() int64

	// Clone returns a deep, independent copy of the entity.
	Clone() Entity

	// Field returns the named field's current value. The second return is
	// false for a field the entity does not have.
	Field(name string) (any, bool)

	// SetField assigns the named field, returning false for an unknown
	// field or a value of an incompatible type.
	SetField(name string, value any) bool
}

// ApplyPatch sets every patch field on the entity and returns the names of
// fields the entity rejected, in no particular order.
func ApplyPatch(e Entity, p Patch) []string {
	var rejected []string
	for name, value := range p {
		if !e.SetField(name, value) {
			rejected = append(rejected, name)
		}
	}
	return rejected
}

// SnapshotFields captures the entity's current values for exactly the fields
// the patch touches. Fields the entity does not have are omitted.
func SnapshotFields(e Entity, p Patch) Patch {
	snapshot := make(Patch, len(p))
	for name := range p {
		if v, ok := e.Field(name); ok {
			snapshot[name] = v
		}
	}
	return snapshot
}
