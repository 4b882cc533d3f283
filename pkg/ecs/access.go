package ecs

import (
	"fmt"
	"slices"
	"strings"
)

// AccessKind separates the namespaces a system can touch. The same Go type used as a resource
// and as a component occupies two unrelated slots.
type AccessKind uint8

const (
	KindResource AccessKind = iota
	KindGlobal
	KindComponent
)

func (k AccessKind) String() string {
	switch k {
	case KindResource:
		return "resource"
	case KindGlobal:
		return "global"
	case KindComponent:
		return "component"
	default:
		return "unknown"
	}
}

type AccessMode uint8

const (
	Read AccessMode = iota
	Write
)

func (m AccessMode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

// AccessItem is one declared access of a system.
type AccessItem struct {
	Kind AccessKind
	Key  ResourceKey
	Mode AccessMode
}

func (a AccessItem) String() string {
	return fmt.Sprintf("%s %s %s", a.Mode, a.Kind, a.Key)
}

type accessSlot struct {
	kind AccessKind
	key  ResourceKey
}

func (a AccessItem) slot() accessSlot {
	return accessSlot{kind: a.Kind, key: a.Key}
}

func ReadsResource[T any]() AccessItem {
	return AccessItem{Kind: KindResource, Key: KeyOf[T](), Mode: Read}
}

func WritesResource[T any]() AccessItem {
	return AccessItem{Kind: KindResource, Key: KeyOf[T](), Mode: Write}
}

func ReadsGlobal[T any]() AccessItem {
	return AccessItem{Kind: KindGlobal, Key: KeyOf[T](), Mode: Read}
}

func WritesGlobal[T any]() AccessItem {
	return AccessItem{Kind: KindGlobal, Key: KeyOf[T](), Mode: Write}
}

func ReadsComponent[T any]() AccessItem {
	return AccessItem{Kind: KindComponent, Key: KeyOf[T](), Mode: Read}
}

func WritesComponent[T any]() AccessItem {
	return AccessItem{Kind: KindComponent, Key: KeyOf[T](), Mode: Write}
}

// -------------------------------------------------------------------------------------------------
// SystemMeta
// -------------------------------------------------------------------------------------------------

// SystemMeta is the declared access of one system. Declaring both a read and a write of the same
// slot keeps only the write.
type SystemMeta struct {
	Name  string
	modes map[accessSlot]AccessMode
	order []accessSlot
}

func NewSystemMeta(name string, items ...AccessItem) *SystemMeta {
	m := &SystemMeta{Name: name, modes: make(map[accessSlot]AccessMode)}
	return m.Declare(items...)
}

// Declare adds items to the meta.
func (m *SystemMeta) Declare(items ...AccessItem) *SystemMeta {
	for _, item := range items {
		slot := item.slot()
		current, seen := m.modes[slot]
		if !seen {
			m.order = append(m.order, slot)
		}
		m.modes[slot] = max(current, item.Mode)
	}
	return m
}

// Reads declares a shared access to key in the given namespace.
func (m *SystemMeta) Reads(kind AccessKind, key ResourceKey) *SystemMeta {
	return m.Declare(AccessItem{Kind: kind, Key: key, Mode: Read})
}

// Writes declares an exclusive access to key in the given namespace.
func (m *SystemMeta) Writes(kind AccessKind, key ResourceKey) *SystemMeta {
	return m.Declare(AccessItem{Kind: kind, Key: key, Mode: Write})
}

// Items returns the declared accesses in declaration order.
func (m *SystemMeta) Items() []AccessItem {
	items := make([]AccessItem, 0, len(m.order))
	for _, slot := range m.order {
		items = append(items, AccessItem{Kind: slot.kind, Key: slot.key, Mode: m.modes[slot]})
	}
	return items
}

// Declares reports whether the meta covers an access of the given mode.
func (m *SystemMeta) Declares(kind AccessKind, key ResourceKey, mode AccessMode) bool {
	declared, ok := m.modes[accessSlot{kind: kind, key: key}]
	return ok && declared >= mode
}

// -------------------------------------------------------------------------------------------------
// Conflict checking
// -------------------------------------------------------------------------------------------------

// ConflictError names the two systems that cannot share a stage and the slot they fight over.
type ConflictError struct {
	Stage     string
	System    string
	Other     string
	Kind      AccessKind
	Key       ResourceKey
	Mode      AccessMode
	OtherMode AccessMode
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("stage %q: system %q wants %s %s %s, but system %q holds %s",
		e.Stage, e.System, e.Mode, e.Kind, e.Key, e.Other, e.OtherMode)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrAccessConflict //nolint:errorlint // sentinel identity
}

type slotOwners struct {
	writer  string
	readers []string
}

// stageAccess accumulates the access of every system admitted to a stage.
type stageAccess struct {
	stage  string
	owners map[accessSlot]*slotOwners
}

func newStageAccess(stage string) stageAccess {
	return stageAccess{stage: stage, owners: make(map[accessSlot]*slotOwners)}
}

// check returns a *ConflictError for the first declared item of meta that conflicts with an
// admitted system. Read/read never conflicts.
func (s *stageAccess) check(meta *SystemMeta) error {
	for _, slot := range meta.order {
		owners, ok := s.owners[slot]
		if !ok {
			continue
		}
		mode := meta.modes[slot]
		conflict := &ConflictError{Stage: s.stage, System: meta.Name, Kind: slot.kind, Key: slot.key, Mode: mode}
		switch {
		case owners.writer != "":
			conflict.Other, conflict.OtherMode = owners.writer, Write
			return conflict
		case mode == Write && len(owners.readers) > 0:
			conflict.Other, conflict.OtherMode = owners.readers[0], Read
			return conflict
		}
	}
	return nil
}

func (s *stageAccess) add(meta *SystemMeta) {
	for _, slot := range meta.order {
		owners, ok := s.owners[slot]
		if !ok {
			owners = &slotOwners{}
			s.owners[slot] = owners
		}
		if meta.modes[slot] == Write {
			owners.writer = meta.Name
		} else {
			owners.readers = append(owners.readers, meta.Name)
		}
	}
}

// describe lists the slots held in the stage, for logs.
func (s *stageAccess) describe() string {
	parts := make([]string, 0, len(s.owners))
	for slot, owners := range s.owners {
		if owners.writer != "" {
			parts = append(parts, fmt.Sprintf("%s %s<-%s", slot.kind, slot.key, owners.writer))
		} else {
			parts = append(parts, fmt.Sprintf("%s %s<-%s", slot.kind, slot.key, strings.Join(owners.readers, ",")))
		}
	}
	slices.Sort(parts)
	return strings.Join(parts, "; ")
}
