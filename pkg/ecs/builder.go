package ecs

import "github.com/funnisimo/goblinwerks/pkg/assert"

// EntityBuilder attaches components to a freshly created entity.
type EntityBuilder struct {
	world  *World
	entity Entity
	built  bool
}

// With adds a component. Panics if its type was never registered.
func (b *EntityBuilder) With(component any) *EntityBuilder {
	assert.That(!b.built, "%s is already built", b.entity)
	err := b.world.AddComponent(b.entity, component)
	assert.That(err == nil, "builder entity %s died before build: %v", b.entity, err)
	return b
}

// Build finishes the entity and returns its handle.
func (b *EntityBuilder) Build() Entity {
	b.built = true
	return b.entity
}
