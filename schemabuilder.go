package arbor

import (
	"fmt"
	"reflect"
)

type KindBuilder[Entity any] struct {
	kind *Kind
	tr   Translator[Entity]
}

// DefineKind registers Entity as kind name. The first field of Entity must be
// an exported string holding the key name; tag it `arbor:"-"` to keep it out
// of the stored tree, since it is restored from the key on load.
//
// By default the entity is translated with Reflect[Entity] and its values are
// indexed.
func DefineKind[Entity any](scm *Schema, name string, f func(b *KindBuilder[Entity])) *Kind {
	entityPtrType := reflect.TypeFor[*Entity]()
	if entityPtrType.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("DefineKind(%s): Entity must be a struct", name))
	}
	if name == "" {
		panic("DefineKind: empty kind name")
	}
	kind := &Kind{
		schema:        scm,
		name:          name,
		entityPtrType: entityPtrType,
		entityType:    entityPtrType.Elem(),
		entityInfo:    reflectType(entityPtrType),
		defaultIndex:  true,
	}

	b := KindBuilder[Entity]{kind: kind}
	if f != nil {
		f(&b)
	}
	tr := b.tr
	if tr == nil {
		tr = Reflect[Entity]()
	}
	kind.save = func(entity any, ctx *SaveContext) (Outcome, error) {
		out, err := tr.Save(*entity.(*Entity), Root, ctx.DefaultIndex, ctx)
		if err != nil {
			return Omitted, savedAt(err, Root)
		}
		return out, nil
	}
	kind.load = func(node Node, ctx *LoadContext) (any, error) {
		v, err := tr.Load(node, ctx)
		if err != nil {
			return nil, atPath(err, Root)
		}
		return &v, nil
	}
	scm.addKind(kind)
	return kind
}

// Translator replaces the reflection-derived root translator.
func (b *KindBuilder[Entity]) Translator(tr Translator[Entity]) {
	b.tr = tr
}

// Unindexed makes values unindexed unless a field says otherwise.
func (b *KindBuilder[Entity]) Unindexed() {
	b.kind.defaultIndex = false
}

// AutoKey assigns a random UUID name to entities saved without one.
func (b *KindBuilder[Entity]) AutoKey() {
	b.kind.autoKey = true
}

func (b *KindBuilder[Entity]) SuppressContentWhenLogging() {
	b.kind.suppressContent = true
}
