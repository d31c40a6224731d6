package arbor

import (
	"fmt"
	"reflect"
	"strings"
)

// Schema is the registry of entity kinds: for each Go type, the kind name,
// the root translator and how to find the key.
type Schema struct {
	kinds             []*Kind
	kindsByLowerName  map[string]*Kind
	kindsByEntityType map[reflect.Type]*Kind
}

func NewSchema() *Schema {
	return &Schema{
		kindsByLowerName:  make(map[string]*Kind),
		kindsByEntityType: make(map[reflect.Type]*Kind),
	}
}

func (scm *Schema) Kinds() []*Kind {
	return append([]*Kind(nil), scm.kinds...)
}

func (scm *Schema) KindNamed(name string) *Kind {
	return scm.kindsByLowerName[strings.ToLower(name)]
}

// KindByEntityType returns the kind registered for pointer type rt, or nil.
func (scm *Schema) KindByEntityType(rt reflect.Type) *Kind {
	return scm.kindsByEntityType[rt]
}

// KindOf returns the kind of entity, which must be a pointer to a registered
// struct type.
func (scm *Schema) KindOf(entity any) (*Kind, error) {
	rt := reflect.TypeOf(entity)
	kind := scm.kindsByEntityType[rt]
	if kind == nil {
		return nil, fmt.Errorf("%w %v", ErrUnknownKind, rt)
	}
	return kind, nil
}

// KeyOf returns the key of entity.
func (scm *Schema) KeyOf(entity any) (Key, error) {
	kind, err := scm.KindOf(entity)
	if err != nil {
		return Key{}, err
	}
	return kind.KeyOf(entity), nil
}

func (scm *Schema) addKind(kind *Kind) {
	lower := strings.ToLower(kind.name)
	if scm.kindsByLowerName[lower] != nil {
		panic(fmt.Errorf("duplicate kind %s", kind.name))
	}
	if scm.kindsByEntityType[kind.entityPtrType] != nil {
		panic(fmt.Errorf("kind %s: type %v already registered as %s", kind.name, kind.entityType, scm.kindsByEntityType[kind.entityPtrType].name))
	}
	kind.pos = len(scm.kinds)
	scm.kinds = append(scm.kinds, kind)
	scm.kindsByLowerName[lower] = kind
	scm.kindsByEntityType[kind.entityPtrType] = kind
}

// Kind is a registered entity type.
type Kind struct {
	schema          *Schema
	name            string
	pos             int
	entityType      reflect.Type
	entityPtrType   reflect.Type
	entityInfo      *structInfo
	defaultIndex    bool
	autoKey         bool
	suppressContent bool

	// save and load work on *Entity values
	save func(entity any, ctx *SaveContext) (Outcome, error)
	load func(node Node, ctx *LoadContext) (any, error)
}

func (kind *Kind) Name() string {
	return kind.name
}

func (kind *Kind) String() string {
	return kind.name
}

// EntityType returns the struct type of the kind's entities.
func (kind *Kind) EntityType() reflect.Type {
	return kind.entityType
}

// Key returns a key of this kind.
func (kind *Kind) Key(name string) Key {
	return Key{kind.name, name}
}

// KeyOf returns the key of entity, which must be of this kind. The key is
// incomplete if the entity has no name yet.
func (kind *Kind) KeyOf(entity any) Key {
	return Key{kind.name, kind.keyName(reflect.ValueOf(entity))}
}

func (kind *Kind) keyName(entityVal reflect.Value) string {
	return kind.entityInfo.keyValue(entityVal).String()
}

func (kind *Kind) setKeyName(entityVal reflect.Value, name string) {
	kind.entityInfo.keyValue(entityVal).SetString(name)
}

// KindFor returns the kind registered for *T, panicking if there is none.
func KindFor[T any](scm *Schema) *Kind {
	rt := reflect.TypeFor[*T]()
	kind := scm.kindsByEntityType[rt]
	if kind == nil {
		panic(fmt.Errorf("%w %v", ErrUnknownKind, rt))
	}
	return kind
}
