package arbor

import (
	"errors"
	"net/netip"
	"strings"
	"testing"
)

func TestReflect_Tags(t *testing.T) {
	tr := Reflect[Widget]()
	out := must(SaveRoot(tr, Widget{ID: "w1", Name: "a", Count: 2, Notes: "n"}, true))

	want := NewMap()
	want.Set("name", NewLeaf("a", true))
	want.Set("count", NewLeaf(int64(2), true))
	want.Set("notes", NewLeaf("n", false))
	nodeEqual(t, out.Node(), want)

	got := must(LoadRoot(tr, out.Node()))
	deepEqual(t, got, Widget{Name: "a", Count: 2, Tags: []string{}, Notes: "n"})
}

func TestReflect_DefaultNamesAndNesting(t *testing.T) {
	type inner struct {
		Host netip.Addr
		Port uint16 `arbor:"port,index"`
	}
	type outer struct {
		Label    string
		Primary  inner
		Backups  []inner
		Extra    *inner
		Labels   map[string]string
		Payload  []byte
		Ratio    float32
		internal int
	}
	v := outer{
		Label:   "x",
		Primary: inner{netip.MustParseAddr("10.0.0.1"), 80},
		Backups: []inner{{netip.MustParseAddr("10.0.0.2"), 81}},
		Labels:  map[string]string{"env": "prod"},
		Payload: []byte("hi"),
		Ratio:   0.5,
	}
	tr := Reflect[outer]()
	out := must(SaveRoot(tr, v, false))
	m := out.Node().(*Map)
	deepEqual(t, m.Names(), []string{"Label", "Primary", "Backups", "Extra", "Labels", "Payload", "Ratio"})
	if got := Dump(must(m.Field("Primary"))); got != `{"Host":"10.0.0.1","port":80}` {
		t.Errorf("Primary = %s", got)
	}
	deepEqual(t, must(LoadRoot(tr, out.Node())), v)
}

type treeNode struct {
	Name     string
	Children []treeNode `arbor:",omitempty"`
	Parent   *treeNode  `arbor:",omitempty"`
}

func TestReflect_RecursiveTypes(t *testing.T) {
	v := treeNode{Name: "root", Children: []treeNode{{Name: "a"}, {Name: "b", Children: []treeNode{{Name: "c"}}}}}
	tr := Reflect[treeNode]()
	out := must(SaveRoot(tr, v, false))
	if got := Dump(out.Node()); got != `{"Name":"root","Children":[{"Name":"a"},{"Name":"b","Children":[{"Name":"c"}]}]}` {
		t.Fatalf("saved %s", got)
	}
	got := must(LoadRoot(tr, out.Node()))
	if got.Children[1].Children[0].Name != "c" {
		t.Errorf("loaded %+v", got)
	}
}

func TestReflect_LoadErrors(t *testing.T) {
	type small struct {
		N     int8
		Owner string `arbor:",required"`
	}
	tr := Reflect[small]()

	m := NewMap()
	m.Set("N", NewLeaf(int64(1000), false))
	m.Set("Owner", NewLeaf("me", false))
	_, err := LoadRoot(tr, m)
	if err == nil || !strings.HasPrefix(err.Error(), "N: ") {
		t.Errorf("err = %v, wanted overflow at N", err)
	}

	m = NewMap()
	m.Set("N", NewLeaf(int64(1), false))
	_, err = LoadRoot(tr, m)
	var nfe *NotFoundError
	if !errors.As(err, &nfe) || nfe.Field != "Owner" {
		t.Errorf("err = %v, wanted NotFoundError for Owner", err)
	}
}

func TestReflect_InvalidTypesPanic(t *testing.T) {
	type withChan struct{ C chan int }
	type withIntMap struct{ M map[int]string }
	type badTag struct {
		S string `arbor:",sparkly"`
	}
	type dupName struct {
		A string `arbor:"x"`
		B string `arbor:"x"`
	}
	tests := []struct {
		name string
		f    func()
	}{
		{"chan", func() { Reflect[withChan]() }},
		{"int map", func() { Reflect[withIntMap]() }},
		{"bad tag", func() { Reflect[badTag]() }},
		{"dup name", func() { Reflect[dupName]() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("expected panic")
				}
			}()
			tt.f()
		})
	}
}
