package arbor

import (
	"fmt"
	"strings"
)

const indentStep = "  "

// Dump renders node as compact JSON for logs.
func Dump(node Node) string {
	if node == nil {
		return "<none>"
	}
	raw, err := MarshalNodeJSON(node)
	if err != nil {
		return fmt.Sprintf("<unrenderable: %v>", err)
	}
	return string(raw)
}

// DumpTree renders node one value per line, with index flags. Indexed leaves
// are marked with an asterisk.
func DumpTree(node Node) string {
	var buf strings.Builder
	dumpTree(&buf, "", "", node)
	return buf.String()
}

func dumpTree(w *strings.Builder, indent, label string, node Node) {
	switch node := node.(type) {
	case *Leaf:
		mark := ""
		if node.indexed {
			mark = "*"
		}
		fmt.Fprintf(w, "%s%s%s%s\n", indent, label, formatLeafValue(node.value), mark)
	case *List:
		fmt.Fprintf(w, "%s%s[%d]\n", indent, label, node.Len())
		for i, item := range node.All() {
			dumpTree(w, indent+indentStep, fmt.Sprintf("%d: ", i), item)
		}
	case *Map:
		fmt.Fprintf(w, "%s%s{%d}\n", indent, label, node.Len())
		for name, child := range node.All() {
			dumpTree(w, indent+indentStep, name+": ", child)
		}
	default:
		fmt.Fprintf(w, "%s%s<none>\n", indent, label)
	}
}
