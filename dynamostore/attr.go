package dynamostore

import (
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/andreyvit/arbor"
)

// nodeToAttr maps a node onto the natural DynamoDB attribute: lists to L,
// maps to M and leaves to scalars. Times are stored as RFC 3339 strings.
// Index flags are not stored.
func nodeToAttr(node arbor.Node) (types.AttributeValue, error) {
	switch node := node.(type) {
	case *arbor.Leaf:
		v := node.Value()
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("dynamostore: leaf %T: %w", v, err)
		}
		return av, nil
	case *arbor.List:
		items := make([]types.AttributeValue, 0, node.Len())
		for i, item := range node.All() {
			av, err := nodeToAttr(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, av)
		}
		return &types.AttributeValueMemberL{Value: items}, nil
	case *arbor.Map:
		fields := make(map[string]types.AttributeValue, node.Len())
		for name, child := range node.All() {
			av, err := nodeToAttr(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			fields[name] = av
		}
		return &types.AttributeValueMemberM{Value: fields}, nil
	default:
		return nil, fmt.Errorf("dynamostore: unsupported node %T", node)
	}
}

// attrToNode reverses nodeToAttr. DynamoDB maps are unordered, so map fields
// come back sorted by name. Numbers become int64 when integral and in range,
// uint64 when only that fits, float64 otherwise.
func attrToNode(av types.AttributeValue) (arbor.Node, error) {
	switch av := av.(type) {
	case *types.AttributeValueMemberNULL:
		return arbor.NewLeaf(nil, false), nil
	case *types.AttributeValueMemberBOOL:
		return arbor.NewLeaf(av.Value, false), nil
	case *types.AttributeValueMemberS:
		return arbor.NewLeaf(av.Value, false), nil
	case *types.AttributeValueMemberB:
		return arbor.NewLeaf(av.Value, false), nil
	case *types.AttributeValueMemberN:
		v, err := decodeNumber(av)
		if err != nil {
			return nil, err
		}
		return arbor.NewLeaf(v, false), nil
	case *types.AttributeValueMemberL:
		list := arbor.NewList()
		for i, item := range av.Value {
			node, err := attrToNode(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list.Append(node)
		}
		return list, nil
	case *types.AttributeValueMemberM:
		names := make([]string, 0, len(av.Value))
		for name := range av.Value {
			names = append(names, name)
		}
		slices.Sort(names)
		m := arbor.NewMap()
		for _, name := range names {
			node, err := attrToNode(av.Value[name])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			m.Set(name, node)
		}
		return m, nil
	case *types.AttributeValueMemberSS:
		list := arbor.NewList()
		for _, s := range av.Value {
			list.Append(arbor.NewLeaf(s, false))
		}
		return list, nil
	case *types.AttributeValueMemberNS:
		list := arbor.NewList()
		for _, s := range av.Value {
			v, err := decodeNumber(&types.AttributeValueMemberN{Value: s})
			if err != nil {
				return nil, err
			}
			list.Append(arbor.NewLeaf(v, false))
		}
		return list, nil
	case *types.AttributeValueMemberBS:
		list := arbor.NewList()
		for _, b := range av.Value {
			list.Append(arbor.NewLeaf(b, false))
		}
		return list, nil
	default:
		return nil, fmt.Errorf("%w %T", ErrUnsupportedAttribute, av)
	}
}

func decodeNumber(av *types.AttributeValueMemberN) (any, error) {
	var i int64
	if err := attributevalue.Unmarshal(av, &i); err == nil {
		return i, nil
	}
	var u uint64
	if err := attributevalue.Unmarshal(av, &u); err == nil {
		return u, nil
	}
	var f float64
	if err := attributevalue.Unmarshal(av, &f); err != nil {
		return nil, fmt.Errorf("dynamostore: invalid number %q: %w", av.Value, err)
	}
	return f, nil
}
