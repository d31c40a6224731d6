package dynamostore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/andreyvit/arbor"
)

const (
	maxWriteBatch = 25
	maxGetBatch   = 100
)

// Client is the part of *dynamodb.Client the store needs.
type Client interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// Store is an arbor.Backend keeping every kind in a single DynamoDB table.
//
// A logical batch may span several DynamoDB requests because of the service
// limits (25 writes, 100 reads per request). Those requests are not atomic:
// a failure midway leaves the earlier chunks applied.
type Store struct {
	client Client
	config Config
}

var _ arbor.Backend = (*Store)(nil)

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

func (s *Store) itemKey(k arbor.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		s.config.KindAttribute: &types.AttributeValueMemberS{Value: k.Kind},
		s.config.NameAttribute: &types.AttributeValueMemberS{Value: k.Name},
	}
}

func (s *Store) SubmitWrites(ctx context.Context, writes []arbor.Write) *arbor.Async[struct{}] {
	return arbor.Go(ctx, func(ctx context.Context) (struct{}, error) {
		requests := make([]types.WriteRequest, 0, len(writes))
		for _, w := range writes {
			tree, err := nodeToAttr(w.Node)
			if err != nil {
				return struct{}{}, fmt.Errorf("%v: %w", w.Key, err)
			}
			item := s.itemKey(w.Key)
			item[s.config.TreeAttribute] = tree
			if s.config.Verbose {
				s.config.Logf("dynamostore: PUT %v => %s", w.Key, arbor.Dump(w.Node))
			}
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}
		return struct{}{}, s.writeAll(ctx, requests)
	})
}

func (s *Store) SubmitDeletes(ctx context.Context, keys []arbor.Key) *arbor.Async[struct{}] {
	return arbor.Go(ctx, func(ctx context.Context) (struct{}, error) {
		requests := make([]types.WriteRequest, 0, len(keys))
		for _, k := range keys {
			if s.config.Verbose {
				s.config.Logf("dynamostore: DELETE %v", k)
			}
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: s.itemKey(k)},
			})
		}
		return struct{}{}, s.writeAll(ctx, requests)
	})
}

func (s *Store) writeAll(ctx context.Context, requests []types.WriteRequest) error {
	for start := 0; start < len(requests); start += maxWriteBatch {
		chunk := requests[start:min(start+maxWriteBatch, len(requests))]
		if err := s.writeChunk(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeChunk(ctx context.Context, chunk []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.config.TableName: chunk}
	delay := s.config.RetryDelay
	for attempt := 0; ; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("dynamostore: batch write: %w", err)
		}
		pending = out.UnprocessedItems
		if len(pending[s.config.TableName]) == 0 {
			return nil
		}
		if attempt >= s.config.MaxRetries {
			return fmt.Errorf("%w (%d writes)", ErrUnprocessed, len(pending[s.config.TableName]))
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
}

func (s *Store) SubmitReads(ctx context.Context, keys []arbor.Key) *arbor.Async[[]arbor.Node] {
	return arbor.Go(ctx, func(ctx context.Context) ([]arbor.Node, error) {
		positions := make(map[arbor.Key][]int, len(keys))
		var unique []arbor.Key
		for i, k := range keys {
			if _, seen := positions[k]; !seen {
				unique = append(unique, k)
			}
			positions[k] = append(positions[k], i)
		}

		nodes := make([]arbor.Node, len(keys))
		for start := 0; start < len(unique); start += maxGetBatch {
			chunk := unique[start:min(start+maxGetBatch, len(unique))]
			items, err := s.readChunk(ctx, chunk)
			if err != nil {
				return nil, err
			}
			for _, item := range items {
				k, node, err := s.decodeItem(item)
				if err != nil {
					return nil, err
				}
				for _, i := range positions[k] {
					nodes[i] = node
				}
			}
		}
		return nodes, nil
	})
}

func (s *Store) readChunk(ctx context.Context, chunk []arbor.Key) ([]map[string]types.AttributeValue, error) {
	keys := make([]map[string]types.AttributeValue, len(chunk))
	for i, k := range chunk {
		keys[i] = s.itemKey(k)
	}
	pending := map[string]types.KeysAndAttributes{
		s.config.TableName: {Keys: keys},
	}

	var items []map[string]types.AttributeValue
	delay := s.config.RetryDelay
	for attempt := 0; ; attempt++ {
		out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamostore: batch get: %w", err)
		}
		items = append(items, out.Responses[s.config.TableName]...)
		pending = out.UnprocessedKeys
		if len(pending[s.config.TableName].Keys) == 0 {
			return items, nil
		}
		if attempt >= s.config.MaxRetries {
			return nil, fmt.Errorf("%w (%d reads)", ErrUnprocessed, len(pending[s.config.TableName].Keys))
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
}

func (s *Store) decodeItem(item map[string]types.AttributeValue) (arbor.Key, arbor.Node, error) {
	kind, ok1 := item[s.config.KindAttribute].(*types.AttributeValueMemberS)
	name, ok2 := item[s.config.NameAttribute].(*types.AttributeValueMemberS)
	if !ok1 || !ok2 {
		return arbor.Key{}, nil, fmt.Errorf("dynamostore: item without a string %s/%s key", s.config.KindAttribute, s.config.NameAttribute)
	}
	k := arbor.NewKey(kind.Value, name.Value)
	tree, ok := item[s.config.TreeAttribute]
	if !ok {
		return k, nil, fmt.Errorf("dynamostore: %v: no %s attribute", k, s.config.TreeAttribute)
	}
	node, err := attrToNode(tree)
	if err != nil {
		return k, nil, fmt.Errorf("dynamostore: %v: %w", k, err)
	}
	return k, node, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
