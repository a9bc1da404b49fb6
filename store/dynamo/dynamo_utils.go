package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/zlnvch/garden/awsconfig"
	"github.com/zlnvch/garden/store"
)

func newDynamoDBClient(ctx context.Context, devMode bool, dynamodbEndpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.Load(ctx, devMode)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = awsconfig.Endpoint(devMode, dynamodbEndpoint)
	}), nil
}

func getTables(client *dynamodb.Client, ctx context.Context) ([]string, error) {
	output, err := client.ListTables(ctx, &dynamodb.ListTablesInput{})
	if err != nil {
		return nil, err
	}

	return output.TableNames, nil
}

// getItem retrieves an item of type T from DynamoDB by PK and SK
func getItem[T any](dynamoStore *DynamoGardenStore, ctx context.Context, pk string, sk string, consistentRead bool) (T, error) {
	var zero T

	// Build the key
	key := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}

	// Get the item
	resp, err := dynamoStore.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(dynamoStore.tableName),
		Key:            key,
		ConsistentRead: aws.Bool(consistentRead),
	})
	if err != nil {
		return zero, fmt.Errorf("GetItem failed: %w", err)
	}
	if resp.Item == nil {
		return zero, store.ErrItemNotFound
	}

	// Unmarshal into T
	var item T
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return zero, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return item, nil
}

// ensureItem inserts item unless its PK+SK already exists, in which case the
// stored item is returned with inserted=false
func ensureItem[T any](dynamoStore *DynamoGardenStore, ctx context.Context, item T) (T, bool, error) {
	// Marshal struct to DynamoDB map
	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("marshal error: %w", err)
	}

	// Check that PK and SK exist in the struct
	if _, ok := avMap["PK"]; !ok {
		var zero T
		return zero, false, errors.New("struct missing PK field")
	}
	if _, ok := avMap["SK"]; !ok {
		var zero T
		return zero, false, errors.New("struct missing SK field")
	}

	// Conditional PutItem: insert only if PK+SK does not exist
	_, err = dynamoStore.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(dynamoStore.tableName),
		Item:                avMap,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})

	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			// Already exists: fetch it
			key := map[string]types.AttributeValue{
				"PK": avMap["PK"],
				"SK": avMap["SK"],
			}
			getResp, err := dynamoStore.client.GetItem(ctx, &dynamodb.GetItemInput{
				TableName: aws.String(dynamoStore.tableName),
				Key:       key,
			})
			if err != nil {
				var zero T
				return zero, false, fmt.Errorf("failed to get existing item: %w", err)
			}
			if getResp.Item == nil {
				var zero T
				return zero, false, errors.New("item supposedly exists but GetItem returned nothing")
			}

			var existing T
			if err := attributevalue.UnmarshalMap(getResp.Item, &existing); err != nil {
				var zero T
				return zero, false, fmt.Errorf("failed to unmarshal existing item: %w", err)
			}
			return existing, false, nil
		}
		var zero T
		return zero, false, fmt.Errorf("failed to put item: %w", err)
	}

	return item, true, nil // Newly inserted
}

// queryFilter narrows a query after the key condition is applied.
// DynamoDB applies Limit before the filter, so filtered queries must page
// through results rather than rely on Limit.
type queryFilter struct {
	expression string
	values     map[string]types.AttributeValue
}

// Public views hide anything flagged for moderation
var publicFilter = &queryFilter{
	expression: "attribute_not_exists(ManualModeration) OR ManualModeration = :false",
	values: map[string]types.AttributeValue{
		":false": &types.AttributeValueMemberBOOL{Value: false},
	},
}

func (f *queryFilter) apply(input *dynamodb.QueryInput) {
	if f == nil {
		return
	}
	input.FilterExpression = aws.String(f.expression)
	for k, v := range f.values {
		input.ExpressionAttributeValues[k] = v
	}
}

// queryByPK returns up to limit items of type T with the given PK, ordered by
// SK, skipping the first offset matches. A limit of 0 returns everything.
func queryByPK[T any](dynamoStore *DynamoGardenStore, ctx context.Context, pk string, scanIndexForward bool, filter *queryFilter, offset int, limit int) ([]T, error) {
	var results []T

	input := &dynamodb.QueryInput{
		TableName:              aws.String(dynamoStore.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ScanIndexForward: aws.Bool(scanIndexForward),
	}
	filter.apply(input)

	want := offset + limit
	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, input)

	for paginator.HasMorePages() {
		if limit > 0 && len(results) >= want {
			break
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}

		var pageItems []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal page items: %w", err)
		}

		results = append(results, pageItems...)
	}

	if offset >= len(results) {
		return []T{}, nil
	}
	results = results[offset:]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// countByPK counts the items under a PK that pass the filter, without
// fetching them.
func countByPK(dynamoStore *DynamoGardenStore, ctx context.Context, pk string, filter *queryFilter) (int, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(dynamoStore.tableName),
		Select:                 types.SelectCount,
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
	}
	filter.apply(input)

	var totalCount int32
	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("count failed: %w", err)
		}
		totalCount += page.Count
	}

	return int(totalCount), nil
}

// countByGSI counts items matching a GSI query without fetching them
// If sortKeyValue is empty, counts all items for the partition key
// If sortKeyValue is provided, counts only items matching the sort key
func countByGSI(dynamoStore *DynamoGardenStore, ctx context.Context, indexName string, pkField string, pkValue string, sortKeyField string, sortKeyValue string) (int, error) {
	keyConditionExpr := "#pk = :pk"
	exprAttrNames := map[string]string{
		"#pk": pkField,
	}
	exprAttrValues := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pkValue},
	}

	// Add sort key condition if provided
	if sortKeyField != "" && sortKeyValue != "" {
		keyConditionExpr += " AND #sk = :sk"
		exprAttrNames["#sk"] = sortKeyField
		exprAttrValues[":sk"] = &types.AttributeValueMemberS{Value: sortKeyValue}
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(dynamoStore.tableName),
		IndexName:              aws.String(indexName),
		Select:                 types.SelectCount, // Only return count, not items
		KeyConditionExpression: aws.String(keyConditionExpr),
		ExpressionAttributeNames: exprAttrNames,
		ExpressionAttributeValues: exprAttrValues,
	}

	// Use pagination to count all items
	var totalCount int32
	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("count GSI failed: %w", err)
		}
		totalCount += page.Count
	}

	return int(totalCount), nil
}

// writeBatchRequests writes puts in one batch, resubmitting unprocessed items
// with backoff until the context ends. Returns what could not be written as []T
func writeBatchRequests[T any](dynamoStore *DynamoGardenStore, ctx context.Context, requests []types.WriteRequest) ([]T, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	backoff := 50 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return unmarshalUnprocessed[T](requests), ctx.Err()
		default:
		}

		resp, err := dynamoStore.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				dynamoStore.tableName: requests,
			},
		})
		if err != nil {
			return unmarshalUnprocessed[T](requests), fmt.Errorf("BatchWriteItem failed: %w", err)
		}

		unprocessed := resp.UnprocessedItems[dynamoStore.tableName]
		if len(unprocessed) == 0 {
			return nil, nil // all items processed successfully
		}

		// Prepare next retry set
		requests = unprocessed

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return unmarshalUnprocessed[T](requests), ctx.Err()
		case <-timer.C:
		}

		if backoff < time.Second {
			backoff *= 2
		}
	}
}

// helper to convert WriteRequests back to []T
func unmarshalUnprocessed[T any](reqs []types.WriteRequest) []T {
	failed := make([]T, 0, len(reqs))
	for _, wr := range reqs {
		if wr.PutRequest == nil {
			continue
		}
		var item T
		if err := attributevalue.UnmarshalMap(wr.PutRequest.Item, &item); err == nil {
			failed = append(failed, item)
		}
	}
	return failed
}

// updateItem sets the listed fields of an existing item to the values on
// item and returns the stored result. Returns store.ErrItemNotFound if the
// item does not exist.
func updateItem[T any](
	dynamoStore *DynamoGardenStore,
	ctx context.Context,
	item T,
	fieldsToUpdate []string,
) (T, error) {
	var zero T

	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return zero, fmt.Errorf("marshal error: %w", err)
	}

	pkAttr, ok := avMap["PK"]
	if !ok {
		return zero, errors.New("struct missing PK field")
	}
	skAttr, ok := avMap["SK"]
	if !ok {
		return zero, errors.New("struct missing SK field")
	}

	clauses := make([]string, 0, len(fieldsToUpdate))
	exprAttrValues := make(map[string]types.AttributeValue)
	exprAttrNames := make(map[string]string)

	for _, field := range fieldsToUpdate {
		// Never update keys
		if field == "PK" || field == "SK" {
			continue
		}

		val, ok := avMap[field]
		if !ok {
			continue // omitempty field left unset
		}

		clauses = append(clauses, fmt.Sprintf("#%s = :%s", field, field))
		exprAttrNames["#"+field] = field
		exprAttrValues[":"+field] = val
	}
	if len(clauses) == 0 {
		return zero, errors.New("no fields to update")
	}

	out, err := dynamoStore.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Key: map[string]types.AttributeValue{
			"PK": pkAttr,
			"SK": skAttr,
		},
		UpdateExpression:          aws.String("SET " + strings.Join(clauses, ", ")),
		ExpressionAttributeNames:  exprAttrNames,
		ExpressionAttributeValues: exprAttrValues,
		ConditionExpression:       aws.String("attribute_exists(PK) AND attribute_exists(SK)"),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return zero, store.ErrItemNotFound
		}
		return zero, fmt.Errorf("update failed: %w", err)
	}

	var updated T
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return zero, fmt.Errorf("failed to unmarshal updated item: %w", err)
	}

	return updated, nil
}

// incrementCounters atomically adds deltas to numeric fields of one item,
// creating the item and fields when missing. Zero deltas are skipped.
func incrementCounters(
	dynamoStore *DynamoGardenStore,
	ctx context.Context,
	pk string,
	sk string,
	deltas map[string]int,
) error {
	key := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}

	fields := make([]string, 0, len(deltas))
	for field, delta := range deltas {
		if delta != 0 {
			fields = append(fields, field)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	sort.Strings(fields)

	exprAttrNames := make(map[string]string, len(fields))
	exprAttrValues := map[string]types.AttributeValue{
		":zero": &types.AttributeValueMemberN{Value: "0"},
	}
	clauses := make([]string, 0, len(fields))
	for i, field := range fields {
		name := fmt.Sprintf("#c%d", i)
		val := fmt.Sprintf(":v%d", i)
		exprAttrNames[name] = field
		exprAttrValues[val] = &types.AttributeValueMemberN{Value: strconv.Itoa(deltas[field])}
		clauses = append(clauses, fmt.Sprintf("%s = if_not_exists(%s, :zero) + %s", name, name, val))
	}

	_, err := dynamoStore.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(dynamoStore.tableName),
		Key:                       key,
		UpdateExpression:          aws.String("SET " + strings.Join(clauses, ", ")),
		ExpressionAttributeNames:  exprAttrNames,
		ExpressionAttributeValues: exprAttrValues,
	})
	if err != nil {
		return fmt.Errorf("increment counters failed: %w", err)
	}

	return nil
}
