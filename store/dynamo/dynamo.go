package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gofrs/uuid/v5"

	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/store"
)

// Single-table layout:
//
//	SUBMISSION#<category> / <uuidv7>        submission records, newest last
//	ORPHAN / <unix-ms>#<filename>           orphan object reports
//	STATS / <category>                      accepted/rejected counters
//	MODERATOR#<provider>#<id> / PROFILE     moderators who have logged in
//
// GSI_Submitter (Submitter, Category) backs the per-identity quota count.
type DynamoGardenStore struct {
	client    *dynamodb.Client
	tableName string
}

const submitterIndex = "GSI_Submitter"

func NewDynamoGardenStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoGardenStore, error) {
	client, err := newDynamoDBClient(ctx, devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(client, ctx)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(tables, tableName) {
		return nil, fmt.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return &DynamoGardenStore{client: client, tableName: tableName}, nil
}

func (dynamoStore *DynamoGardenStore) InsertSubmission(ctx context.Context, sub models.Submission) (models.Submission, error) {
	// V7 ids sort by creation time, so the SK doubles as the listing order
	id, err := uuid.NewV7()
	if err != nil {
		return models.Submission{}, err
	}
	sub.Id = id.String()
	sub.Created = time.Now().UTC().Truncate(time.Millisecond)

	ds, inserted, err := ensureItem(dynamoStore, ctx, submissionToDynamo(sub))
	if err != nil {
		return models.Submission{}, err
	}
	if !inserted {
		return models.Submission{}, fmt.Errorf("submission %s: %w", sub.Id, store.ErrConditionFailed)
	}

	return submissionFromDynamo(ds), nil
}

func (dynamoStore *DynamoGardenStore) GetSubmission(ctx context.Context, category models.Category, id string) (models.Submission, error) {
	ds, err := getItem[dynamoSubmission](dynamoStore, ctx, submissionPK(category), id, true)
	if err != nil {
		return models.Submission{}, err
	}
	return submissionFromDynamo(ds), nil
}

func viewFilter(view models.View) *queryFilter {
	if view == models.ViewPublic {
		return publicFilter
	}
	return nil
}

func (dynamoStore *DynamoGardenStore) ListSubmissions(ctx context.Context, view models.View, category models.Category, page int) ([]models.Submission, error) {
	items, err := queryByPK[dynamoSubmission](dynamoStore, ctx, submissionPK(category), false, viewFilter(view), store.Offset(page), models.PageSize)
	if err != nil {
		return nil, err
	}

	subs := make([]models.Submission, 0, len(items))
	for _, ds := range items {
		subs = append(subs, submissionFromDynamo(ds))
	}
	return subs, nil
}

func (dynamoStore *DynamoGardenStore) CountSubmissions(ctx context.Context, view models.View, category models.Category) (int, error) {
	return countByPK(dynamoStore, ctx, submissionPK(category), viewFilter(view))
}

func (dynamoStore *DynamoGardenStore) CountSubmitterSubmissions(ctx context.Context, submitter string, category models.Category) (int, error) {
	return countByGSI(dynamoStore, ctx, submitterIndex, "Submitter", submitter, "Category", string(category))
}

func (dynamoStore *DynamoGardenStore) SetManualModeration(ctx context.Context, category models.Category, id string) (models.Submission, error) {
	flagged := true
	ds := dynamoSubmission{
		PK:               submissionPK(category),
		SK:               id,
		ManualModeration: &flagged,
	}

	updated, err := updateItem(dynamoStore, ctx, ds, []string{"ManualModeration"})
	if err != nil {
		return models.Submission{}, err
	}
	return submissionFromDynamo(updated), nil
}

func (dynamoStore *DynamoGardenStore) RecordOrphans(ctx context.Context, orphans []models.Orphan) ([]models.Orphan, error) {
	var unprocessed []models.Orphan

	// BatchWriteItem takes at most 25 requests
	for chunk := range slices.Chunk(orphans, 25) {
		writeRequests := make([]types.WriteRequest, 0, len(chunk))
		for _, o := range chunk {
			avMap, err := attributevalue.MarshalMap(orphanToDynamo(o))
			if err != nil {
				return nil, fmt.Errorf("marshal error: %w", err)
			}
			writeRequests = append(writeRequests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: avMap},
			})
		}

		failed, err := writeBatchRequests[dynamoOrphan](dynamoStore, ctx, writeRequests)
		for _, f := range failed {
			unprocessed = append(unprocessed, orphanFromDynamo(f))
		}
		if err != nil {
			return unprocessed, err
		}
	}

	return unprocessed, nil
}

func (dynamoStore *DynamoGardenStore) ListOrphans(ctx context.Context) ([]models.Orphan, error) {
	items, err := queryByPK[dynamoOrphan](dynamoStore, ctx, orphanPK, false, nil, 0, 0)
	if err != nil {
		return nil, err
	}

	orphans := make([]models.Orphan, 0, len(items))
	for _, do := range items {
		orphans = append(orphans, orphanFromDynamo(do))
	}
	return orphans, nil
}

func (dynamoStore *DynamoGardenStore) IncrementStats(ctx context.Context, category models.Category, accepted int, rejected int) error {
	return incrementCounters(dynamoStore, ctx, statsPK, string(category), map[string]int{
		"Accepted": accepted,
		"Rejected": rejected,
	})
}

func (dynamoStore *DynamoGardenStore) GetStats(ctx context.Context) ([]models.CategoryStats, error) {
	stats := make([]models.CategoryStats, 0, len(models.Categories))
	for _, category := range models.Categories {
		s := models.CategoryStats{Category: category}

		item, err := getItem[dynamoStats](dynamoStore, ctx, statsPK, string(category), false)
		if err != nil && !errors.Is(err, store.ErrItemNotFound) {
			return nil, err
		}
		if err == nil {
			s.Accepted = item.Accepted
			s.Rejected = item.Rejected
		}

		stats = append(stats, s)
	}
	return stats, nil
}

func (dynamoStore *DynamoGardenStore) EnsureModerator(ctx context.Context, moderator models.Moderator) (models.Moderator, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return models.Moderator{}, err
	}
	moderator.Id = id.String()

	dm := moderatorToDynamo(moderator)
	dm.Created = time.Now().Unix()

	// An existing moderator keeps its original id
	dm, _, err = ensureItem(dynamoStore, ctx, dm)
	if err != nil {
		return models.Moderator{}, err
	}
	return moderatorFromDynamo(dm), nil
}

func (dynamoStore *DynamoGardenStore) GetModerator(ctx context.Context, provider string, providerId string) (models.Moderator, error) {
	dm, err := getItem[dynamoModerator](dynamoStore, ctx, moderatorPK(provider, providerId), "PROFILE", false)
	if err != nil {
		return models.Moderator{}, err
	}
	return moderatorFromDynamo(dm), nil
}
