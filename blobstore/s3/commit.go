package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/vecstore/blobstore"
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ErrConcurrentCommit is returned when another writer committed the same
// version first.
var ErrConcurrentCommit = errors.New("concurrent commit detected")

// Compile time checks to ensure CommitStore satisfies the blobstore
// interfaces.
var (
	_ blobstore.Store     = (*CommitStore)(nil)
	_ blobstore.Committer = (*CommitStore)(nil)
)

// CommitStore wraps an S3 Store with a DynamoDB commit log, implementing
// blobstore.Committer. DynamoDB conditional writes provide the atomic
// compare-and-swap that S3 lacks, so concurrent backup writers coordinate
// safely: every commit claims a fresh version, and readers follow the
// highest committed one.
//
// Table schema:
//   - Partition key: scope (string) - isolates independent blob series
//   - Sort key: version (number) - monotonically increasing commit version
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name vecstore-commits \
//	  --attribute-definitions AttributeName=scope,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=scope,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	*Store
	ddb   DDBClient
	table string
	scope string
}

// NewCommitStore creates a CommitStore on top of an existing Store. The
// scope is used as the DynamoDB partition key, typically
// "s3://bucket/prefix".
func NewCommitStore(store *Store, ddb DDBClient, table, scope string) *CommitStore {
	return &CommitStore{
		Store: store,
		ddb:   ddb,
		table: table,
		scope: scope,
	}
}

// Commit records name as the latest committed blob. It fails with
// ErrConcurrentCommit when another writer claims the next version first.
func (s *CommitStore) Commit(ctx context.Context, name string) (uint64, error) {
	current, _, err := s.latestVersion(ctx)
	if err != nil {
		return 0, err
	}

	next := current + 1

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"scope":   &types.AttributeValueMemberS{Value: s.scope},
			"version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", next)},
			"blob":    &types.AttributeValueMemberS{Value: name},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, ErrConcurrentCommit
		}

		return 0, fmt.Errorf("commit version %d: %w", next, err)
	}

	return next, nil
}

// Latest returns the most recently committed blob name.
func (s *CommitStore) Latest(ctx context.Context) (string, error) {
	version, name, err := s.latestVersion(ctx)
	if err != nil {
		return "", err
	}

	if version == 0 {
		return "", blobstore.ErrNotFound
	}

	return name, nil
}

// latestVersion queries the commit log for the highest committed version.
// A version of 0 means no commit exists yet.
func (s *CommitStore) latestVersion(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("scope = :scope"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":scope": &types.AttributeValueMemberS{Value: s.scope},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query commit log: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]

	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute in commit log")
	}

	blobAttr, ok := item["blob"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid blob attribute in commit log")
	}

	var version uint64
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &version); err != nil {
		return 0, "", fmt.Errorf("parse version: %w", err)
	}

	return version, blobAttr.Value, nil
}
