package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/types"
)

// mergeRetries bounds the optimistic-concurrency loop in MergeDaily.
const mergeRetries = 3

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	// Create tables in local mode
	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoDBStore) PutDaily(stats types.DailyStats) error {
	item, err := attributevalue.MarshalMap(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal daily stats: %w", err)
	}

	_, err = s.client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(s.config.DailyTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save daily stats: %w", err)
	}
	return nil
}

// MergeDaily reads the current row, folds the incoming counters in and
// writes back guarded by a condition on the values it read. DynamoDB has no
// server-side max-write, so a condition failure means a concurrent writer
// won and the loop re-reads.
func (s *DynamoDBStore) MergeDaily(stats types.DailyStats) (types.DailyStats, error) {
	for attempt := 0; attempt < mergeRetries; attempt++ {
		existing, err := s.GetDaily(stats.AgentID, stats.Date)
		if err != nil {
			return types.DailyStats{}, err
		}

		var merged types.DailyStats
		var cond expression.ConditionBuilder
		if existing == nil {
			base := types.DailyStats{AgentID: stats.AgentID, Date: stats.Date}
			merged = base.MergeMax(stats)
			cond = expression.AttributeNotExists(expression.Name("AgentID"))
		} else {
			merged = existing.MergeMax(stats)
			cond = expression.Name("TotalConsultations").Equal(expression.Value(existing.TotalConsultations)).
				And(expression.Name("RepliedCount").Equal(expression.Value(existing.RepliedCount))).
				And(expression.Name("TotalReplyTime").Equal(expression.Value(existing.TotalReplyTime)))
		}

		expr, err := expression.NewBuilder().WithCondition(cond).Build()
		if err != nil {
			return types.DailyStats{}, fmt.Errorf("failed to build expression: %w", err)
		}

		item, err := attributevalue.MarshalMap(merged)
		if err != nil {
			return types.DailyStats{}, fmt.Errorf("failed to marshal daily stats: %w", err)
		}

		_, err = s.client.PutItem(context.Background(), &dynamodb.PutItemInput{
			TableName:                 aws.String(s.config.DailyTable),
			Item:                      item,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err == nil {
			return merged, nil
		}

		var condErr *dbtypes.ConditionalCheckFailedException
		if !errors.As(err, &condErr) {
			return types.DailyStats{}, fmt.Errorf("failed to merge daily stats: %w", err)
		}
		s.logger.Debug().
			Str("agent_id", stats.AgentID).
			Str("date", stats.Date).
			Int("attempt", attempt+1).
			Msg("merge conflict, retrying")
	}
	return types.DailyStats{}, fmt.Errorf("merge for %s/%s did not converge after %d attempts", stats.AgentID, stats.Date, mergeRetries)
}

func (s *DynamoDBStore) GetDaily(agentID, date string) (*types.DailyStats, error) {
	result, err := s.client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: aws.String(s.config.DailyTable),
		Key: map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
			"Date":    &dbtypes.AttributeValueMemberS{Value: date},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var stats types.DailyStats
	if err := attributevalue.UnmarshalMap(result.Item, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal daily stats: %w", err)
	}
	return &stats, nil
}

func (s *DynamoDBStore) QueryAgentRange(agentID, from, to string) ([]types.DailyStats, error) {
	keyCond := expression.Key("AgentID").Equal(expression.Value(agentID)).
		And(expression.Key("Date").Between(expression.Value(from), expression.Value(to)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(context.Background(), &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.DailyTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}

	var stats []types.DailyStats
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal daily stats: %w", err)
	}
	return stats, nil
}

// QueryDate scans for one date across all agents. A GSI on Date would avoid
// the scan; the row count here stays small enough that it has not been worth
// the extra table throughput.
func (s *DynamoDBStore) QueryDate(date string) ([]types.DailyStats, error) {
	filter := expression.Name("Date").Equal(expression.Value(date))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var stats []types.DailyStats
	var lastKey map[string]dbtypes.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName:                 aws.String(s.config.DailyTable),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := s.client.Scan(context.Background(), input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}

		var page []types.DailyStats
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal daily stats: %w", err)
		}
		stats = append(stats, page...)

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}
	return stats, nil
}

func (s *DynamoDBStore) DeleteDate(date string) (int, error) {
	rows, err := s.QueryDate(date)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	keys := make([]map[string]dbtypes.AttributeValue, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: row.AgentID},
			"Date":    &dbtypes.AttributeValueMemberS{Value: row.Date},
		})
	}
	if err := s.batchDelete(s.config.DailyTable, keys); err != nil {
		return 0, err
	}

	s.logger.Info().Str("date", date).Int("rows", len(keys)).Msg("date rows deleted")
	return len(keys), nil
}

func (s *DynamoDBStore) DeleteAgent(agentID, scopeDate string) (int, error) {
	if scopeDate != "" {
		result, err := s.client.DeleteItem(context.Background(), &dynamodb.DeleteItemInput{
			TableName: aws.String(s.config.DailyTable),
			Key: map[string]dbtypes.AttributeValue{
				"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
				"Date":    &dbtypes.AttributeValueMemberS{Value: scopeDate},
			},
			ReturnValues: dbtypes.ReturnValueAllOld,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to delete daily stats: %w", err)
		}
		if result.Attributes == nil {
			return 0, nil
		}
		return 1, nil
	}

	// Full removal: all dates plus metadata.
	rows, err := s.QueryAgentRange(agentID, "0000-00-00", "9999-99-99")
	if err != nil {
		return 0, err
	}
	keys := make([]map[string]dbtypes.AttributeValue, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: row.AgentID},
			"Date":    &dbtypes.AttributeValueMemberS{Value: row.Date},
		})
	}
	if err := s.batchDelete(s.config.DailyTable, keys); err != nil {
		return 0, err
	}

	_, err = s.client.DeleteItem(context.Background(), &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.MetaTable),
		Key: map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete agent meta: %w", err)
	}

	s.logger.Info().Str("agent_id", agentID).Int("rows", len(keys)).Msg("agent deleted")
	return len(keys), nil
}

func (s *DynamoDBStore) GetMeta(agentID string) (*types.AgentMeta, error) {
	result, err := s.client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: aws.String(s.config.MetaTable),
		Key: map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get agent meta: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var meta types.AgentMeta
	if err := attributevalue.UnmarshalMap(result.Item, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent meta: %w", err)
	}
	return &meta, nil
}

func (s *DynamoDBStore) ListMeta() ([]types.AgentMeta, error) {
	var metas []types.AgentMeta
	var lastKey map[string]dbtypes.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName: aws.String(s.config.MetaTable),
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := s.client.Scan(context.Background(), input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent meta: %w", err)
		}

		var page []types.AgentMeta
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent meta: %w", err)
		}
		metas = append(metas, page...)

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}
	return metas, nil
}

func (s *DynamoDBStore) SetDisplayName(agentID, name string) error {
	return s.updateMeta(agentID, expression.Set(expression.Name("DisplayName"), expression.Value(name)))
}

func (s *DynamoDBStore) SetVisibility(agentID string, hidden, manual bool) error {
	update := expression.Set(expression.Name("Hidden"), expression.Value(hidden)).
		Set(expression.Name("ManualHidden"), expression.Value(manual))
	return s.updateMeta(agentID, update)
}

func (s *DynamoDBStore) ClearManualVisibility() (int, error) {
	filter := expression.Name("ManualHidden").Equal(expression.Value(true))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Scan(context.Background(), &dynamodb.ScanInput{
		TableName:                 aws.String(s.config.MetaTable),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan agent meta: %w", err)
	}

	cleared := 0
	for _, item := range result.Items {
		var meta types.AgentMeta
		if err := attributevalue.UnmarshalMap(item, &meta); err != nil {
			return cleared, fmt.Errorf("failed to unmarshal agent meta: %w", err)
		}
		if err := s.SetVisibility(meta.AgentID, false, false); err != nil {
			return cleared, err
		}
		cleared++
	}
	return cleared, nil
}

func (s *DynamoDBStore) updateMeta(agentID string, update expression.UpdateBuilder) error {
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(context.Background(), &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.MetaTable),
		Key: map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to update agent meta: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) batchDelete(tableName string, keys []map[string]dbtypes.AttributeValue) error {
	// Batch delete in groups of 25
	for i := 0; i < len(keys); i += 25 {
		end := i + 25
		if end > len(keys) {
			end = len(keys)
		}

		requests := make([]dbtypes.WriteRequest, 0, end-i)
		for _, key := range keys[i:end] {
			requests = append(requests, dbtypes.WriteRequest{
				DeleteRequest: &dbtypes.DeleteRequest{Key: key},
			})
		}

		_, err := s.client.BatchWriteItem(context.Background(), &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]dbtypes.WriteRequest{
				tableName: requests,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to batch delete from %s: %w", tableName, err)
		}
	}
	return nil
}
