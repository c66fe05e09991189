package storage

import "os"

// DynamoMode represents the DynamoDB connection mode
type DynamoMode string

const (
	DynamoModeLocal  DynamoMode = "local"
	DynamoModeAWS    DynamoMode = "aws"
	DynamoModeMemory DynamoMode = "memory"
)

// DynamoConfig holds DynamoDB configuration
type DynamoConfig struct {
	Mode       DynamoMode
	Endpoint   string // for local mode
	Region     string
	DailyTable string
	MetaTable  string
}

// LoadDynamoConfig loads DynamoDB config from environment
func LoadDynamoConfig() DynamoConfig {
	mode := DynamoMode(getEnv("DYNAMO_MODE", "memory"))
	if mode != DynamoModeLocal && mode != DynamoModeAWS {
		mode = DynamoModeMemory
	}

	return DynamoConfig{
		Mode:       mode,
		Endpoint:   getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
		Region:     getEnv("DYNAMO_REGION", "eu-central-1"),
		DailyTable: getEnv("DYNAMO_DAILY_TABLE", "chatwatch-daily-stats"),
		MetaTable:  getEnv("DYNAMO_META_TABLE", "chatwatch-agent-meta"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
