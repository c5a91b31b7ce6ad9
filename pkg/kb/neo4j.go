package kb

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jSource 基于 Neo4j 图数据库的知识源
//
// 主体以 Subject 节点表示，事实以 KNOWS 关系连接的 Fact 节点表示。
type Neo4jSource struct {
	name   string
	driver neo4j.DriverWithContext
	limit  int
}

// Neo4jConfig Neo4j 连接配置
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
}

// NewNeo4jSource 创建 Neo4j 知识源。
func NewNeo4jSource(name string, config Neo4jConfig) (*Neo4jSource, error) {
	if config.URI == "" {
		config.URI = "bolt://localhost:7687"
	}

	auth := neo4j.NoAuth()
	if config.Username != "" && config.Password != "" {
		auth = neo4j.BasicAuth(config.Username, config.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(config.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	// 验证连接
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	source := &Neo4jSource{
		name:   name,
		driver: driver,
		limit:  100,
	}

	if err := source.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return source, nil
}

// createIndexes 创建索引
func (s *Neo4jSource) createIndexes(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	indexes := []string{
		"CREATE INDEX subject_name IF NOT EXISTS FOR (s:Subject) ON (s.name)",
		"CREATE INDEX fact_text IF NOT EXISTS FOR (f:Fact) ON (f.text)",
	}

	for _, idx := range indexes {
		if _, err := session.Run(ctx, idx, nil); err != nil {
			return err
		}
	}

	return nil
}

// Name 返回知识源标识
func (s *Neo4jSource) Name() string {
	return s.name
}

// Query 查询主体的关联事实，按关系相关性降序返回。
func (s *Neo4jSource) Query(ctx context.Context, subject string, hint string) (*QueryResult, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
	MATCH (s:Subject {name: $subject})-[r:KNOWS]->(f:Fact)
	RETURN f.text AS text, r.relevance AS relevance
	ORDER BY r.relevance DESC, f.created_at ASC
	LIMIT $limit
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"subject": subject,
		"limit":   s.limit,
	})
	if err != nil {
		return nil, err
	}

	var facts []string
	maxRelevance := 0.0
	for result.Next(ctx) {
		record := result.Record()

		textVal, ok := record.Get("text")
		if !ok {
			continue
		}
		text, ok := textVal.(string)
		if !ok {
			continue
		}

		relevance := 0.5
		if relVal, ok := record.Get("relevance"); ok {
			if rel, ok := relVal.(float64); ok {
				relevance = rel
			}
		}

		facts = append(facts, text)
		if relevance > maxRelevance {
			maxRelevance = relevance
		}
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	return &QueryResult{Facts: facts, Relevance: maxRelevance}, nil
}

// AddFact 写入主体与事实的关联。重复写入更新相关性。
func (s *Neo4jSource) AddFact(ctx context.Context, subject string, fact string, relevance float64) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `
	MERGE (s:Subject {name: $subject})
	MERGE (f:Fact {text: $fact})
	ON CREATE SET f.created_at = timestamp()
	MERGE (s)-[r:KNOWS]->(f)
	SET r.relevance = $relevance
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"subject":   subject,
		"fact":      fact,
		"relevance": relevance,
	})
	return err
}

// Close 关闭驱动连接。
func (s *Neo4jSource) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// compile-time interface check
var _ Source = (*Neo4jSource)(nil)
