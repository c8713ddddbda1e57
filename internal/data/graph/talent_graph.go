package graph

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
	"github.com/yungbote/talentgraph-backend/internal/platform/neo4jdb"
)

// PersonNode is one fanned-out person with its resolved references.
type PersonNode struct {
	PersonID         uuid.UUID
	LinkedinURL      string
	FullName         string
	OrganizationID   *uuid.UUID
	OrganizationName string
	LocationID       *uuid.UUID
	LocationKey      string
}

var schemaStatements = []string{
	`CREATE CONSTRAINT person_id_unique IF NOT EXISTS FOR (p:Person) REQUIRE p.id IS UNIQUE`,
	`CREATE CONSTRAINT organization_id_unique IF NOT EXISTS FOR (o:Organization) REQUIRE o.id IS UNIQUE`,
	`CREATE CONSTRAINT location_id_unique IF NOT EXISTS FOR (l:Location) REQUIRE l.id IS UNIQUE`,
	`CREATE CONSTRAINT project_id_unique IF NOT EXISTS FOR (p:Project) REQUIRE p.id IS UNIQUE`,
}

// TalentGraph mirrors people, organizations and locations into Neo4j.
type TalentGraph struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewTalentGraph(client *neo4jdb.Client, baseLog *logger.Logger) *TalentGraph {
	return &TalentGraph{client: client, log: baseLog.With("graph", "TalentGraph")}
}

func (g *TalentGraph) ProjectPeople(ctx context.Context, projectID uuid.UUID, people []PersonNode) error {
	if g == nil || g.client == nil || g.client.Driver == nil || len(people) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows := projectionRows(people)
	if len(rows) == 0 {
		return nil
	}

	session := g.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: g.client.Database,
	})
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		if res, err := session.Run(ctx, stmt, nil); err != nil {
			g.log.Warn("neo4j schema init failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (pr:Project {id: $project_id})
WITH pr
UNWIND $rows AS r
MERGE (p:Person {id: r.person_id})
SET p.linkedin_url = r.linkedin_url,
    p.full_name = r.full_name,
    p.synced_at = $synced_at
MERGE (p)-[:IN_PROJECT]->(pr)
FOREACH (_ IN CASE WHEN r.org_id <> '' THEN [1] ELSE [] END |
  MERGE (o:Organization {id: r.org_id})
  SET o.name = r.org_name
  MERGE (p)-[:WORKS_AT]->(o)
)
FOREACH (_ IN CASE WHEN r.location_id <> '' THEN [1] ELSE [] END |
  MERGE (l:Location {id: r.location_id})
  SET l.key = r.location_key
  MERGE (p)-[:LOCATED_IN]->(l)
)
`, map[string]any{"project_id": projectID.String(), "rows": rows, "synced_at": now})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// projectionRows flattens people into Cypher parameters; rows without a
// person id are dropped.
func projectionRows(people []PersonNode) []map[string]any {
	rows := make([]map[string]any, 0, len(people))
	for _, p := range people {
		if p.PersonID == uuid.Nil {
			continue
		}
		row := map[string]any{
			"person_id":    p.PersonID.String(),
			"linkedin_url": p.LinkedinURL,
			"full_name":    p.FullName,
			"org_id":       "",
			"org_name":     p.OrganizationName,
			"location_id":  "",
			"location_key": p.LocationKey,
		}
		if p.OrganizationID != nil {
			row["org_id"] = p.OrganizationID.String()
		}
		if p.LocationID != nil {
			row["location_id"] = p.LocationID.String()
		}
		rows = append(rows, row)
	}
	return rows
}
