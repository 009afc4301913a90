package driver

// Mutation templates. %s placeholders take validated labels and edge types only.
const (
	UpsertNodeQuery = `
		MERGE (n:%s {uid: $key})
		SET n += $props
	`

	UpsertEdgeQuery = `
		MATCH (a%s {uid: $from})
		MATCH (b%s {uid: $to})
		MERGE (a)-[r:%s]->(b)
		SET r += $props
	`

	// DeleteNodeQuery skips the delete when the node holds more edges than
	// the caller planned for; $max_edges < 0 disables the guard.
	DeleteNodeQuery = `
		MATCH (n {uid: $key})
		OPTIONAL MATCH (n)-[r]-()
		WITH n, count(DISTINCT r) AS degree
		WHERE $max_edges < 0 OR degree <= $max_edges
		DETACH DELETE n
	`

	DeleteEdgeQuery = `
		MATCH (a {uid: $from})-[r:%s]->(b {uid: $to})
		DELETE r
	`
)

// Read templates.
const (
	CountNodesQuery = `MATCH (n%s) %s RETURN count(n) AS count`
	CountEdgesQuery = `MATCH ()-[n%s]->() %s RETURN count(n) AS count`

	NodeByKeyQuery = `
		MATCH (n {uid: $key})
		RETURN n.uid AS key, labels(n) AS labels, properties(n) AS props
	`

	NodesByLabelQuery = `
		MATCH (n:%s)
		RETURN n.uid AS key, labels(n) AS labels, properties(n) AS props
		ORDER BY key
	`

	IncidentEdgesQuery = `
		MATCH (n {uid: $key})-[r]-()
		WITH DISTINCT r
		MATCH (a)-[r]->(b)
		RETURN type(r) AS type, a.uid AS from, b.uid AS to,
			labels(a)[0] AS from_label, labels(b)[0] AS to_label, properties(r) AS props
	`

	EdgesByTypeQuery = `
		MATCH (a)-[r:%s]->(b)
		RETURN type(r) AS type, a.uid AS from, b.uid AS to,
			labels(a)[0] AS from_label, labels(b)[0] AS to_label, properties(r) AS props
	`
)

// Schema templates.
const (
	ShowIndexesNeo4j = `
		SHOW INDEXES YIELD labelsOrTypes, properties
		WHERE labelsOrTypes = [$label] AND properties = [$property]
		RETURN count(*) AS count
	`
	ShowConstraintsNeo4j = `
		SHOW CONSTRAINTS YIELD labelsOrTypes, properties, type
		WHERE labelsOrTypes = [$label] AND properties = [$property] AND type IN ['UNIQUENESS', 'NODE_PROPERTY_UNIQUENESS']
		RETURN count(*) AS count
	`
	CreateIndexNeo4j      = `CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)`
	CreateConstraintNeo4j = `CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE`

	ShowIndexInfoMemgraph      = `SHOW INDEX INFO`
	ShowConstraintInfoMemgraph = `SHOW CONSTRAINT INFO`
	CreateIndexMemgraph        = `CREATE INDEX ON :%s(%s)`
	CreateConstraintMemgraph   = `CREATE CONSTRAINT ON (n:%s) ASSERT n.%s IS UNIQUE`
)
