// Package graphql exposes a read-only GraphQL surface over L-Store
// tables: a row lookup by primary key and a range-sum aggregate,
// narrowed from a document store's full CRUD schema down to the two
// read operations spec.md's Query engine actually defines as safe for
// an external, ungated client.
package graphql

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/lstore-db/lstore/pkg/database"
)

// rowType describes one row as returned by the "row" query.
var rowType = graphql.NewObject(graphql.ObjectConfig{
	Name:        "Row",
	Description: "A table row, with key and RID alongside its projected columns",
	Fields: graphql.Fields{
		"rid": &graphql.Field{
			Type:        graphql.NewNonNull(graphql.Int),
			Description: "Record identifier",
		},
		"key": &graphql.Field{
			Type:        graphql.NewNonNull(graphql.Int),
			Description: "Primary key value",
		},
		"columns": &graphql.Field{
			Type:        graphql.NewList(graphql.Int),
			Description: "User column values, in column order",
		},
	},
})

// sumResultType describes the "sum" query's result.
var sumResultType = graphql.NewObject(graphql.ObjectConfig{
	Name:        "SumResult",
	Description: "Result of a range-sum aggregate",
	Fields: graphql.Fields{
		"value": &graphql.Field{
			Type:        graphql.NewNonNull(graphql.Int),
			Description: "Sum of agg_col over [lo, hi]; 0 when no keys match",
		},
		"found": &graphql.Field{
			Type:        graphql.NewNonNull(graphql.Boolean),
			Description: "Whether at least one key in [lo, hi] matched",
		},
	},
})

// Schema builds the GraphQL schema over db. Both fields are read-only:
// there is no mutation root, matching the REST API's split between
// authenticated writes and ungated reads.
func Schema(db *database.Database) (graphql.Schema, error) {
	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"row": &graphql.Field{
				Type: rowType,
				Args: graphql.FieldConfigArgument{
					"table": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"key":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					tableName, _ := p.Args["table"].(string)
					key := toInt64(p.Args["key"])

					eng, ok := db.GetTable(tableName)
					if !ok {
						return nil, fmt.Errorf("graphql: unknown table %q", tableName)
					}
					tbl := eng.Table()
					projection := make([]bool, tbl.NumColumns)
					for i := range projection {
						projection[i] = true
					}
					recs, _ := eng.Select(key, tbl.KeyCol, projection)
					if len(recs) == 0 {
						return nil, nil
					}
					cols := make([]int64, len(recs[0].Columns))
					for i, c := range recs[0].Columns {
						cols[i] = c.Value
					}
					return map[string]interface{}{
						"rid":     recs[0].RID,
						"key":     recs[0].Key,
						"columns": cols,
					}, nil
				},
			},
			"sum": &graphql.Field{
				Type: sumResultType,
				Args: graphql.FieldConfigArgument{
					"table": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"lo":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"hi":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"col":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					tableName, _ := p.Args["table"].(string)
					lo := toInt64(p.Args["lo"])
					hi := toInt64(p.Args["hi"])
					col := int(toInt64(p.Args["col"]))

					eng, ok := db.GetTable(tableName)
					if !ok {
						return nil, fmt.Errorf("graphql: unknown table %q", tableName)
					}
					value, found := eng.Sum(lo, hi, col)
					return map[string]interface{}{"value": value, "found": found}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
