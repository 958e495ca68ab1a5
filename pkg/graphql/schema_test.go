package graphql

import (
	"testing"

	"github.com/graphql-go/graphql"

	"github.com/lstore-db/lstore/pkg/database"
)

func TestGraphQLSchema(t *testing.T) {
	config := &database.Config{DataDir: t.TempDir(), BufferPoolSize: 100}
	db, err := database.Open(config)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	schema, err := Schema(db)
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	if schema.QueryType() == nil {
		t.Fatal("Query type is nil")
	}
	if schema.MutationType() != nil {
		t.Fatal("expected no mutation type; GraphQL surface is read-only")
	}
}

func TestGraphQLRow(t *testing.T) {
	config := &database.Config{DataDir: t.TempDir(), BufferPoolSize: 100}
	db, err := database.Open(config)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	eng, err := db.CreateTable("grades", 3, 0)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if !eng.Insert([]int64{10, 20, 30}) {
		t.Fatal("insert failed")
	}

	schema, err := Schema(db)
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	query := `
		{
			row(table: "grades", key: 10) {
				rid
				key
				columns
			}
		}
	`
	result := graphql.Do(graphql.Params{Schema: schema, RequestString: query})
	if len(result.Errors) > 0 {
		t.Fatalf("GraphQL errors: %v", result.Errors)
	}

	data := result.Data.(map[string]interface{})
	row := data["row"].(map[string]interface{})
	if key := row["key"]; key != 10 {
		t.Fatalf("expected key 10, got %v", key)
	}
	cols := row["columns"].([]interface{})
	if len(cols) != 3 || cols[1] != 20 || cols[2] != 30 {
		t.Fatalf("unexpected columns: %v", cols)
	}
}

func TestGraphQLRowUnknownKeyReturnsNull(t *testing.T) {
	config := &database.Config{DataDir: t.TempDir(), BufferPoolSize: 100}
	db, err := database.Open(config)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := db.CreateTable("grades", 3, 0); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	schema, err := Schema(db)
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	query := `{ row(table: "grades", key: 999) { rid } }`
	result := graphql.Do(graphql.Params{Schema: schema, RequestString: query})
	if len(result.Errors) > 0 {
		t.Fatalf("GraphQL errors: %v", result.Errors)
	}
	data := result.Data.(map[string]interface{})
	if data["row"] != nil {
		t.Fatalf("expected null row, got %v", data["row"])
	}
}

func TestGraphQLSum(t *testing.T) {
	config := &database.Config{DataDir: t.TempDir(), BufferPoolSize: 100}
	db, err := database.Open(config)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	eng, err := db.CreateTable("grades", 3, 0)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	eng.Insert([]int64{1, 10, 0})
	eng.Insert([]int64{2, 20, 0})
	eng.Insert([]int64{3, 30, 0})

	schema, err := Schema(db)
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	query := `
		{
			sum(table: "grades", lo: 1, hi: 2, col: 1) {
				value
				found
			}
		}
	`
	result := graphql.Do(graphql.Params{Schema: schema, RequestString: query})
	if len(result.Errors) > 0 {
		t.Fatalf("GraphQL errors: %v", result.Errors)
	}
	data := result.Data.(map[string]interface{})
	sum := data["sum"].(map[string]interface{})
	if sum["value"] != 30 {
		t.Fatalf("expected sum 30, got %v", sum["value"])
	}
	if sum["found"] != true {
		t.Fatal("expected found=true")
	}
}

func TestGraphQLRowUnknownTableErrors(t *testing.T) {
	config := &database.Config{DataDir: t.TempDir(), BufferPoolSize: 100}
	db, err := database.Open(config)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	schema, err := Schema(db)
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	query := `{ row(table: "missing", key: 1) { rid } }`
	result := graphql.Do(graphql.Params{Schema: schema, RequestString: query})
	if len(result.Errors) == 0 {
		t.Fatal("expected an error for an unknown table")
	}
}
