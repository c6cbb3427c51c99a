package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// seedNode describes one category of the development sample tree.
type seedNode struct {
	name        string
	description string
	children    []seedNode
}

var seedTree = []seedNode{
	{name: "Mathematics", description: "Pure and applied mathematics", children: []seedNode{
		{name: "Algebra", children: []seedNode{
			{name: "Linear Algebra"},
			{name: "Group Theory"},
		}},
		{name: "Geometry"},
	}},
	{name: "Physics", children: []seedNode{
		{name: "Mechanics"},
		{name: "Thermodynamics"},
	}},
	{name: "Computer Science", children: []seedNode{
		{name: "Algorithms"},
		{name: "Databases"},
	}},
}

// Seed populates the database with a sample category tree for development.
// It does nothing if any category already exists.
func Seed(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return fmt.Errorf("seed check categories: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer tx.Rollback()

	created := 0
	var insert func(nodes []seedNode, parentID *uuid.UUID) error
	insert = func(nodes []seedNode, parentID *uuid.UUID) error {
		for i, n := range nodes {
			var id uuid.UUID
			err := tx.QueryRow(`
				INSERT INTO categories (name, description, parent_id, sort_order)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, n.name, n.description, parentID, i).Scan(&id)
			if err != nil {
				return fmt.Errorf("seed insert category %q: %w", n.name, err)
			}
			created++
			if err := insert(n.children, &id); err != nil {
				return err
			}
		}
		return nil
	}
	if err := insert(seedTree, nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	slog.Info("database seeded with sample categories", "count", created)
	return nil
}
