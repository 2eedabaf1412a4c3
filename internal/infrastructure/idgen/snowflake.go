// Package idgen issues server-side identifiers.
package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"

	"github.com/garyjia/trip-expense/internal/application/port"
)

// SnowflakeGenerator issues time-ordered expense ids
type SnowflakeGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeGenerator creates a generator for the given node number (0-1023)
func NewSnowflakeGenerator(nodeID int64) (*SnowflakeGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &SnowflakeGenerator{node: node}, nil
}

// NextID returns a new id in its decimal string form
func (g *SnowflakeGenerator) NextID() string {
	return g.node.Generate().String()
}

var _ port.IDGenerator = (*SnowflakeGenerator)(nil)
