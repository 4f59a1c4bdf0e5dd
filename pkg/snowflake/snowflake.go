package snowflake

import (
	"strconv"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewNode),
)

// Node wraps snowflake.Node so callers do not import the library directly.
type Node struct {
	*snowflake.Node
}

// NewNode builds the ID generator. Node ID is fixed at 1; a multi-replica
// deployment must wire a distinct ID per replica through the environment.
func NewNode() (*Node, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return &Node{node}, nil
}

// GenerateID returns a new snowflake ID as int64.
func (n *Node) GenerateID() int64 {
	return n.Generate().Int64()
}

// ParseID parses a string ID into an int64.
func ParseID(id string) (int64, error) {
	return strconv.ParseInt(id, 10, 64)
}
