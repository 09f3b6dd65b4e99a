package gen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"tenant-gateway/pkg/config"
)

var Module = fx.Module("snowflake", fx.Provide(ProvideNode))

// Node issues time-ordered string IDs for directory rows.
type Node struct {
	node *snowflake.Node
}

func NewNode(id int64) (*Node, error) {
	node, err := snowflake.NewNode(id)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node %d: %w", id, err)
	}
	return &Node{node: node}, nil
}

func ProvideNode(cfg *config.Config) (*Node, error) {
	return NewNode(cfg.NodeID)
}

func (n *Node) GenerateID() snowflake.ID {
	return n.node.Generate()
}

// NextID returns a new ID in its decimal string form.
func (n *Node) NextID() string {
	return n.node.Generate().String()
}
