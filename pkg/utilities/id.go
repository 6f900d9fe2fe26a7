package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID returns a new time-sortable KSUID string. Used for record ids.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSnowflakeID returns a snowflake id from the process-wide node selected by
// SNOWFLAKE_NODE (default 1). A shared node keeps ids unique within a millisecond.
// If the node cannot be built it falls back to a KSUID.
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64); err == nil {
			nodeID = v
		}
		node, _ = snowflake.NewNode(nodeID)
	})
	if node == nil {
		return NewKSUID()
	}
	return node.Generate().String()
}
