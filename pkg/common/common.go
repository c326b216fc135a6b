package common

import (
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	idNode     *snowflake.Node
	idNodeOnce sync.Once
)

func node() *snowflake.Node {
	idNodeOnce.Do(func() {
		n, err := snowflake.NewNode(1)
		if err != nil {
			panic(err)
		}
		idNode = n
	})
	return idNode
}

// UUIDint64 returns a time ordered unique record id.
func UUIDint64() int64 {
	return node().Generate().Int64()
}

// IsEmptyOrNA reports blank values and the "N/A" placeholder.
func IsEmptyOrNA(val string) bool {
	v := strings.TrimSpace(val)
	return v == "" || strings.EqualFold(v, "N/A")
}
