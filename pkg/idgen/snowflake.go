package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// 订单号：MO + UTC yyyyMMddHHmmss + 10 位后缀
// 后缀 = (毫秒 % 1000) << 22 | 节点 << 12 | 序列号，三部分都取自同一个雪花ID，
// 因此订单号与雪花ID一一对应：同一节点内不会重复，并且按时间有序。

const (
	OrderNoPrefix       = "MO"
	TransactionNoPrefix = "PT"
	orderNoTimeLayout   = "20060102150405"
)

// Generator 基于节点的单调ID生成器
type Generator struct {
	node *snowflake.Node
}

func NewGenerator(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > 1023 {
		return nil, fmt.Errorf("节点ID必须在 0-1023 之间: %d", nodeID)
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("创建雪花节点失败: %w", err)
	}
	return &Generator{node: node}, nil
}

func (g *Generator) NextID() int64 {
	return g.node.Generate().Int64()
}

// OrderNo 生成订单号
func (g *Generator) OrderNo() string {
	return FormatOrderNo(g.node.Generate())
}

// TransactionNo 生成流水号
func (g *Generator) TransactionNo() string {
	return TransactionNoPrefix + g.node.Generate().String()
}

func FormatOrderNo(id snowflake.ID) string {
	ms := id.Time()
	ts := time.UnixMilli(ms).UTC().Format(orderNoTimeLayout)
	suffix := (ms%1000)<<22 | id.Node()<<12 | id.Step()
	return fmt.Sprintf("%s%s%010d", OrderNoPrefix, ts, suffix)
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Init 初始化默认生成器，只有第一次调用生效
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		defaultGenerator, err = NewGenerator(nodeID)
	})
	return err
}

// Default 未初始化时使用节点 1
func Default() *Generator {
	if defaultGenerator == nil {
		_ = Init(1)
	}
	return defaultGenerator
}
