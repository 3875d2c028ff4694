package idgen

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderNoPattern = regexp.MustCompile(`^MO\d{14}\d{10}$`)

func TestGenerator_OrderNoFormat(t *testing.T) {
	gen, err := NewGenerator(7)
	require.NoError(t, err)

	no := gen.OrderNo()
	assert.Regexp(t, orderNoPattern, no)
	assert.Len(t, no, 26)
}

func TestFormatOrderNo(t *testing.T) {
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	id := node.Generate()

	no := FormatOrderNo(id)
	ts := time.UnixMilli(id.Time()).UTC().Format("20060102150405")

	assert.Equal(t, "MO"+ts, no[:16])
	assert.Regexp(t, orderNoPattern, no)
}

func TestGenerator_InvalidNode(t *testing.T) {
	_, err := NewGenerator(1024)
	assert.Error(t, err)
	_, err = NewGenerator(-1)
	assert.Error(t, err)
}

func TestGenerator_ConcurrentOrderNoUnique(t *testing.T) {
	gen, err := NewGenerator(1)
	require.NoError(t, err)

	const workers, perWorker = 50, 200
	results := make(chan string, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				results <- gen.OrderNo()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]struct{}, workers*perWorker)
	for no := range results {
		_, dup := seen[no]
		require.False(t, dup, "订单号重复: %s", no)
		seen[no] = struct{}{}
	}
	assert.Len(t, seen, 10000)
}

func TestGenerator_OrderNoSortable(t *testing.T) {
	gen, err := NewGenerator(1)
	require.NoError(t, err)

	prev := gen.OrderNo()
	for i := 0; i < 1000; i++ {
		next := gen.OrderNo()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestGenerator_TransactionNo(t *testing.T) {
	gen, err := NewGenerator(2)
	require.NoError(t, err)

	a, b := gen.TransactionNo(), gen.TransactionNo()
	assert.NotEqual(t, a, b)
	assert.Equal(t, "PT", a[:2])
}

func TestDefault(t *testing.T) {
	assert.NotNil(t, Default())
	assert.NotEmpty(t, Default().OrderNo())
}
