package opmon

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestOperationRecord(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 3; i++ {
		op := m.StartOperation("db.save")
		op.Finish(time.Hour)
	}
	m.StartOperation("a.first").Finish(time.Hour)

	infos := m.Snapshot(false)
	assert.Equal(t, 2, len(infos))
	assert.Equal(t, "a.first", infos[0].Name)
	assert.Equal(t, uint64(3), infos[1].Count)
	assert.T(t, infos[1].MaxDuration >= infos[1].AvgDuration())

	var buf bytes.Buffer
	m.Dump(&buf)
	assert.T(t, strings.Contains(buf.String(), "db.save"))
	assert.Equal(t, 0, len(m.Snapshot(false)))
}
