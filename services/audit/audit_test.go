package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/db/engines/memdb"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRead(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	l := NewLog(memdb.NewMemDB(), clk)

	require.NoError(t, l.Record(ctx, api.ActivityEvent{Event: "conf.create_system", System: "s1", Desc: []string{"created"}}))
	clk.Add(time.Second)
	require.NoError(t, l.Record(ctx, api.ActivityEvent{Event: "pool.create", System: "s1", Pool: &api.EntityRef{Name: "p1"}}))
	require.NoError(t, l.Record(ctx, api.ActivityEvent{Event: "pool.create", System: "s2"}))
	clk.Add(time.Second)
	require.NoError(t, l.Record(ctx, api.ActivityEvent{Event: "pool.delete", System: "s1"}))

	all, err := l.Read(ctx, "s1", api.ActivityLogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "conf.create_system", all[0].Event)
	assert.Equal(t, "pool.create", all[1].Event)
	assert.Equal(t, "pool.delete", all[2].Event)
	assert.Equal(t, LevelInfo, all[0].Level)
	assert.NotEmpty(t, all[0].ID)

	pools, err := l.Read(ctx, "s1", api.ActivityLogFilter{Event: "pool"})
	require.NoError(t, err)
	assert.Len(t, pools, 2)

	paged, err := l.Read(ctx, "s1", api.ActivityLogFilter{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "pool.create", paged[0].Event)

	since, err := l.Read(ctx, "s1", api.ActivityLogFilter{Since: clk.Now().UnixMilli()})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "pool.delete", since[0].Event)
}

func TestWriteCSV(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []api.ActivityEvent{
		{
			Time:  t0.UnixMilli(),
			Level: "info",
			Event: "pool.create",
			Actor: &api.AccountRef{Email: "admin@example.com"},
			Pool:  &api.EntityRef{Name: "p1"},
			Desc:  []string{"p1 was created", `by "admin"`},
		},
		{
			Time:  t0.Add(time.Minute).UnixMilli(),
			Level: "alert",
			Event: "obj.uploaded",
			Obj:   &api.EntityRef{Key: "a/b.txt"},
			Desc:  []string{"upload, done"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, events))

	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, CSVHeader, lines[0])
	assert.Equal(t, `"2024-03-01T12:00:00.000Z",info,admin@example.com,pool.create,p1,"p1 was created by ""admin"""`, lines[1])
	assert.Equal(t, `"2024-03-01T12:01:00.000Z",alert,,obj.uploaded,a/b.txt,"upload, done"`, lines[2])
}
