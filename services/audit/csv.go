package audit

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/ValentinKolb/dCtl/api"
)

// CSVHeader is the first line of an exported activity log
const CSVHeader = "time,level,account,event,entity,description"

// WriteCSV writes events in the given order. Time and description are always
// quoted, the other columns never are.
func WriteCSV(w io.Writer, events []api.ActivityEvent) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(CSVHeader); err != nil {
		return err
	}
	for _, ev := range events {
		account := ""
		if ev.Actor != nil {
			account = ev.Actor.Email
		}
		fields := []string{
			quote(time.UnixMilli(ev.Time).UTC().Format("2006-01-02T15:04:05.000Z")),
			ev.Level,
			account,
			ev.Event,
			EntityName(ev),
			quote(strings.Join(ev.Desc, " ")),
		}
		if _, err := bw.WriteString("\n" + strings.Join(fields, ",")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// EntityName returns the name of the entity the event is about, the key for
// object events
func EntityName(ev api.ActivityEvent) string {
	kind, _, _ := strings.Cut(ev.Event, ".")
	var ref *api.EntityRef
	switch kind {
	case "pool":
		ref = ev.Pool
	case "bucket":
		ref = ev.Bucket
	case "node":
		ref = ev.Node
	case "obj":
		if ev.Obj != nil {
			return ev.Obj.Key
		}
	}
	if ref == nil {
		return ""
	}
	return ref.Name
}
