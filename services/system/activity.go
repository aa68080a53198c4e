package system

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/services/audit"
)

// Files written to the public directory
const (
	auditFile       = "audit.csv"
	diagnosticsFile = "diagnostics.tgz"
)

// NodeDiagnostics collects the diagnostics of one storage node
type NodeDiagnostics interface {
	CollectDiagnostics(ctx context.Context, system, node string) ([]byte, error)
}

func publicPath(name string) string {
	return "/public/" + name
}

// --------------------------------------------------------------------------
// Activity log
// --------------------------------------------------------------------------

func (s *Service) ReadActivityLog(ctx context.Context, p *api.ActivityLogFilter) (*api.ActivityLogReply, error) {
	const op = "system.read_activity_log"
	_, sys, _, err := s.caller(ctx, op)
	if err != nil {
		return nil, err
	}
	if s.audit == nil {
		return &api.ActivityLogReply{Logs: []api.ActivityEvent{}}, nil
	}
	logs, err := s.audit.Read(ctx, sys.ID, *p)
	if err != nil {
		return nil, err
	}
	return &api.ActivityLogReply{Logs: logs}, nil
}

// ExportActivityLog writes the matching events as CSV into the public
// directory and returns the path it is served under
func (s *Service) ExportActivityLog(ctx context.Context, p *api.ActivityLogFilter) (string, error) {
	const op = "system.export_activity_log"
	reply, err := s.ReadActivityLog(ctx, p)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.PublicDir, auditFile)
	if err := writeFile(path, func(f *os.File) error { return audit.WriteCSV(f, reply.Logs) }); err != nil {
		log.Errorf("failed to write the audit csv %s: %v", path, err)
		return "", errs.Wrap(errs.Internal, op, err)
	}
	return publicPath(auditFile), nil
}

func writeFile(path string, fn func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// --------------------------------------------------------------------------
// Diagnostics
// --------------------------------------------------------------------------

// systemDiagnostics collects the configuration of the system and its
// activity log
func (s *Service) systemDiagnostics(ctx context.Context, system string) (map[string][]byte, error) {
	d, err := s.store.Data()
	if err != nil {
		return nil, err
	}
	files := map[string][]byte{}
	add := func(name string, doc model.Document) error {
		raw, err := model.Encode(doc)
		if err != nil {
			return err
		}
		files[name] = raw
		return nil
	}
	if sys, ok := d.System(system); ok {
		if err := add("config/system.json", sys); err != nil {
			return nil, err
		}
	}
	for _, p := range d.PoolsOfSystem(system) {
		if err := add("config/pools/"+p.Name+".json", p); err != nil {
			return nil, err
		}
	}
	for _, t := range d.TiersOfSystem(system) {
		if err := add("config/tiers/"+t.ID+".json", t); err != nil {
			return nil, err
		}
	}
	for _, b := range d.BucketsOfSystem(system) {
		if err := add("config/buckets/"+b.Name+".json", b); err != nil {
			return nil, err
		}
	}
	members, err := json.MarshalIndent(d.Clusters(), "", "  ")
	if err != nil {
		return nil, err
	}
	files["config/cluster.json"] = members

	if s.audit != nil {
		events, err := s.audit.Read(ctx, system, api.ActivityLogFilter{})
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := audit.WriteCSV(&buf, events); err != nil {
			return nil, err
		}
		files["activity.csv"] = buf.Bytes()
	}
	return files, nil
}

func (s *Service) DiagnoseSystem(ctx context.Context, _ *api.Empty) (string, error) {
	const op = "system.diagnose_system"
	session, sys, d, err := s.caller(ctx, op)
	if err != nil {
		return "", err
	}
	log.Infof("collecting diagnostics of system %s", sys.Name)
	files, err := s.systemDiagnostics(ctx, sys.ID)
	if err != nil {
		return "", errs.Wrap(errs.Internal, op, err)
	}
	if err := s.diag.Pack(ctx, filepath.Join(s.cfg.PublicDir, diagnosticsFile), files); err != nil {
		return "", errs.Wrap(errs.Internal, op, err)
	}
	by := actor(d, session)
	s.record(ctx, api.ActivityEvent{
		Event:  "dbg.diagnose_system",
		System: sys.ID,
		Actor:  by,
		Desc:   []string{fmt.Sprintf("%s diagnostics package was exported by %s", sys.Name, email(by))},
	})
	return publicPath(diagnosticsFile), nil
}

func (s *Service) DiagnoseNode(ctx context.Context, p *api.DiagnoseNodeParams) (string, error) {
	const op = "system.diagnose_node"
	session, sys, d, err := s.caller(ctx, op)
	if err != nil {
		return "", err
	}
	name := p.Name
	if name == "" {
		name = p.ID
	}
	log.Infof("collecting diagnostics of node %s", name)
	files, err := s.systemDiagnostics(ctx, sys.ID)
	if err != nil {
		return "", errs.Wrap(errs.Internal, op, err)
	}
	if s.nodeDiag != nil {
		raw, err := s.nodeDiag.CollectDiagnostics(ctx, sys.ID, name)
		if err != nil {
			return "", err
		}
		files["nodes/"+name+".json"] = raw
	}
	if err := s.diag.Pack(ctx, filepath.Join(s.cfg.PublicDir, diagnosticsFile), files); err != nil {
		return "", errs.Wrap(errs.Internal, op, err)
	}
	by := actor(d, session)
	s.record(ctx, api.ActivityEvent{
		Event:  "dbg.diagnose_node",
		System: sys.ID,
		Actor:  by,
		Node:   &api.EntityRef{ID: p.ID, Name: p.Name},
		Desc:   []string{fmt.Sprintf("%s diagnostics package was exported by %s", p.Name, email(by))},
	})
	return publicPath(diagnosticsFile), nil
}

func email(a *api.AccountRef) string {
	if a == nil {
		return ""
	}
	return a.Email
}

// LogFrontendStackTrace writes a stack trace reported by the console to the log
func (s *Service) LogFrontendStackTrace(_ context.Context, p *api.StackTraceParams) (api.Empty, error) {
	log.Infof("frontend stack trace: %s", string(p.StackTrace))
	return api.Empty{}, nil
}
