package system

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/dCtl/lib/model"
)

// SyslogConfigurer applies the remote syslog target to the host, nil
// disables forwarding
type SyslogConfigurer interface {
	Reload(ctx context.Context, cfg *model.RemoteSyslogConfig) error
}

type noopSyslog struct{}

func (noopSyslog) Reload(context.Context, *model.RemoteSyslogConfig) error { return nil }

// RsyslogFile writes an rsyslog forwarding rule to Path and runs
// RestartCommand (if any) afterwards
type RsyslogFile struct {
	Path           string
	RestartCommand []string
}

// Rule renders the forwarding rule of cfg, "@@" forwards over TCP and "@"
// over UDP
func (r RsyslogFile) Rule(cfg *model.RemoteSyslogConfig) string {
	prefix := "@"
	if strings.EqualFold(cfg.Protocol, "TCP") {
		prefix = "@@"
	}
	return fmt.Sprintf("*.* %s%s:%d\n", prefix, cfg.Address, cfg.Port)
}

func (r RsyslogFile) Reload(ctx context.Context, cfg *model.RemoteSyslogConfig) error {
	if cfg == nil {
		if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(r.Path, []byte(r.Rule(cfg)), 0o644); err != nil {
			return err
		}
	}
	if len(r.RestartCommand) == 0 {
		return nil
	}
	out, err := exec.CommandContext(ctx, r.RestartCommand[0], r.RestartCommand[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(r.RestartCommand, " "), err, strings.TrimSpace(string(out)))
	}
	log.Infof("reloaded syslog configuration")
	return nil
}
