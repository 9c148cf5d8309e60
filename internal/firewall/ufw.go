package firewall

import (
	"bufio"
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/creamcroissant/sbnode/internal/support/execx"
)

// UFW drives the Uncomplicated Firewall.
type UFW struct {
	runner execx.Runner
	logger *slog.Logger
}

func (u *UFW) Name() string { return "ufw" }

func (u *UFW) Allow(ctx context.Context, port int) error {
	if err := validPort(port); err != nil {
		return err
	}
	if st, err := u.Status(ctx); err == nil && !st.Active {
		u.logger.Warn("ufw is inactive, the port may already be reachable", "port", port)
	}
	_, err := u.runner.Run(ctx, "ufw", "allow", strconv.Itoa(port))
	return err
}

func (u *UFW) Deny(ctx context.Context, port int) error {
	if err := validPort(port); err != nil {
		return err
	}
	_, err := u.runner.Run(ctx, "ufw", "delete", "allow", strconv.Itoa(port))
	return err
}

func (u *UFW) Enable(ctx context.Context) error {
	_, err := u.runner.Run(ctx, "ufw", "--force", "enable")
	return err
}

func (u *UFW) Disable(ctx context.Context) error {
	_, err := u.runner.Run(ctx, "ufw", "disable")
	return err
}

func (u *UFW) Status(ctx context.Context) (Status, error) {
	out, err := u.runner.Run(ctx, "ufw", "status")
	if err != nil {
		return Status{Backend: u.Name()}, err
	}
	return parseUFWStatus(string(out)), nil
}

// parseUFWStatus reads `ufw status` output:
//
//	Status: active
//
//	To                         Action      From
//	--                         ------      ----
//	443                        ALLOW       Anywhere
//	18890/tcp                  ALLOW       Anywhere
func parseUFWStatus(out string) Status {
	st := Status{Backend: "ufw", Raw: out}
	seen := map[int]bool{}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "Status:") {
			st.Active = strings.TrimSpace(strings.TrimPrefix(line, "Status:")) == "active"
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[1] != "ALLOW" {
			continue
		}
		portStr, _, _ := strings.Cut(fields[0], "/")
		port, err := strconv.Atoi(portStr)
		if err != nil || seen[port] {
			continue
		}
		seen[port] = true
		st.AllowedPorts = append(st.AllowedPorts, port)
	}
	sort.Ints(st.AllowedPorts)
	return st
}
