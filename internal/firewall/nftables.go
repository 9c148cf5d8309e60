package firewall

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/creamcroissant/sbnode/internal/support/execx"
)

const defaultNFTTableName = "sbnode_filter"

// NFTables keeps listener ports in the allowed_ports set of a dedicated
// inet table. Enable installs a drop-by-default input chain that accepts the
// set, SSH and established traffic; Disable removes the chain and keeps the set.
type NFTables struct {
	tableName string
	sshPort   int
	runner    execx.Runner
}

// NewNFTables returns an nftables firewall using tableName.
func NewNFTables(tableName string, sshPort int, runner execx.Runner) *NFTables {
	if strings.TrimSpace(tableName) == "" {
		tableName = defaultNFTTableName
	}
	if sshPort <= 0 {
		sshPort = 22
	}
	if runner == nil {
		runner = execx.Default
	}
	return &NFTables{tableName: tableName, sshPort: sshPort, runner: runner}
}

func (n *NFTables) Name() string { return "nftables" }

// CheckAvailability checks that nft can be executed.
func (n *NFTables) CheckAvailability(ctx context.Context) error {
	if _, err := n.runner.Run(ctx, "nft", "--version"); err != nil {
		return fmt.Errorf("nftables not available: %w", err)
	}
	return nil
}

func (n *NFTables) Allow(ctx context.Context, port int) error {
	if err := validPort(port); err != nil {
		return err
	}
	script := n.declareScript() + fmt.Sprintf("add element inet %s allowed_ports { %d }\n", n.tableName, port)
	if err := n.runNft(ctx, script); err != nil {
		return fmt.Errorf("nft allow %d: %w", port, err)
	}
	return nil
}

func (n *NFTables) Deny(ctx context.Context, port int) error {
	if err := validPort(port); err != nil {
		return err
	}
	script := fmt.Sprintf("delete element inet %s allowed_ports { %d }\n", n.tableName, port)
	if err := n.runNft(ctx, script); err != nil {
		if isNFTNoSuchEntry(err) {
			return nil
		}
		return fmt.Errorf("nft deny %d: %w", port, err)
	}
	return nil
}

func (n *NFTables) Enable(ctx context.Context) error {
	if err := n.runNft(ctx, n.enableScript()); err != nil {
		return fmt.Errorf("nft enable: %w", err)
	}
	return nil
}

func (n *NFTables) Disable(ctx context.Context) error {
	if err := n.runNft(ctx, fmt.Sprintf("delete chain inet %s input\n", n.tableName)); err != nil {
		if isNFTNoSuchEntry(err) {
			return nil
		}
		return fmt.Errorf("nft disable: %w", err)
	}
	return nil
}

var nftElements = regexp.MustCompile(`elements\s*=\s*\{([^}]*)\}`)

func (n *NFTables) Status(ctx context.Context) (Status, error) {
	st := Status{Backend: n.Name()}
	out, err := n.runner.Run(ctx, "nft", "list", "table", "inet", n.tableName)
	if err != nil {
		if isNFTNoSuchEntry(err) {
			return st, nil
		}
		return st, err
	}
	st.Raw = string(out)
	st.Active = strings.Contains(st.Raw, "chain input") && strings.Contains(st.Raw, "policy drop")
	if m := nftElements.FindStringSubmatch(st.Raw); len(m) > 1 {
		for _, f := range strings.Split(m[1], ",") {
			if p, err := strconv.Atoi(strings.TrimSpace(f)); err == nil {
				st.AllowedPorts = append(st.AllowedPorts, p)
			}
		}
		sort.Ints(st.AllowedPorts)
	}
	return st, nil
}

func (n *NFTables) declareScript() string {
	var b strings.Builder
	fmt.Fprintf(&b, "add table inet %s\n", n.tableName)
	fmt.Fprintf(&b, "add set inet %s allowed_ports { type inet_service; }\n", n.tableName)
	return b.String()
}

func (n *NFTables) enableScript() string {
	var b strings.Builder
	b.WriteString(n.declareScript())
	fmt.Fprintf(&b, "add chain inet %s input { type filter hook input priority filter; policy drop; }\n", n.tableName)
	fmt.Fprintf(&b, "flush chain inet %s input\n", n.tableName)
	rules := []string{
		"ct state established,related accept",
		`iif "lo" accept`,
		"meta l4proto { icmp, ipv6-icmp } accept",
		fmt.Sprintf("tcp dport %d accept", n.sshPort),
		"tcp dport @allowed_ports accept",
		"udp dport @allowed_ports accept",
	}
	for _, r := range rules {
		fmt.Fprintf(&b, "add rule inet %s input %s\n", n.tableName, r)
	}
	return b.String()
}

func (n *NFTables) runNft(ctx context.Context, script string) error {
	_, err := n.runner.RunInput(ctx, strings.NewReader(script), "nft", "-f", "-")
	return err
}

func isNFTNoSuchEntry(err error) bool {
	var exitErr *execx.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	msg := strings.ToLower(exitErr.Stderr)
	return strings.Contains(msg, "no such file or directory") || strings.Contains(msg, "does not exist")
}
