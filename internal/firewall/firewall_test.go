package firewall

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creamcroissant/sbnode/internal/support/execx"
	"github.com/creamcroissant/sbnode/internal/support/execx/execxtest"
)

const ufwActive = `Status: active

To                         Action      From
--                         ------      ----
22/tcp                     ALLOW       Anywhere
443                        ALLOW       Anywhere
18890                      ALLOW       Anywhere
443 (v6)                   ALLOW       Anywhere (v6)
`

func TestUFWAllowDeny(t *testing.T) {
	runner := execxtest.New().On("ufw status", ufwActive, nil)
	fw, err := New(Options{Backend: "ufw", Runner: runner})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fw.Allow(ctx, 18890))
	require.NoError(t, fw.Deny(ctx, 443))
	assert.True(t, runner.Called("ufw allow 18890"))
	assert.True(t, runner.Called("ufw delete allow 443"))

	assert.Error(t, fw.Allow(ctx, 0))
	assert.Error(t, fw.Deny(ctx, 70000))
}

func TestUFWStatusAndToggle(t *testing.T) {
	runner := execxtest.New().On("ufw status", ufwActive, nil)
	fw, err := New(Options{Runner: runner})
	require.NoError(t, err)
	assert.Equal(t, "ufw", fw.Name())

	st, err := fw.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.Equal(t, []int{22, 443, 18890}, st.AllowedPorts)

	inactive := parseUFWStatus("Status: inactive\n")
	assert.False(t, inactive.Active)
	assert.Empty(t, inactive.AllowedPorts)

	require.NoError(t, fw.Enable(context.Background()))
	require.NoError(t, fw.Disable(context.Background()))
	assert.True(t, runner.Called("ufw --force enable"))
	assert.True(t, runner.Called("ufw disable"))
}

func TestUFWFailurePropagates(t *testing.T) {
	runner := execxtest.New().On("ufw allow 443", "", errors.New("ERROR: You need to be root"))
	fw, err := New(Options{Backend: "ufw", Runner: runner})
	require.NoError(t, err)
	assert.Error(t, fw.Allow(context.Background(), 443))
}

func TestNFTablesScripts(t *testing.T) {
	runner := execxtest.New()
	fw, err := New(Options{Backend: "nftables", SSHPort: 2222, Runner: runner})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fw.Allow(ctx, 443))
	script := runner.Inputs["nft -f -"]
	assert.Contains(t, script, "add table inet sbnode_filter\n")
	assert.Contains(t, script, "add set inet sbnode_filter allowed_ports { type inet_service; }\n")
	assert.Contains(t, script, "add element inet sbnode_filter allowed_ports { 443 }\n")

	runner.Inputs["nft -f -"] = ""
	require.NoError(t, fw.Enable(ctx))
	script = runner.Inputs["nft -f -"]
	assert.Contains(t, script, "policy drop;")
	assert.Contains(t, script, "flush chain inet sbnode_filter input\n")
	assert.Contains(t, script, "add rule inet sbnode_filter input tcp dport 2222 accept\n")
	assert.Contains(t, script, "add rule inet sbnode_filter input udp dport @allowed_ports accept\n")
}

func TestNFTablesToleratesMissingEntries(t *testing.T) {
	missing := &execx.ExitError{Command: "nft -f -", Stderr: "Error: Could not process rule: No such file or directory", Err: errors.New("exit status 1")}
	runner := execxtest.New().On("nft -f -", "", missing).On("nft list table inet sbnode_filter", "", missing)
	fw := NewNFTables("", 0, runner)
	ctx := context.Background()

	assert.NoError(t, fw.Deny(ctx, 443))
	assert.NoError(t, fw.Disable(ctx))
	st, err := fw.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Active)

	runner.On("nft -f -", "", &execx.ExitError{Command: "nft -f -", Stderr: "Error: syntax error", Err: errors.New("exit status 1")})
	assert.Error(t, fw.Deny(ctx, 443))
}

func TestNFTablesStatus(t *testing.T) {
	listing := `table inet sbnode_filter {
	set allowed_ports {
		type inet_service
		elements = { 443, 18890 }
	}

	chain input {
		type filter hook input priority filter; policy drop;
		tcp dport @allowed_ports accept
	}
}
`
	runner := execxtest.New().On("nft list table inet sbnode_filter", listing, nil).On("nft --version", "nftables v1.0.6", nil)
	fw := NewNFTables("", 0, runner)
	require.NoError(t, fw.CheckAvailability(context.Background()))

	st, err := fw.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.Equal(t, []int{443, 18890}, st.AllowedPorts)
}

func TestNoopAndUnknownBackend(t *testing.T) {
	fw, err := New(Options{Backend: "none"})
	require.NoError(t, err)
	assert.NoError(t, fw.Allow(context.Background(), 443))
	st, err := fw.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "none", st.Backend)

	_, err = New(Options{Backend: "iptables"})
	assert.Error(t, err)
}
