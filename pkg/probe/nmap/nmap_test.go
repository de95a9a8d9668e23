package nmap

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/profile"
	"github.com/vulntor/fwrecon/pkg/target"
)

const synOutput = `Starting Nmap 7.94 ( https://nmap.org ) at 2025-03-01 10:00 UTC
Nmap scan report for web.example.test (10.0.0.5)
Host is up (0.00051s latency).
Not shown: 997 filtered tcp ports (no-response)
PORT    STATE  SERVICE
22/tcp  open   ssh
80/tcp  open   http
443/tcp closed https

Nmap done: 1 IP address (1 host up) scanned in 4.31 seconds
`

const serviceOutput = `Nmap scan report for 10.0.0.5
Host is up (0.00040s latency).
PORT   STATE SERVICE VERSION
22/tcp open  ssh     OpenSSH 8.9p1 Ubuntu 3ubuntu0.6 (Ubuntu Linux; protocol 2.0)
80/tcp open  http    nginx 1.18.0 (Ubuntu)
Running: Linux 5.X
OS details: Linux 5.0 - 5.14
Nmap done: 1 IP address (1 host up) scanned in 12.02 seconds
`

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	out   map[string]string
	err   error
	calls []call
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.err != nil {
		return nil, f.err
	}
	key := "scan"
	if len(args) > 0 && args[len(args)-1] == "--version" {
		key = "version"
	}
	return []byte(f.out[key]), nil
}

func newTestEngine(t *testing.T, cfg Config, r *fakeRunner) *Engine {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	e.WithRunner(r)
	e.lookPath = func(string) (string, error) { return "/usr/bin/nmap", nil }
	return e
}

func mustTarget(t *testing.T, raw string) target.Target {
	t.Helper()
	tgt, err := target.Parse(raw)
	require.NoError(t, err)
	return tgt
}

func mustProfile(t *testing.T, name string) profile.ScanProfile {
	t.Helper()
	p, ok := profile.NewRegistry().Get(name)
	require.True(t, ok, name)
	return p
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{MinVersion: "not-a-constraint!"})
	require.Error(t, err)

	_, err = New(Config{ExtraArgs: `--script "unterminated`})
	require.Error(t, err)
}

func TestCheckCapability(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantErr bool
	}{
		{"supported", "Nmap version 7.94 ( https://nmap.org )\nPlatform: x86_64-pc-linux-gnu", false},
		{"too old", "Nmap version 6.40 ( http://nmap.org )", true},
		{"unreadable", "something else entirely", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, Config{}, &fakeRunner{out: map[string]string{"version": tt.version}})
			err := e.CheckCapability(context.Background())
			if tt.wantErr {
				require.ErrorIs(t, err, probe.ErrCapabilityUnavailable)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCheckCapabilityMissingBinary(t *testing.T) {
	e := newTestEngine(t, Config{}, &fakeRunner{})
	e.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }

	err := e.CheckCapability(context.Background())
	require.ErrorIs(t, err, probe.ErrCapabilityUnavailable)
}

func TestDiscoverUsesDiscoveryArgs(t *testing.T) {
	r := &fakeRunner{out: map[string]string{"scan": synOutput}}
	e := newTestEngine(t, Config{DiscoveryArgs: "-T3 --top-ports 50"}, r)

	raw, err := e.Discover(context.Background(), mustTarget(t, "10.0.0.5"))
	require.NoError(t, err)
	assert.Contains(t, raw, "22/tcp")

	require.Len(t, r.calls, 1)
	assert.Equal(t, "nmap", r.calls[0].name)
	assert.Equal(t, []string{"-T3", "--top-ports", "50", "10.0.0.5"}, r.calls[0].args)
}

func TestProbeBuildsArgsAndParses(t *testing.T) {
	r := &fakeRunner{out: map[string]string{"scan": synOutput}}
	e := newTestEngine(t, Config{ExtraArgs: "--reason"}, r)

	ports := portset.New(22, 80, 443, 8080)
	obs, err := e.Probe(context.Background(), mustTarget(t, "10.0.0.5"), mustProfile(t, "SYN"), ports)
	require.NoError(t, err)

	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{"-Pn", "-sS", "-T4", "--reason", "-p", "22,80,443,8080", "10.0.0.5"}, r.calls[0].args)

	states := map[int]probe.State{}
	for _, res := range obs.Results {
		assert.Equal(t, "SYN", res.Profile)
		assert.Equal(t, "10.0.0.5", res.Host)
		states[res.Port] = res.State
	}
	assert.Equal(t, map[int]probe.State{
		22:   probe.StateOpen,
		80:   probe.StateOpen,
		443:  probe.StateClosed,
		8080: probe.StateFiltered,
	}, states)
}

func TestProbeSudo(t *testing.T) {
	r := &fakeRunner{out: map[string]string{"scan": synOutput}}
	e := newTestEngine(t, Config{Sudo: true}, r)

	_, err := e.Probe(context.Background(), mustTarget(t, "10.0.0.5"), mustProfile(t, "ACK"), portset.New(22))
	require.NoError(t, err)
	assert.Equal(t, "sudo", r.calls[0].name)
	assert.Equal(t, []string{"-n", "nmap", "-Pn", "-sA"}, r.calls[0].args[:4])
}

func TestProbeServiceAndOS(t *testing.T) {
	r := &fakeRunner{out: map[string]string{"scan": serviceOutput}}
	e := newTestEngine(t, Config{}, r)

	obs, err := e.Probe(context.Background(), mustTarget(t, "10.0.0.5"), mustProfile(t, "SERVICE_OS"), portset.New(22, 80))
	require.NoError(t, err)
	assert.Contains(t, r.calls[0].args, "-sV")
	assert.Contains(t, r.calls[0].args, "-O")

	require.Len(t, obs.Results, 2)
	assert.Equal(t, "ssh", obs.Results[0].Service)
	assert.Equal(t, "OpenSSH 8.9p1 Ubuntu 3ubuntu0.6 (Ubuntu Linux; protocol 2.0)", obs.Results[0].Version)
	assert.Equal(t, "nginx 1.18.0 (Ubuntu)", obs.Results[1].Version)
	assert.Equal(t, "Linux 5.X", obs.OS)
}

func TestProbeMalformedOutput(t *testing.T) {
	r := &fakeRunner{out: map[string]string{"scan": "segfault\n"}}
	e := newTestEngine(t, Config{}, r)

	_, err := e.Probe(context.Background(), mustTarget(t, "10.0.0.5"), mustProfile(t, "FIN"), portset.New(22))
	require.ErrorIs(t, err, ErrMalformedOutput)
}

func TestProbeRunnerError(t *testing.T) {
	r := &fakeRunner{err: errors.New("exit status 1: You requested a scan type which requires root privileges.")}
	e := newTestEngine(t, Config{}, r)

	_, err := e.Probe(context.Background(), mustTarget(t, "10.0.0.5"), mustProfile(t, "XMAS"), portset.New(22))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "XMAS")
	assert.Contains(t, err.Error(), "root privileges")
}

func TestProbeCanceledContext(t *testing.T) {
	r := &fakeRunner{err: errors.New("signal: killed")}
	e := newTestEngine(t, Config{}, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Probe(ctx, mustTarget(t, "10.0.0.5"), mustProfile(t, "NULL"), portset.New(22))
	require.ErrorIs(t, err, context.Canceled)
}

func TestProbeNotFoundIsCapability(t *testing.T) {
	r := &fakeRunner{err: &exec.Error{Name: "nmap", Err: exec.ErrNotFound}}
	e := newTestEngine(t, Config{}, r)

	_, err := e.Probe(context.Background(), mustTarget(t, "10.0.0.5"), mustProfile(t, "WINDOW"), portset.New(22))
	require.ErrorIs(t, err, probe.ErrCapabilityUnavailable)
}

func TestProbeScopeArgs(t *testing.T) {
	r := &fakeRunner{out: map[string]string{"scan": synOutput}}
	e := newTestEngine(t, Config{}, r)

	tgt := mustTarget(t, "10.0.0.0/24").WithScope([]string{"10.0.0.5", "10.0.0.9"})
	_, err := e.Probe(context.Background(), tgt, mustProfile(t, "UDP"), portset.New(53))
	require.NoError(t, err)

	args := r.calls[0].args
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.9"}, args[len(args)-2:])
}

func TestTechniqueEvasionArgs(t *testing.T) {
	r := &fakeRunner{out: map[string]string{"scan": synOutput}}
	e := newTestEngine(t, Config{
		Decoys:      []string{"RND:5", "ME"},
		SpoofSource: "192.0.2.10",
		Interface:   "eth0",
		ExtraArgs:   "--reason",
	}, r)

	_, err := e.Probe(context.Background(), mustTarget(t, "10.0.0.5"), mustProfile(t, "SYN_BADSUM"), portset.New(22))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-Pn", "-sS", "-T2",
		"-f", "--mtu", "24", "--data-length", "50", "--badsum",
		"-D", "RND:5,ME",
		"-e", "eth0", "-S", "192.0.2.10",
		"--reason",
		"-p", "22", "10.0.0.5",
	}, r.calls[0].args)
}

func TestEvasionLeavesDiscoveryAlone(t *testing.T) {
	r := &fakeRunner{out: map[string]string{"scan": synOutput}}
	e := newTestEngine(t, Config{Decoys: []string{"10.1.1.1"}}, r)

	_, err := e.Discover(context.Background(), mustTarget(t, "10.0.0.5"))
	require.NoError(t, err)
	assert.NotContains(t, r.calls[0].args, "-D")
}

func TestNewRejectsBadEvasion(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero random decoys", Config{Decoys: []string{"RND:0"}}},
		{"bad decoy", Config{Decoys: []string{"not-an-ip"}}},
		{"empty decoy", Config{Decoys: []string{"ME", " "}}},
		{"spoof without interface", Config{SpoofSource: "192.0.2.10"}},
		{"bad spoof address", Config{SpoofSource: "999.1.1.1", Interface: "eth0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestTracerouteTechniqueRoutes(t *testing.T) {
	const out = `Nmap scan report for 10.0.0.5
PORT   STATE SERVICE
22/tcp open  ssh

TRACEROUTE (using port 22/tcp)
HOP RTT     ADDRESS
1   0.40 ms 192.168.1.1
2   1.10 ms 10.0.0.5

Nmap done: 1 IP address (1 host up) scanned in 2.00 seconds
`
	r := &fakeRunner{out: map[string]string{"scan": out}}
	e := newTestEngine(t, Config{}, r)

	obs, err := e.Probe(context.Background(), mustTarget(t, "10.0.0.5"), mustProfile(t, "TRACEROUTE"), portset.New(22))
	require.NoError(t, err)
	assert.Equal(t, []string{"-Pn", "-sS", "-T4", "--traceroute", "-p", "22", "10.0.0.5"}, r.calls[0].args)

	require.Len(t, obs.Results, 1)
	assert.Equal(t, "TRACEROUTE", obs.Results[0].Profile)
	require.Len(t, obs.Routes["10.0.0.5"], 2)
	assert.Equal(t, "192.168.1.1", obs.Routes["10.0.0.5"][0].Address)
}
