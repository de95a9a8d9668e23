package nmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/probe"
)

func TestParseNormalMixedNotShownLeavesUnknown(t *testing.T) {
	raw := `Nmap scan report for 10.0.0.7
Not shown: 98 closed tcp ports (reset), 1 filtered tcp ports (no-response)
PORT   STATE SERVICE
22/tcp open  ssh
Nmap done: 1 IP address (1 host up) scanned in 1.00 seconds
`
	results, _, err := parseNormal(raw, "SYN", "tcp", portset.New(22, 23))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 22, results[0].Port)
}

func TestParseNormalAllFiltered(t *testing.T) {
	raw := `Nmap scan report for 10.0.0.7
All 3 scanned ports on 10.0.0.7 are filtered
Nmap done: 1 IP address (1 host up) scanned in 3.00 seconds
`
	results, _, err := parseNormal(raw, "FIN", "tcp", portset.New(21, 22, 23))
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, probe.StateFiltered, r.State)
	}
}

func TestParseNormalIgnoredStatesLine(t *testing.T) {
	raw := `Nmap scan report for 10.0.0.7
All 2 scanned ports on 10.0.0.7 are in ignored states.
Not shown: 2 open|filtered tcp ports (no-response)
Nmap done: 1 IP address (1 host up) scanned in 3.00 seconds
`
	results, _, err := parseNormal(raw, "NULL", "tcp", portset.New(80, 443))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, probe.StateOpenFiltered, results[0].State)
}

func TestParseNormalNoHostsUp(t *testing.T) {
	raw := "Note: Host seems down.\nNmap done: 1 IP address (0 hosts up) scanned in 3.04 seconds\n"
	results, _, err := parseNormal(raw, "SYN", "tcp", portset.New(22))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestParseNormalMultipleHosts(t *testing.T) {
	raw := `Nmap scan report for 10.0.0.1
PORT   STATE    SERVICE
53/udp open|filtered domain
Nmap scan report for 10.0.0.2
PORT   STATE    SERVICE
53/udp closed domain
Nmap done: 2 IP addresses (2 hosts up) scanned in 9.00 seconds
`
	results, _, err := parseNormal(raw, "UDP", "udp", portset.New(53))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "10.0.0.1", results[0].Host)
	assert.Equal(t, probe.StateOpenFiltered, results[0].State)
	assert.Equal(t, "udp", results[0].Transport)
	assert.Equal(t, "10.0.0.2", results[1].Host)
	assert.Equal(t, probe.StateClosed, results[1].State)
}

func TestParseNormalIgnoresOutOfSetPorts(t *testing.T) {
	raw := `Nmap scan report for 10.0.0.1
22/tcp open ssh
9999/tcp open abyss
Nmap done: 1 IP address (1 host up)
`
	results, _, err := parseNormal(raw, "SYN", "tcp", portset.New(22))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 22, results[0].Port)
}

func TestParseVersion(t *testing.T) {
	v, ok := parseVersion("Nmap version 7.94SVN ( https://nmap.org )")
	assert.True(t, ok)
	assert.Equal(t, "7.94", v)

	_, ok = parseVersion("nope")
	assert.False(t, ok)
}

func TestHostAddr(t *testing.T) {
	assert.Equal(t, "10.0.0.5", hostAddr("web.example.test (10.0.0.5)"))
	assert.Equal(t, "10.0.0.5", hostAddr("10.0.0.5"))
}

const tracerouteOutput = `Nmap scan report for web.example.test (10.0.0.5)
Host is up (0.0095s latency).
PORT    STATE SERVICE
443/tcp open  https

TRACEROUTE (using port 443/tcp)
HOP RTT     ADDRESS
1   0.52 ms gateway.local (192.168.1.1)
2   ...
3   9.87 ms 10.10.0.1
4   --      10.0.0.5

Nmap scan report for 10.0.0.9
Host is up (0.011s latency).
PORT    STATE    SERVICE
443/tcp filtered https

TRACEROUTE (using port 443/tcp)
HOP RTT      ADDRESS
Hops 1-3 are the same as for 10.0.0.5
4   11.02 ms 10.0.0.9

Nmap done: 2 IP addresses (2 hosts up) scanned in 5.12 seconds
`

func TestParseTraceroute(t *testing.T) {
	routes := parseTraceroute(tracerouteOutput)
	require.Len(t, routes, 2)

	first := routes["10.0.0.5"]
	require.Len(t, first, 3)
	assert.Equal(t, probe.Hop{TTL: 1, RTT: 0.52, Address: "192.168.1.1", Name: "gateway.local"}, first[0])
	assert.Equal(t, probe.Hop{TTL: 3, RTT: 9.87, Address: "10.10.0.1"}, first[1])
	assert.Equal(t, probe.Hop{TTL: 4, Address: "10.0.0.5"}, first[2])

	second := routes["10.0.0.9"]
	require.Len(t, second, 3)
	assert.Equal(t, 1, second[0].TTL)
	assert.Equal(t, 3, second[1].TTL)
	assert.Equal(t, probe.Hop{TTL: 4, RTT: 11.02, Address: "10.0.0.9"}, second[2])

	results, _, err := parseNormal(tracerouteOutput, "TRACEROUTE", "tcp", portset.New(443))
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestParseTracerouteAbsent(t *testing.T) {
	raw := `Nmap scan report for 10.0.0.7
PORT   STATE SERVICE
22/tcp open  ssh
Nmap done: 1 IP address (1 host up) scanned in 1.00 seconds
`
	assert.Nil(t, parseTraceroute(raw))
}
