package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSelectsCanonicalProfiles(t *testing.T) {
	r := NewRegistry()

	def := r.Default()
	require.Equal(t, []string{"SYN", "ACK", "FIN", "NULL", "XMAS", "WINDOW", "UDP", "SERVICE_OS"}, Names(def))
	for _, p := range def {
		assert.True(t, p.Canonical(), p.Name)
		assert.NotEmpty(t, p.Intent, p.Name)
	}
}

func TestSelectKeepsCatalogOrder(t *testing.T) {
	r := NewRegistry()

	got, err := r.Select([]string{"udp", "SYN", "ack", "SYN"})
	require.NoError(t, err)
	require.Equal(t, []string{"SYN", "ACK", "UDP"}, Names(got))
}

func TestSelectUnknownProfile(t *testing.T) {
	_, err := NewRegistry().Select([]string{"SYN", "PING"})
	require.ErrorIs(t, err, ErrUnknownProfile)
}

func TestSelectEmptyFallsBackToDefault(t *testing.T) {
	r := NewRegistry()

	got, err := r.Select([]string{"", " "})
	require.NoError(t, err)
	require.Len(t, got, 8)
}

func TestOptInProfiles(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"SYN_FRAG", "SYN_SRCPORT53", "SYN_BADSUM", "BANNER", "TRACEROUTE"} {
		p, ok := r.Get(name)
		require.True(t, ok, name)
		assert.True(t, p.OptIn, name)
		assert.False(t, p.Canonical(), name)
	}

	frag, _ := r.Get("syn_frag")
	assert.Equal(t, StageEvasion, frag.Stage)
	assert.Equal(t, 2, frag.Opts.Timing)
	assert.Contains(t, frag.Opts.Flags, "-f")

	badsum, _ := r.Get("SYN_BADSUM")
	assert.Equal(t, StageEvasion, badsum.Stage)
	assert.Equal(t, KindSYN, badsum.Kind)
	assert.Contains(t, badsum.Opts.Flags, "--badsum")
	assert.Contains(t, badsum.Opts.Flags, "-f")

	trace, _ := r.Get("traceroute")
	assert.Equal(t, StageAuxiliary, trace.Stage)
	assert.Equal(t, KindSYN, trace.Kind)
	assert.Equal(t, []string{"--traceroute"}, trace.Opts.Flags)
}

func TestAuxiliaryStageRunsLast(t *testing.T) {
	got, err := NewRegistry().Select([]string{"TRACEROUTE", "SYN", "BANNER"})
	require.NoError(t, err)
	require.Equal(t, []string{"SYN", "BANNER", "TRACEROUTE"}, Names(got))

	stages := Stages()
	assert.Equal(t, StageAuxiliary, stages[len(stages)-1])
}

func TestWithOverrides(t *testing.T) {
	r := NewRegistry()

	over, err := r.WithOverrides(map[string]map[string]interface{}{
		"syn": {"timeout": "45s", "retries": "3"},
		"UDP": {"timeout": 120, "timing": 3, "flags": "--max-retries 1"},
	})
	require.NoError(t, err)

	syn, _ := over.Get("SYN")
	assert.Equal(t, 45*time.Second, syn.Opts.Timeout)
	assert.Equal(t, 3, syn.Opts.Retries)

	udp, _ := over.Get("UDP")
	assert.Equal(t, 120*time.Second, udp.Opts.Timeout)
	assert.Equal(t, 3, udp.Opts.Timing)
	assert.Equal(t, []string{"--max-retries", "1"}, udp.Opts.Flags)

	orig, _ := r.Get("SYN")
	assert.Zero(t, orig.Opts.Timeout, "original registry must not change")
}

func TestWithOverridesRejectsBadValues(t *testing.T) {
	r := NewRegistry()

	_, err := r.WithOverrides(map[string]map[string]interface{}{"NOPE": {"retries": 1}})
	require.ErrorIs(t, err, ErrUnknownProfile)

	_, err = r.WithOverrides(map[string]map[string]interface{}{"SYN": {"timing": 9}})
	require.Error(t, err)

	_, err = r.WithOverrides(map[string]map[string]interface{}{"SYN": {"timeout": "soon"}})
	require.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("xmas")
	require.NoError(t, err)
	assert.Equal(t, KindXMAS, k)

	_, err = ParseKind("ping")
	require.Error(t, err)
}

func TestStageParallel(t *testing.T) {
	assert.True(t, StageStealth.Parallel())
	for _, s := range []Stage{StageEvasion, StageUDP, StageFingerprint, StageAuxiliary} {
		assert.False(t, s.Parallel(), s)
	}
}
