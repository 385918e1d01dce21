package capabilities

import (
	"testing"
	"testing/quick"

	"github.com/lion-dev/lion/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCap_ConstrainScenario1(t *testing.T) {
	// spec.md §8 scenario 1
	cap := NewFileCap([]string{"/tmp", "/var/log"}, true, true, false)

	constraints, err := ParseConstraints([]string{
		"file_path:/tmp",
		"file_operation:read=true,write=false,execute=false",
	})
	require.NoError(t, err)

	narrowed, err := cap.Constrain(constraints)
	require.NoError(t, err)

	assert.NoError(t, narrowed.Permits(domain.FileRequest("/tmp/x", true, false, false)))
	assert.Error(t, narrowed.Permits(domain.FileRequest("/tmp/x", false, true, false)))
	assert.Error(t, narrowed.Permits(domain.FileRequest("/var/log/x", true, false, false)))
}

func TestFileCap_EmptyScopeDeniesAll(t *testing.T) {
	cap := NewFileCap(nil, true, true, true)
	assert.Error(t, cap.Permits(domain.FileRequest("/anything", true, false, false)))
}

func TestFileCap_CanonicalizationDefeatsTraversal(t *testing.T) {
	cap := NewFileCap([]string{"/tmp"}, true, false, false)
	assert.Error(t, cap.Permits(domain.FileRequest("/tmp/../etc/passwd", true, false, false)))
}

func TestFileCap_SplitJoinRoundTrip(t *testing.T) {
	cap := NewFileCap([]string{"/tmp"}, true, true, false)
	parts := cap.Split()
	require.Len(t, parts, 2)

	joined := parts[0]
	for _, p := range parts[1:] {
		var err error
		joined, err = joined.Join(p)
		require.NoError(t, err)
	}

	req := domain.FileRequest("/tmp/x", true, true, false)
	assert.NoError(t, cap.Permits(req))
	assert.NoError(t, joined.Permits(req))
}

func TestFileCap_MonotoneConstrainProperty(t *testing.T) {
	f := func(allowRead, allowWrite, wantRead, wantWrite bool) bool {
		cap := NewFileCap([]string{"/data"}, allowRead, allowWrite, false)
		constraints := []Constraint{{
			Kind:  ConstraintFileOperation,
			Read:  BoolFlag{Set: true, Value: wantRead},
			Write: BoolFlag{Set: true, Value: wantWrite},
		}}
		narrowed, err := cap.Constrain(constraints)
		if err != nil {
			return false
		}
		req := domain.FileRequest("/data/x", true, true, false)
		narrowedOK := narrowed.Permits(req) == nil
		originalOK := cap.Permits(req) == nil
		// monotone: if narrowed permits, original must too
		return !narrowedOK || originalOK
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestNetworkCap_PortAndHostScoping(t *testing.T) {
	cap := &NetworkCap{
		Hosts:   []HostSpec{{Domain: "example.com"}},
		Ports:   []PortSpec{{Low: 443, High: 443}},
		Connect: true,
	}

	assert.NoError(t, cap.Permits(domain.NetworkRequest("example.com", 443, true, false)))
	assert.NoError(t, cap.Permits(domain.NetworkRequest("api.example.com", 443, true, false)))
	assert.Error(t, cap.Permits(domain.NetworkRequest("evil.com", 443, true, false)))
	assert.Error(t, cap.Permits(domain.NetworkRequest("example.com", 80, true, false)))
	assert.Error(t, cap.Permits(domain.NetworkRequest("example.com", 443, false, true)))
}

func TestPluginCallCap_EmptySetsAllowAny(t *testing.T) {
	cap := &PluginCallCap{}
	assert.NoError(t, cap.Permits(domain.PluginCallRequest("any-plugin", "any-fn")))
}

func TestMemoryCap_ExactRegionMatch(t *testing.T) {
	cap := &MemoryCap{Regions: []string{"region-a"}, Read: true}
	assert.NoError(t, cap.Permits(domain.MemoryRequest("region-a", true, false)))
	assert.Error(t, cap.Permits(domain.MemoryRequest("region-a-extra", true, false)))
}

func TestJoin_CrossVariantFails(t *testing.T) {
	file := NewFileCap([]string{"/tmp"}, true, false, false)
	mem := &MemoryCap{Regions: []string{"r"}, Read: true}
	_, err := file.Join(mem)
	require.Error(t, err)
	var compErr *CompositionError
	assert.ErrorAs(t, err, &compErr)
}

func TestIncludes_SubsumptionConsistency(t *testing.T) {
	a := NewFileCap([]string{"/tmp"}, true, true, false)
	b := NewFileCap([]string{"/tmp"}, true, false, false)

	assert.True(t, a.Includes(b))
	assert.False(t, b.Includes(a))

	samples := []domain.AccessRequest{
		domain.FileRequest("/tmp/x", true, false, false),
		domain.FileRequest("/tmp/x", false, true, false),
	}
	assert.True(t, includesBySampling(a, b, samples))
}
