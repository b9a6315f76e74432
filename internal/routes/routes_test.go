package routes

import (
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	got := Generate("https://example.org/", "LAB", "PROJ")

	project := "https://example.org/app/virtual-lab/lab/LAB/project/PROJ"
	want := []string{
		"https://example.org",
		"https://example.org/about",
		"https://example.org/mission",
		"https://example.org/news",
		"https://example.org/pricing",
		"https://example.org/team",
		"https://example.org/resources",
		"https://example.org/terms",
		"https://example.org/privacy",
		"https://example.org/app/virtual-lab/lab/LAB/overview",
		"https://example.org/app/virtual-lab/lab/LAB/projects",
		project + "/home",
		project + "/team",
		project + "/library",
		project + "/admin",
		project + "/notebooks",
		project + "/notebooks/member",
		project + "/explore/interactive/experimental/morphology" + BrainRegionQuery,
		project + "/explore/interactive/experimental/electrophysiology" + BrainRegionQuery,
		project + "/explore/interactive/experimental/neuron-density" + BrainRegionQuery,
		project + "/explore/interactive/experimental/bouton-density" + BrainRegionQuery,
		project + "/explore/interactive/experimental/synapse-per-connection" + BrainRegionQuery,
		project + "/explore/interactive" + BrainRegionQuery,
		project + "/explore/interactive/model/e-model" + BrainRegionQuery,
		project + "/explore/interactive/model/me-model" + BrainRegionQuery,
		project + "/explore/interactive/model/synaptome" + BrainRegionQuery,
		project + "/build",
		project + "/build/me-model/new",
		project + "/build/synaptome/new",
		project + "/simulate",
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Generate() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_RoutesAreValidAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, r := range Generate("https://staging.example.org", "a", "b") {
		u, err := url.Parse(r)
		require.NoError(t, err, r)
		assert.Equal(t, "staging.example.org", u.Host)
		assert.False(t, seen[r], "duplicate route %s", r)
		seen[r] = true
	}
}

func TestBrainRegionQuery_DecodesTwiceToRegionURI(t *testing.T) {
	once, err := url.QueryUnescape(strings.TrimPrefix(BrainRegionQuery, "?brainRegion="))
	require.NoError(t, err)
	twice, err := url.QueryUnescape(once)
	require.NoError(t, err)
	assert.Equal(t, "http://api.brain-map.org/api/v2/data/Structure/567", twice)
}

func TestSiteRoot(t *testing.T) {
	root, err := SiteRoot("https://staging.openbraininstitute.org/app/virtual-lab")
	require.NoError(t, err)
	assert.Equal(t, "https://staging.openbraininstitute.org", root)

	_, err = SiteRoot("app/virtual-lab")
	assert.Error(t, err)

	_, err = SiteRoot("http://[::1")
	assert.Error(t, err)
}
