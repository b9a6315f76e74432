// Package routes generates the fixed list of application pages that are
// scraped for links.
package routes

import (
	"fmt"
	"net/url"
	"strings"
)

// BrainRegionQuery selects the root brain region on explore pages. The
// region URI is percent-encoded twice, matching what the frontend emits.
const BrainRegionQuery = "?brainRegion=http%253A%252F%252Fapi.brain-map.org%252Fapi%252Fv2%252Fdata%252FStructure%252F567"

var publicPages = []string{"", "/about", "/mission", "/news", "/pricing", "/team", "/resources", "/terms", "/privacy"}

var projectPages = []string{"home", "team", "library", "admin", "notebooks", "notebooks/member"}

var experimentalPages = []string{"morphology", "electrophysiology", "neuron-density", "bouton-density", "synapse-per-connection"}

var modelPages = []string{"e-model", "me-model", "synaptome"}

var workflowPages = []string{"build", "build/me-model/new", "build/synaptome/new", "simulate"}

// Generate returns the ordered route list for a lab and project. siteRoot is
// the scheme and host of the deployment, without a trailing slash.
func Generate(siteRoot, labID, projectID string) []string {
	root := strings.TrimRight(siteRoot, "/")
	lab := fmt.Sprintf("%s/app/virtual-lab/lab/%s", root, labID)
	project := fmt.Sprintf("%s/project/%s", lab, projectID)

	out := make([]string, 0, len(publicPages)+2+len(projectPages)+len(experimentalPages)+1+len(modelPages)+len(workflowPages))
	for _, p := range publicPages {
		out = append(out, root+p)
	}
	out = append(out, lab+"/overview", lab+"/projects")
	for _, p := range projectPages {
		out = append(out, project+"/"+p)
	}
	for _, p := range experimentalPages {
		out = append(out, project+"/explore/interactive/experimental/"+p+BrainRegionQuery)
	}
	out = append(out, project+"/explore/interactive"+BrainRegionQuery)
	for _, p := range modelPages {
		out = append(out, project+"/explore/interactive/model/"+p+BrainRegionQuery)
	}
	for _, p := range workflowPages {
		out = append(out, project+"/"+p)
	}
	return out
}

// SiteRoot reduces a base URL such as https://host/app/virtual-lab to
// https://host.
func SiteRoot(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
