package ingest

import (
	"net/url"
	"strings"
	"testing"
)

const sphinxStylePage = `<!DOCTYPE html>
<html lang="en">
<head>
<title>Introduction - Terrain3D documentation</title>
<meta name="description" content="An editable terrain system for Godot 4.">
<script>var tracking = "do-not-index";</script>
<style>.wy-nav-side { width: 300px; }</style>
</head>
<body>
<nav class="wy-nav-side">
<ul>
<li><a href="/setup.html">Navigation link one</a></li>
<li><a href="/import.html">Navigation link two</a></li>
</ul>
</nav>
<div role="main">
<article>
<h1>Introduction</h1>
<p>Terrain3D is a high performance, editable terrain system for Godot 4.
The plugin renders a clipmap mesh around the camera and streams height,
control, and color maps from a set of region files stored next to your
scene, so very large worlds stay within memory limits.</p>
<p>To install the plugin, copy the addons directory into your project,
enable Terrain3D under Project Settings, then restart the editor. After
the restart a new Terrain3D node type becomes available in the Create
Node dialog, ready to drop into any 3D scene.</p>
<p>Select the node and press Add Texture to assign ground materials.
Sculpting happens with the brush tools in the toolbar; hold the modifier
keys to invert or smooth a stroke while painting height into the active
region of the terrain.</p>
</article>
</div>
<footer>Built with Sphinx.</footer>
</body>
</html>`

func testPageURL(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("https://terrain3d.example/en/stable/introduction.html")
	if err != nil {
		t.Fatalf("parsing url: %v", err)
	}
	return u
}

func TestExtractPage_Metadata(t *testing.T) {
	pg, err := extractPage([]byte(sphinxStylePage), testPageURL(t))
	if err != nil {
		t.Fatalf("extractPage: %v", err)
	}

	if pg.Title != "Introduction - Terrain3D documentation" {
		t.Errorf("Title = %q", pg.Title)
	}
	if pg.Description != "An editable terrain system for Godot 4." {
		t.Errorf("Description = %q", pg.Description)
	}
	if pg.URL != "https://terrain3d.example/en/stable/introduction.html" {
		t.Errorf("URL = %q", pg.URL)
	}
}

func TestExtractPage_Content(t *testing.T) {
	pg, err := extractPage([]byte(sphinxStylePage), testPageURL(t))
	if err != nil {
		t.Fatalf("extractPage: %v", err)
	}

	for _, want := range []string{"clipmap mesh", "enable Terrain3D under Project Settings", "brush tools"} {
		if !strings.Contains(pg.Content, want) {
			t.Errorf("content missing %q", want)
		}
	}
	for _, reject := range []string{"do-not-index", "wy-nav-side", "Navigation link one"} {
		if strings.Contains(pg.Content, reject) {
			t.Errorf("content leaked %q", reject)
		}
	}
	if strings.Contains(pg.Content, "\n\n\n") {
		t.Error("blank runs not collapsed")
	}
}

func TestExtractPage_FallbackPlainPage(t *testing.T) {
	// Too little text for readability, and no content landmark: the text
	// walker takes over on the whole document.
	body := `<html>
<head><title>Changelog</title><script>var x = 1;</script></head>
<body>
<p>Version 1.1 fixes a crash when importing meshes.</p>
<p>Version 1.0 is the initial release.</p>
</body>
</html>`

	pg, err := extractPage([]byte(body), testPageURL(t))
	if err != nil {
		t.Fatalf("extractPage: %v", err)
	}

	for _, want := range []string{"Version 1.1 fixes a crash", "Version 1.0 is the initial release."} {
		if !strings.Contains(pg.Content, want) {
			t.Errorf("content missing %q (got %q)", want, pg.Content)
		}
	}
	for _, reject := range []string{"Changelog", "var x"} {
		if strings.Contains(pg.Content, reject) {
			t.Errorf("content leaked %q", reject)
		}
	}
}

func TestExtractPage_DescriptionFallback(t *testing.T) {
	body := `<html>
<head><title>Redirect</title><meta name="description" content="Moved to the new manual."></head>
<body></body>
</html>`

	pg, err := extractPage([]byte(body), testPageURL(t))
	if err != nil {
		t.Fatalf("extractPage: %v", err)
	}
	if pg.Content != "Moved to the new manual." {
		t.Errorf("Content = %q, want the description", pg.Content)
	}
}

func TestExtractPage_MalformedHTML(t *testing.T) {
	body := `<html><body><div role="main"><p>Unclosed paragraph about voxel meshing`

	pg, err := extractPage([]byte(body), testPageURL(t))
	if err != nil {
		t.Fatalf("extractPage: %v", err)
	}
	if !strings.Contains(pg.Content, "voxel meshing") {
		t.Errorf("content = %q, want the repaired paragraph text", pg.Content)
	}
}

func TestCollapseBlankRuns(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a\n\n\n\nb", "a\n\nb"},
		{"\n\nx\n\n", "x"},
		{"left right", "left right"},
		{"p1\n\np2", "p1\n\np2"},
	}

	for _, tt := range tests {
		if got := collapseBlankRuns(tt.in); got != tt.want {
			t.Errorf("collapseBlankRuns(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
