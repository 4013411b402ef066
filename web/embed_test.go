package web

import (
	"io/fs"
	"strings"
	"testing"
)

func TestContent(t *testing.T) {
	for _, name := range []string{"index.html", "app.js", "styles.css"} {
		data, err := fs.ReadFile(Content, name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(data) == 0 {
			t.Errorf("%s is empty", name)
		}
	}

	app, _ := fs.ReadFile(Content, "app.js")
	if !strings.Contains(string(app), "/api/v1/stream/frames") {
		t.Error("app.js does not subscribe to the frame stream")
	}
}

// TestSphereUsesServedTexCoords checks the sphere program samples the
// texture coordinates served with the mesh instead of deriving its own.
func TestSphereUsesServedTexCoords(t *testing.T) {
	data, err := fs.ReadFile(Content, "app.js")
	if err != nil {
		t.Fatal(err)
	}
	app := string(data)
	for _, want := range []string{"mesh.texcoords", "in vec2 a_texcoord", "v_texcoord"} {
		if !strings.Contains(app, want) {
			t.Errorf("app.js does not contain %q", want)
		}
	}
	if strings.Contains(app, "0.5 - lat / PI") {
		t.Error("app.js still derives texture coordinates from the vertex position")
	}
}
