package web

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"

	"github.com/justestif/go-moodtunes/internal/mood"
	"github.com/justestif/go-moodtunes/internal/music"
	"github.com/justestif/go-moodtunes/internal/pipeline"
	"github.com/justestif/go-moodtunes/internal/recommend"
	internalweb "github.com/justestif/go-moodtunes/internal/web"
)

func TestEmbeddedTemplatesRender(t *testing.T) {
	tfs, err := Templates()
	if err != nil {
		t.Fatalf("Templates() error = %v", err)
	}
	tmpl, err := internalweb.NewTemplates(tfs)
	if err != nil {
		t.Fatalf("NewTemplates() error = %v", err)
	}

	t.Run("home signed out", func(t *testing.T) {
		var buf bytes.Buffer
		data := internalweb.HomePageData{PageData: internalweb.PageData{Title: "MoodTunes"}}
		if err := tmpl.Render(&buf, "home", data); err != nil {
			t.Fatalf("Render(home) error = %v", err)
		}
		if !strings.Contains(buf.String(), `href="/auth/login"`) {
			t.Errorf("signed-out home missing login link")
		}
	})

	t.Run("home signed in", func(t *testing.T) {
		var buf bytes.Buffer
		data := internalweb.HomePageData{
			PageData:      internalweb.PageData{Title: "MoodTunes"},
			Authenticated: true,
			Moods:         mood.DefaultProfiles(),
			Capabilities:  pipeline.DefaultCapabilities(),
		}
		if err := tmpl.Render(&buf, "home", data); err != nil {
			t.Fatalf("Render(home) error = %v", err)
		}
		if !strings.Contains(buf.String(), `data-mood="Happy"`) {
			t.Errorf("signed-in home missing mood buttons")
		}
	})

	t.Run("callback", func(t *testing.T) {
		var buf bytes.Buffer
		if err := tmpl.Render(&buf, "callback", internalweb.PageData{Title: "Signing in"}); err != nil {
			t.Fatalf("Render(callback) error = %v", err)
		}
	})

	t.Run("suggestions partial", func(t *testing.T) {
		var buf bytes.Buffer
		b := recommend.Bundle{
			Mood: mood.Happy,
			Tracks: []music.Track{
				{ID: "t1", Title: "Song", Artist: "Band", PreviewURL: "https://p/1"},
				{ID: "t2", Title: "Quiet"},
			},
			Activity:   "Go for a walk",
			Relaxation: "Stretch",
			SearchURL:  "https://open.spotify.com/search/happy",
		}
		if err := tmpl.RenderPartial(&buf, "suggestions", b); err != nil {
			t.Fatalf("RenderPartial(suggestions) error = %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "Song by Band") {
			t.Errorf("partial missing display name: %s", out)
		}
		if got := strings.Count(out, `class="play"`); got != 1 {
			t.Errorf("play buttons = %d, want 1", got)
		}
	})
}

func TestStaticAssets(t *testing.T) {
	sfs, err := Static()
	if err != nil {
		t.Fatalf("Static() error = %v", err)
	}
	for _, name := range []string{"app.js", "style.css"} {
		if _, err := fs.Stat(sfs, name); err != nil {
			t.Errorf("Stat(%s) error = %v", name, err)
		}
	}
}
