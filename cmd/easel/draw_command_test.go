package main

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestParsePoints(t *testing.T) {
	points, err := parsePoints([]string{"1,2", "3.5,4 5,6"})
	if err != nil {
		t.Fatalf("parsePoints: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[1].X != 3.5 || points[2].Y != 6 {
		t.Fatalf("unexpected points %+v", points)
	}

	for _, bad := range [][]string{{"1"}, {"x,2"}, {"1,y"}, {" "}} {
		if _, err := parsePoints(bad); err == nil {
			t.Fatalf("expected %q to fail", bad)
		}
	}
}

func TestDrawAndRenderCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"layer", "add", "raster"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("layer add: %v", err)
	}

	out, _, err := runCLI(t, []string{"draw", "2,12", "20,12"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	requireContains(t, out, "Applied brush gesture")

	if _, _, err := runCLI(t, []string{"draw", "--tool", "spray", "1,1"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown tool to fail")
	}

	target := filepath.Join(t.TempDir(), "frame.png")
	out, _, err = runCLI(t, []string{"render", "-o", target, "--submission"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	requireContains(t, out, "24x24 submission render")

	f, err := os.Open(target)
	if err != nil {
		t.Fatalf("open render: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode render: %v", err)
	}
	if _, _, _, a := img.At(12, 12).RGBA(); a == 0 {
		t.Fatal("expected the stroke to cover (12,12)")
	}

	if _, _, err := runCLI(t, []string{"render", "-o", target, "--submission", "--mask"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected --submission with --mask to fail")
	}
}
