package main

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/TIANLI0/MaskKit/model"
)

func TestSidecarPath(t *testing.T) {
	for in, want := range map[string]string{
		"out/composite.png": "out/composite.json",
		"composite.webp":    "composite.json",
		"dir.v2/composite":  "dir.v2/composite.json",
	} {
		if got := sidecarPath(in); got != want {
			t.Errorf("sidecarPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "composite.json")
	params := model.DefaultParameters()
	params.Threshold = model.ThresholdValue(12.5)

	meta := sidecar{
		Original: "a.png",
		Result:   "b.png",
		Params:   params,
		Metadata: model.Metadata{Width: 10, Height: 8, ThresholdUsed: 12.5},
	}
	if err := writeSidecar(path, meta); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var back sidecar
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("sidecar is not valid JSON: %v", err)
	}
	if back.Original != "a.png" || back.Metadata.Width != 10 || back.Params.Threshold == nil {
		t.Errorf("unexpected sidecar: %+v", back)
	}
}

func TestWriteSidecarErrors(t *testing.T) {
	dir := t.TempDir()

	// NaN 无法编码为 JSON，不能写出空文件
	params := model.DefaultParameters()
	params.Threshold = model.ThresholdValue(math.NaN())
	path := filepath.Join(dir, "nan.json")
	if err := writeSidecar(path, sidecar{Params: params}); err == nil {
		t.Errorf("expected encode error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("sidecar should not be written on encode failure")
	}

	if err := writeSidecar(filepath.Join(dir, "missing", "out.json"), sidecar{}); err == nil {
		t.Errorf("expected error for a missing directory")
	}
}
