package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pithecene-io/buildout/metrics"
	"github.com/pithecene-io/buildout/types"
)

func abiSplit(abi string) types.ApkData {
	return types.ApkData{
		Type:        types.OutputFullSplit,
		Filters:     []types.FilterData{{FilterType: types.FilterABI, Identifier: abi}},
		VersionCode: 12,
		VersionName: "1.2",
		Enabled:     true,
		FilterName:  abi,
		FullName:    "debug-" + abi,
		BaseName:    "debug",
	}
}

func sampleElements(dir string) BuildElements {
	return NewBuildElements(
		NewBuildOutput(types.MergedManifests, types.MainApkData("debug", "debug"),
			filepath.Join(dir, "AndroidManifest.xml"), map[string]string{"packageId": "com.example"}),
		NewBuildOutput(types.ProcessedRes, abiSplit("x86_64"),
			filepath.Join(dir, "x86_64", "resources.ap_"), nil),
		NewBuildOutput(types.ProcessedRes, abiSplit("arm64-v8a"),
			filepath.Join(dir, "arm64-v8a", "resources.ap_"), nil),
	)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := sampleElements(dir)

	if err := want.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := FromAll(Dir(dir))
	if err != nil {
		t.Fatalf("FromAll failed: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got.Outputs(), want.Outputs())
	}
}

func TestSave_WritesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	if err := sampleElements(dir).Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("failed to read manifest: %v", err)
	}
	if strings.Contains(string(data), dir) {
		t.Errorf("manifest contains absolute directory %s:\n%s", dir, data)
	}
	if !strings.Contains(string(data), `"path": "x86_64/resources.ap_"`) {
		t.Errorf("expected slash-separated relative path, got:\n%s", data)
	}
	if !strings.Contains(string(data), `"kind": "internal"`) {
		t.Errorf("expected tagged output type, got:\n%s", data)
	}
}

func TestLoad_Relocatable(t *testing.T) {
	src := t.TempDir()
	if err := sampleElements(src).Save(src); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(src, FileName))
	if err != nil {
		t.Fatalf("failed to read manifest: %v", err)
	}

	moved := t.TempDir()
	if err := os.WriteFile(filepath.Join(moved, FileName), data, 0o644); err != nil {
		t.Fatalf("failed to copy manifest: %v", err)
	}

	got, err := FromAll(Dir(moved))
	if err != nil {
		t.Fatalf("FromAll failed: %v", err)
	}
	if !got.Equal(sampleElements(moved)) {
		t.Errorf("expected paths resolved against new directory, got %+v", got.Outputs())
	}
}

func TestFrom_FiltersByType(t *testing.T) {
	dir := t.TempDir()
	if err := sampleElements(dir).Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	res, err := From(types.ProcessedRes, Dir(dir))
	if err != nil {
		t.Fatalf("From failed: %v", err)
	}
	if res.Len() != 2 {
		t.Fatalf("expected 2 PROCESSED_RES outputs, got %d", res.Len())
	}
	for _, o := range res.Outputs() {
		if o.Type != types.ProcessedRes {
			t.Errorf("unexpected type %s", o.Type)
		}
	}

	none, err := From(types.Dex, Dir(dir))
	if err != nil {
		t.Fatalf("From failed: %v", err)
	}
	if !none.IsEmpty() {
		t.Errorf("expected no DEX outputs, got %d", none.Len())
	}
}

func TestFromAll_MissingIsEmpty(t *testing.T) {
	got, err := FromAll(Dir(filepath.Join(t.TempDir(), "never-built")), Strict())
	if err != nil {
		t.Fatalf("expected no error for missing manifest, got %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("expected empty collection, got %d", got.Len())
	}
}

func TestFromAll_UnreadableStrictness(t *testing.T) {
	dir := t.TempDir()
	// A directory named output.json cannot be read as a file.
	if err := os.MkdirAll(filepath.Join(dir, FileName), 0o755); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	got, err := FromAll(Dir(dir))
	if err != nil {
		t.Fatalf("lenient load should not fail, got %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("expected empty collection, got %d", got.Len())
	}

	if _, err := FromAll(Dir(dir), Strict()); err == nil {
		t.Error("expected strict load to fail")
	}
}

func TestDecode_RejectsUnknownTags(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"unknown kind", `[{"outputType":{"kind":"gradle","type":"DEX"},"apkData":{"type":"MAIN","splits":[],"enabled":true,"fullName":"d","baseName":"d"},"path":"a"}]`},
		{"unknown type", `[{"outputType":{"kind":"internal","type":"NOPE"},"apkData":{"type":"MAIN","splits":[],"enabled":true,"fullName":"d","baseName":"d"},"path":"a"}]`},
		{"unknown output type", `[{"outputType":{"kind":"internal","type":"DEX"},"apkData":{"type":"UNIVERSAL","splits":[],"enabled":true,"fullName":"d","baseName":"d"},"path":"a"}]`},
		{"unknown filter type", `[{"outputType":{"kind":"internal","type":"DEX"},"apkData":{"type":"SPLIT","splits":[{"filterType":"SCREEN","value":"x"}],"enabled":true,"fullName":"d","baseName":"d"},"path":"a"}]`},
		{"empty path", `[{"outputType":{"kind":"internal","type":"DEX"},"apkData":{"type":"MAIN","splits":[],"enabled":true,"fullName":"d","baseName":"d"},"path":""}]`},
		{"malformed", `{"outputType":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.json), "/build"); err == nil {
				t.Errorf("expected decode error for %s", tt.name)
			}
		})
	}
}

func TestDecode_AbsolutePathKept(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "classes.dex")
	data := `[{"outputType":{"kind":"internal","type":"DEX"},"apkData":{"type":"MAIN","splits":[],"enabled":true,"fullName":"d","baseName":"d"},"path":"` + filepath.ToSlash(abs) + `"}]`

	got, err := Decode([]byte(data), "/elsewhere")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Outputs()[0].Path != abs {
		t.Errorf("expected absolute path %s kept, got %s", abs, got.Outputs()[0].Path)
	}
}

func TestFiles_CollectionOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	a := NewBuildElements(NewBuildOutput(types.Dex, types.MainApkData("a", "a"), filepath.Join(first, "a.dex"), nil))
	b := NewBuildElements(NewBuildOutput(types.Dex, types.MainApkData("b", "b"), filepath.Join(second, "b.dex"), nil))
	if err := a.Save(first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := b.Save(second); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stray := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(stray, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	got, err := FromAll(Files(filepath.Join(second, FileName), stray, first))
	if err != nil {
		t.Fatalf("FromAll failed: %v", err)
	}
	if !got.Equal(b.Append(a.Outputs()...)) {
		t.Errorf("unexpected collection %+v", got.Outputs())
	}
}

func TestByIdentity(t *testing.T) {
	e := sampleElements("/build")

	o, ok := e.ByIdentity(abiSplit("arm64-v8a"))
	if !ok {
		t.Fatal("expected arm64-v8a output")
	}
	if o.Path != filepath.Join("/build", "arm64-v8a", "resources.ap_") {
		t.Errorf("unexpected path %s", o.Path)
	}

	// Informational fields do not affect identity.
	probe := abiSplit("x86_64")
	probe.VersionCode = 99
	if _, ok := e.ByIdentity(probe); !ok {
		t.Error("expected identity match ignoring version code")
	}

	if _, ok := e.ByIdentity(abiSplit("mips")); ok {
		t.Error("expected no match for mips")
	}
}

func TestBuildElements_ValueSemantics(t *testing.T) {
	e := sampleElements("/build")
	outputs := e.Outputs()
	outputs[0].Path = "/mutated"

	if e.Outputs()[0].Path == "/mutated" {
		t.Error("Outputs must return a copy")
	}

	longer := e.Append(NewBuildOutput(types.Dex, types.MainApkData("d", "d"), "/build/classes.dex", nil))
	if e.Len() != 3 || longer.Len() != 4 {
		t.Errorf("Append must not mutate receiver: %d, %d", e.Len(), longer.Len())
	}
}

func TestLoader_CachedOutputsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	if err := sampleElements(dir).Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	l, err := NewLoader(DefaultCacheSize)
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}

	first, err := l.FromAll(Dir(dir))
	if err != nil {
		t.Fatalf("FromAll failed: %v", err)
	}
	for _, o := range first.All() {
		if o.Properties != nil {
			o.Properties["packageId"] = "mutated"
		}
		if len(o.ApkData.Filters) > 0 {
			o.ApkData.Filters[0].Identifier = "mutated"
		}
	}
	outputs := first.Outputs()
	outputs[0].Properties["packageId"] = "mutated"

	second, err := l.FromAll(Dir(dir))
	if err != nil {
		t.Fatalf("FromAll failed: %v", err)
	}
	if v, _ := second.Outputs()[0].Property("packageId"); v != "com.example" {
		t.Errorf("cached properties mutated: packageId = %q", v)
	}
	if id := second.Outputs()[1].ApkData.Filters[0].Identifier; id != "x86_64" {
		t.Errorf("cached filters mutated: %q", id)
	}
	if v, _ := first.Outputs()[0].Property("packageId"); v != "com.example" {
		t.Errorf("collection mutated through Outputs: packageId = %q", v)
	}
}

func TestLoader_CachesUntilModified(t *testing.T) {
	dir := t.TempDir()
	if err := sampleElements(dir).Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	c := metrics.NewCollector("debug", "inprocess", "fs", "")
	l, err := NewLoader(DefaultCacheSize, WithMetrics(c))
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}

	for range 3 {
		got, err := l.FromAll(Dir(dir))
		if err != nil {
			t.Fatalf("FromAll failed: %v", err)
		}
		if got.Len() != 3 {
			t.Fatalf("expected 3 outputs, got %d", got.Len())
		}
	}
	if l.cache.Len() != 1 {
		t.Errorf("expected 1 cached manifest, got %d", l.cache.Len())
	}

	smaller := NewBuildElements(sampleElements(dir).Outputs()[0])
	if err := smaller.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := l.FromAll(Dir(dir))
	if err != nil {
		t.Fatalf("FromAll failed: %v", err)
	}
	if got.Len() != 1 {
		t.Errorf("expected cache invalidated by rewrite, got %d outputs", got.Len())
	}

	if snap := c.Snapshot(); snap.ManifestsLoaded != 4 {
		t.Errorf("expected 4 loads, got %d", snap.ManifestsLoaded)
	}
}
