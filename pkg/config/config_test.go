package config

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/ccollicutt/validata/pkg/source"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
all: "^(?P<num>\\d+)\t(?P<_codes>\\w+)$"
num: '[1-9]\d*'
_codes: [A, B, 3]
__range: "1,-1"
__logfile: history.yaml
`
	path := writeTempFile(t, "config.yaml", content)
	doc, err := Load(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	wantKeys := []string{"_codes", "all", "num"}
	if got := doc.Keys(); !reflect.DeepEqual(got, wantKeys) {
		t.Errorf("Keys() = %v, want %v", got, wantKeys)
	}

	e, ok := doc.Entry("_codes")
	if !ok {
		t.Fatal("Entry(_codes) not found")
	}
	if e.Kind != KindConstantSet {
		t.Errorf("Kind = %v, want constant set", e.Kind)
	}
	if want := []string{"A", "B", "3"}; !reflect.DeepEqual(e.Values, want) {
		t.Errorf("Values = %v, want %v", e.Values, want)
	}

	if e, _ := doc.Entry("num"); e.Kind != KindRule || e.Spec != `[1-9]\d*` {
		t.Errorf("num entry = %+v", e)
	}

	if _, ok := doc.Entry("__range"); ok {
		t.Error("directives must not be entries")
	}
	if doc.Directives.Range == nil || doc.Directives.Range.Start != 1 || doc.Directives.Range.Stop != -1 {
		t.Errorf("Range = %+v, want 1,-1", doc.Directives.Range)
	}
	if want := filepath.Join(filepath.Dir(path), "history.yaml"); doc.Directives.LogFile != want {
		t.Errorf("LogFile = %q, want %q", doc.Directives.LogFile, want)
	}
	if doc.Path != path {
		t.Errorf("Path = %q, want %q", doc.Path, path)
	}
}

func TestLoad_TOMLMatchesYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "c.yaml", "all: \"$row\"\nrow: '\\d+'\n_set: [x, y]\n__size:\n  valid: \"10%\"\n  alert: 50\n")
	writeFile(t, dir, "c.toml", "all = \"$row\"\nrow = '\\d+'\n_set = [\"x\", \"y\"]\n[__size]\nvalid = \"10%\"\nalert = 50\n")

	y, err := Load(context.Background(), filepath.Join(dir, "c.yaml"), Options{})
	if err != nil {
		t.Fatalf("Load(yaml) error = %v", err)
	}
	tm, err := Load(context.Background(), filepath.Join(dir, "c.toml"), Options{})
	if err != nil {
		t.Fatalf("Load(toml) error = %v", err)
	}

	if !reflect.DeepEqual(y.Keys(), tm.Keys()) {
		t.Errorf("keys differ: %v vs %v", y.Keys(), tm.Keys())
	}
	for _, key := range y.Keys() {
		a, _ := y.Entry(key)
		b, _ := tm.Entry(key)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("entry %s differs: %+v vs %+v", key, a, b)
		}
	}
	if y.Directives.Size.Alert.String() != "50" || tm.Directives.Size.Alert.String() != "50" {
		t.Errorf("alert = %q / %q, want 50", y.Directives.Size.Alert, tm.Directives.Size.Alert)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(context.Background(), "/nonexistent/config.yaml", Options{SystemDir: t.TempDir()})
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
	if !errors.Is(err, ErrFileNotFound) || !errors.Is(err, ErrConfig) {
		t.Errorf("Load() error = %v, want ErrFileNotFound and ErrConfig", err)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound() = false")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `invalid: yaml: content: [`},
		{"top-level list", "- a\n- b\n"},
		{"scalar set member", "all: x\n_set: [[1]]\n"},
		{"set of wrong type", "all: x\n_set: {a: 1}\n"},
		{"bad range", "all: x\n__range: 'a,b'\n"},
		{"bad size", "all: x\n__size: {valid: 'ten'}\n"},
		{"size not a mapping", "all: x\n__size: 10\n"},
		{"size unknown key", "all: x\n__size: {warn: 10}\n"},
		{"bad include", "all: x\n__include: 5\n"},
		{"empty logfile", "all: x\n__logfile: ''\n"},
		{"bad requires", "all: x\n__requires: 'not a constraint'\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, "invalid.yaml", tt.content)
			_, err := Load(context.Background(), path, Options{})
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !errors.Is(err, ErrConfig) {
				t.Errorf("Load() error = %v, want ErrConfig", err)
			}
		})
	}
}

func TestLoad_EmptyDocument(t *testing.T) {
	path := writeTempFile(t, "empty.yaml", "")
	doc, err := Load(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(doc.Keys()) != 0 {
		t.Errorf("Keys() = %v, want none", doc.Keys())
	}
}

func TestLoad_IncludeOverrideOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "first.yaml", "a: first\nb: first\nc: first\n")
	writeFile(t, dir, "second.yaml", "b: second\nc: second\n")
	writeFile(t, dir, "main.yaml", "__include: [first.yaml, second.yaml]\nc: main\n")

	doc, err := Load(context.Background(), filepath.Join(dir, "main.yaml"), Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := map[string]string{"a": "first", "b": "second", "c": "main"}
	for key, value := range want {
		e, ok := doc.Entry(key)
		if !ok {
			t.Fatalf("Entry(%s) not found", key)
		}
		if e.Spec != value {
			t.Errorf("%s = %v, want %s", key, e.Spec, value)
		}
	}
	if _, ok := doc.Entry(DirectiveInclude); ok {
		t.Error("__include must not survive the merge")
	}
}

func TestLoad_IncludeSingleName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "row: '\\d+'\n")
	writeFile(t, dir, "main.yaml", "__include: base.yaml\nall: $row\n")

	doc, err := Load(context.Background(), filepath.Join(dir, "main.yaml"), Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := doc.Entry("row"); !ok {
		t.Error("included key row missing")
	}
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "__include: b.yaml\nall: x\n")
	writeFile(t, dir, "b.yaml", "__include: a.yaml\n")

	_, err := Load(context.Background(), filepath.Join(dir, "a.yaml"), Options{})
	if err == nil {
		t.Fatal("Load() expected cycle error")
	}
	if !errors.Is(err, ErrCycle) || !errors.Is(err, ErrConfig) {
		t.Errorf("Load() error = %v, want ErrCycle", err)
	}
}

func TestLoad_IncludeDiamond(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.yaml", "shared: x\n")
	writeFile(t, dir, "left.yaml", "__include: common.yaml\nleft: l\n")
	writeFile(t, dir, "right.yaml", "__include: common.yaml\nright: r\n")
	writeFile(t, dir, "main.yaml", "__include: [left.yaml, right.yaml]\nall: $shared\n")

	_, err := Load(context.Background(), filepath.Join(dir, "main.yaml"), Options{})
	if !errors.Is(err, ErrCycle) || !errors.Is(err, ErrConfig) {
		t.Fatalf("Load() error = %v, want ErrCycle", err)
	}
	if !strings.Contains(err.Error(), "common.yaml") {
		t.Errorf("Load() error = %q, want mention of common.yaml", err)
	}
}

func TestLoad_IncludeTwiceInOneList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.yaml", "shared: x\n")
	writeFile(t, dir, "main.yaml", "__include: [common.yaml, ./common.yaml]\nall: $shared\n")

	if _, err := Load(context.Background(), filepath.Join(dir, "main.yaml"), Options{}); !errors.Is(err, ErrCycle) {
		t.Errorf("Load() error = %v, want ErrCycle", err)
	}
}

func TestLoad_SeparateCallsDoNotShareState(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.yaml", "shared: x\n")
	writeFile(t, dir, "main.yaml", "__include: common.yaml\nall: $shared\n")

	for i := range 2 {
		if _, err := Load(context.Background(), filepath.Join(dir, "main.yaml"), Options{}); err != nil {
			t.Fatalf("Load() call %d error = %v", i+1, err)
		}
	}
}

func TestLoad_IncludeFromSearchDir(t *testing.T) {
	lib := t.TempDir()
	writeFile(t, lib, "common.yaml", "shared: x\n")
	dir := t.TempDir()
	writeFile(t, dir, "main.yaml", "__include: common.yaml\nall: $shared\n")

	doc, err := Load(context.Background(), filepath.Join(dir, "main.yaml"), Options{SearchDirs: []string{lib}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := doc.Entry("shared"); !ok {
		t.Error("key from search dir include missing")
	}
}

func TestLoad_SystemDir(t *testing.T) {
	sys := t.TempDir()
	writeFile(t, sys, "site.yaml", "all: x\n")

	doc, err := Load(context.Background(), "site.yaml", Options{SystemDir: sys})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Path != filepath.Join(sys, "site.yaml") {
		t.Errorf("Path = %q", doc.Path)
	}
}

func TestLoad_ExternalList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "codes.txt", "  TW \n\nJP\r\n\xe9t\xe9\n")
	writeFile(t, dir, "main.yaml", "all: x\n_codes: codes.txt\n")

	dec, err := source.NewDecoder(DefaultEncoding)
	if err != nil {
		t.Fatalf("NewDecoder() error = %v", err)
	}
	doc, err := Load(context.Background(), filepath.Join(dir, "main.yaml"), Options{Decoder: dec})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	e, ok := doc.Entry("_codes")
	if !ok {
		t.Fatal("Entry(_codes) not found")
	}
	if e.Kind != KindExternalList || !e.Kind.IsSet() {
		t.Errorf("Kind = %v, want external list", e.Kind)
	}
	if want := []string{"TW", "JP", "été"}; !reflect.DeepEqual(e.Values, want) {
		t.Errorf("Values = %q, want %q", e.Values, want)
	}
	if e.Source != filepath.Join(dir, "codes.txt") {
		t.Errorf("Source = %q", e.Source)
	}
}

func TestLoad_ExternalListMissing(t *testing.T) {
	path := writeTempFile(t, "main.yaml", "all: x\n_codes: missing.txt\n")
	_, err := Load(context.Background(), path, Options{SystemDir: t.TempDir()})
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Load() error = %v, want ErrFileNotFound", err)
	}
}

func TestLoad_URL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/conf/main.yaml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("__include: base.yaml\nall: $row\n_codes: codes.txt\n"))
	})
	mux.HandleFunc("/conf/base.yaml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("row: '\\d+'\n"))
	})
	mux.HandleFunc("/conf/codes.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("A\nB\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	doc, err := Load(context.Background(), srv.URL+"/conf/main.yaml", Options{HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := doc.Entry("row"); !ok {
		t.Error("included key row missing")
	}
	if e, _ := doc.Entry("_codes"); e == nil || len(e.Values) != 2 {
		t.Errorf("_codes = %+v, want 2 values", e)
	}

	_, err = Load(context.Background(), srv.URL+"/conf/missing.yaml", Options{HTTPClient: srv.Client()})
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrFileNotFound", err)
	}
}

func TestLoad_Directives(t *testing.T) {
	content := `
all: x
__range: 3
__size:
  valid: "+5%"
__requires: ">= 0.1.0"
__unknown: whatever
`
	path := writeTempFile(t, "config.yaml", content)
	doc, err := Load(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	d := doc.Directives
	if d.Range == nil || d.Range.Start != 3 || d.Range.HasStop {
		t.Errorf("Range = %+v, want start 3 without stop", d.Range)
	}
	if d.Size == nil || d.Size.Valid.String() != "+5%" || !d.Size.Alert.IsZero() {
		t.Errorf("Size = %+v", d.Size)
	}
	if d.Requires == nil {
		t.Error("Requires not set")
	}
	if d.LogFile != "" {
		t.Errorf("LogFile = %q, want empty", d.LogFile)
	}
}

func TestCheckRequires(t *testing.T) {
	c, err := semver.NewConstraint(">= 1.2.0")
	if err != nil {
		t.Fatalf("NewConstraint() error = %v", err)
	}

	tests := []struct {
		running string
		wantErr bool
	}{
		{"1.2.0", false},
		{"v1.3.1", false},
		{"1.1.9", true},
		{"dev", false},
	}
	for _, tt := range tests {
		t.Run(tt.running, func(t *testing.T) {
			err := checkRequires(c, tt.running)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkRequires(%s) error = %v, wantErr %v", tt.running, err, tt.wantErr)
			}
		})
	}
}

func TestParse(t *testing.T) {
	doc, err := Parse(map[string]any{
		"all":      []any{"$a", "?x"},
		"a":        nil,
		"_set":     []any{1, 2.5, true},
		"__logfil": "typo is ignored",
	})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	e, _ := doc.Entry("_set")
	if want := []string{"1", "2.5", "true"}; !reflect.DeepEqual(e.Values, want) {
		t.Errorf("Values = %v, want %v", e.Values, want)
	}
	if got := len(doc.Entries(KindRule)); got != 2 {
		t.Errorf("Entries(rule) = %d, want 2", got)
	}

	if _, err := Parse(map[string]any{"_list": "file.txt"}); !errors.Is(err, ErrConfig) {
		t.Errorf("Parse() with unloaded list error = %v, want ErrConfig", err)
	}
}

func TestError(t *testing.T) {
	err := Errorf("all", "rule %q is missing", "all")
	if !errors.Is(err, ErrConfig) {
		t.Error("Errorf() result must match ErrConfig")
	}
	if got := err.Error(); got != `all: rule "all" is missing` {
		t.Errorf("Error() = %q", got)
	}

	wrapped := &Error{Path: "/etc/validata/x.yaml", Err: ErrFileNotFound}
	if got := wrapped.Error(); got != "/etc/validata/x.yaml: file not found" {
		t.Errorf("Error() = %q", got)
	}
}

func TestLoadSettings(t *testing.T) {
	t.Setenv(EnvJobs, "4")
	t.Setenv(EnvPath, "/a:/b")
	t.Setenv(EnvReportTimeout, "3s")

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.Jobs != 4 {
		t.Errorf("Jobs = %d, want 4", s.Jobs)
	}
	if want := []string{"/a", "/b"}; !reflect.DeepEqual(s.SearchPath, want) {
		t.Errorf("SearchPath = %v, want %v", s.SearchPath, want)
	}
	if s.ReportTimeout != 3*time.Second {
		t.Errorf("ReportTimeout = %v, want 3s", s.ReportTimeout)
	}
	if s.Encoding != DefaultEncoding {
		t.Errorf("Encoding = %q, want %q", s.Encoding, DefaultEncoding)
	}
	if s.MaxReported != DefaultMaxReported {
		t.Errorf("MaxReported = %d, want %d", s.MaxReported, DefaultMaxReported)
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	t.Setenv(EnvJobs, "0")
	if _, err := LoadSettings(); !errors.Is(err, ErrSettings) {
		t.Errorf("LoadSettings() error = %v, want ErrSettings", err)
	}

	t.Setenv(EnvJobs, "many")
	if _, err := LoadSettings(); !errors.Is(err, ErrSettings) {
		t.Errorf("LoadSettings() error = %v, want ErrSettings", err)
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	return writeFile(t, t.TempDir(), name, content)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}
