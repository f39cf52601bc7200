package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AaronLay10/Haeccstable/internal/dossier"
	"github.com/AaronLay10/Haeccstable/internal/logging"
	"github.com/AaronLay10/Haeccstable/internal/model"
)

func TestMain(m *testing.M) {
	logging.ConfigureTests()
	os.Exit(m.Run())
}

func newManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dossier.json")
	return New(dossier.Open(path, "")), path
}

func TestSetVariableWritesThrough(t *testing.T) {
	m, path := newManager(t)

	v := model.NewVariable("cam", model.VarVideoIn, model.DeviceValue(0))
	if err := m.SetVariable(v); err != nil {
		t.Fatalf("SetVariable failed: %v", err)
	}

	doc, err := dossier.LoadDocument(path)
	if err != nil {
		t.Fatalf("failed to load dossier: %v", err)
	}
	got, ok := doc.Variables["cam"]
	if !ok {
		t.Fatal("expected cam in dossier")
	}
	if got.Value.Kind != model.KindDevice || got.Value.Device != 0 {
		t.Errorf("expected device reference 0, got %v", got.Value)
	}
}

func TestSetVariableRejectsReservedTypes(t *testing.T) {
	m, _ := newManager(t)
	for _, typ := range []model.VarType{model.VarWindow, model.VarLayer} {
		err := m.SetVariable(model.NewVariable("x", typ, model.StringValue("x")))
		if !errors.Is(err, ErrReservedType) {
			t.Errorf("%s: expected ErrReservedType, got %v", typ, err)
		}
	}
	if err := m.SetVariable(model.NewVariable("x", "pixel", model.NullValue())); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unknown type, got %v", err)
	}
}

func TestVariableCountMatchesDeclarations(t *testing.T) {
	m, _ := newManager(t)
	const n = 12
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("v%d", i)
		if err := m.SetVariable(model.NewVariable(name, model.VarNumber, model.NumberValue(float64(i)))); err != nil {
			t.Fatalf("SetVariable(%s) failed: %v", name, err)
		}
	}
	if got := m.StateSummary(false).Variables.Count; got != n {
		t.Errorf("expected %d variables, got %d", n, got)
	}
}

func TestRemoveVariableNotFound(t *testing.T) {
	m, _ := newManager(t)
	if err := m.RemoveVariable("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWindowAndLayerVariablesStayInSync(t *testing.T) {
	m, _ := newManager(t)

	if err := m.CreateWindow(model.NewWindow("w", "", 800, 600)); err != nil {
		t.Fatalf("CreateWindow failed: %v", err)
	}
	if err := m.CreateLayer(model.NewLayer("a", 1920, 1080)); err != nil {
		t.Fatalf("CreateLayer failed: %v", err)
	}

	v, ok := m.GetVariable("w")
	if !ok || v.Type != model.VarWindow {
		t.Fatalf("expected window variable, got %+v", v)
	}
	w, _ := m.GetWindow("w")
	if w.Title != "w" {
		t.Errorf("expected default title 'w', got %q", w.Title)
	}

	if err := m.WindowProjectLayer("w", "a", 1); err != nil {
		t.Fatalf("project failed: %v", err)
	}

	// redeclaring the layer name as a number drops the layer everywhere
	if err := m.SetVariable(model.NewVariable("a", model.VarNumber, model.NumberValue(3))); err != nil {
		t.Fatalf("SetVariable failed: %v", err)
	}
	if _, ok := m.GetLayer("a"); ok {
		t.Error("expected layer a to be removed")
	}
	w, _ = m.GetWindow("w")
	if len(w.LayerStack) != 0 {
		t.Errorf("expected empty stack, got %v", w.LayerNames())
	}

	if err := m.RemoveVariable("w"); err != nil {
		t.Fatalf("RemoveVariable failed: %v", err)
	}
	if _, ok := m.GetWindow("w"); ok {
		t.Error("expected window w to be removed with its variable")
	}
}

func TestRemoveWindowRemovesVariable(t *testing.T) {
	m, path := newManager(t)
	if err := m.CreateWindow(model.NewWindow("main", "Main", 1920, 1080)); err != nil {
		t.Fatalf("CreateWindow failed: %v", err)
	}
	if err := m.RemoveWindow("main"); err != nil {
		t.Fatalf("RemoveWindow failed: %v", err)
	}
	if _, ok := m.GetVariable("main"); ok {
		t.Error("expected variable main to be removed")
	}
	doc, _ := dossier.LoadDocument(path)
	if _, ok := doc.Variables["main"]; ok {
		t.Error("expected variable main to be removed from dossier")
	}
	if err := m.RemoveWindow("main"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestLayerStackOrder(t *testing.T) {
	m, _ := newManager(t)
	m.CreateWindow(model.NewWindow("w", "", 1920, 1080))
	m.CreateLayer(model.NewLayer("a", 1920, 1080))
	m.CreateLayer(model.NewLayer("b", 1920, 1080))

	if err := m.WindowProjectLayer("w", "a", 5); err != nil {
		t.Fatalf("project a failed: %v", err)
	}
	if err := m.WindowProjectLayer("w", "b", 1); err != nil {
		t.Fatalf("project b failed: %v", err)
	}

	w, _ := m.GetWindow("w")
	if got := strings.Join(w.LayerNames(), ","); got != "b,a" {
		t.Errorf("expected stack b,a, got %s", got)
	}

	if err := m.WindowSetLayerPriority("w", "b", 10); err != nil {
		t.Fatalf("priority failed: %v", err)
	}
	w, _ = m.GetWindow("w")
	if got := strings.Join(w.LayerNames(), ","); got != "a,b" {
		t.Errorf("expected stack a,b after reprioritizing, got %s", got)
	}

	// projecting again moves instead of duplicating
	if err := m.WindowProjectLayer("w", "b", 0); err != nil {
		t.Fatalf("reproject failed: %v", err)
	}
	w, _ = m.GetWindow("w")
	if got := strings.Join(w.LayerNames(), ","); got != "b,a" {
		t.Errorf("expected stack b,a after reproject, got %s", got)
	}
}

func TestWindowLayerOverrides(t *testing.T) {
	m, _ := newManager(t)
	m.CreateWindow(model.NewWindow("w", "", 1920, 1080))
	m.CreateLayer(model.NewLayer("a", 1920, 1080))

	if err := m.WindowSetLayerOpacity("w", "a", 0.5); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unprojected layer, got %v", err)
	}
	m.WindowProjectLayer("w", "a", 0)

	if err := m.WindowSetLayerOpacity("w", "a", 1.5); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for opacity 1.5, got %v", err)
	}
	if err := m.WindowSetLayerOpacity("w", "a", 0.25); err != nil {
		t.Fatalf("opacity failed: %v", err)
	}
	if err := m.WindowSetLayerPosition("w", "a", model.Vec2{10, 20}); err != nil {
		t.Fatalf("position failed: %v", err)
	}
	if err := m.WindowSetLayerScale("w", "a", model.Vec2{2, 2}); err != nil {
		t.Fatalf("scale failed: %v", err)
	}

	w, _ := m.GetWindow("w")
	wl := w.LayerStack[0]
	if wl.Opacity == nil || *wl.Opacity != 0.25 {
		t.Errorf("expected opacity 0.25, got %v", wl.Opacity)
	}
	if wl.Position == nil || *wl.Position != (model.Vec2{10, 20}) {
		t.Errorf("expected position (10,20), got %v", wl.Position)
	}
	if wl.Scale == nil || *wl.Scale != (model.Vec2{2, 2}) {
		t.Errorf("expected scale (2,2), got %v", wl.Scale)
	}

	if err := m.WindowRemoveLayer("w", "a"); err != nil {
		t.Fatalf("layerremove failed: %v", err)
	}
	if err := m.WindowRemoveLayer("w", "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound removing twice, got %v", err)
	}
	if err := m.WindowProjectLayer("nowhere", "a", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing window, got %v", err)
	}
}

func TestRemoveLayerDropsFromStacks(t *testing.T) {
	m, _ := newManager(t)
	m.CreateWindow(model.NewWindow("w1", "", 1920, 1080))
	m.CreateWindow(model.NewWindow("w2", "", 1920, 1080))
	m.CreateLayer(model.NewLayer("a", 1920, 1080))
	m.WindowProjectLayer("w1", "a", 1)
	m.WindowProjectLayer("w2", "a", 2)

	if err := m.RemoveLayer("a"); err != nil {
		t.Fatalf("RemoveLayer failed: %v", err)
	}
	for _, name := range []string{"w1", "w2"} {
		w, _ := m.GetWindow(name)
		if len(w.LayerStack) != 0 {
			t.Errorf("%s: expected empty stack, got %v", name, w.LayerNames())
		}
	}
	if _, ok := m.GetVariable("a"); ok {
		t.Error("expected layer variable to be removed")
	}
}

func TestLayerSource(t *testing.T) {
	m, _ := newManager(t)
	m.CreateLayer(model.NewLayer("l", 1920, 1080))
	m.SetVariable(model.NewVariable("cam", model.VarVideoIn, model.DeviceValue(0)))
	m.SetVariable(model.NewVariable("n", model.VarNumber, model.NumberValue(1)))

	n := "n"
	if err := m.SetLayerSource("l", &n); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument casting a number, got %v", err)
	}
	cam := "cam"
	if err := m.SetLayerSource("l", &cam); err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	l, _ := m.GetLayer("l")
	if l.Source == nil || *l.Source != "cam" {
		t.Fatalf("expected source cam, got %v", l.Source)
	}

	if err := m.RemoveVariable("cam"); err != nil {
		t.Fatalf("RemoveVariable failed: %v", err)
	}
	l, _ = m.GetLayer("l")
	if l.Source != nil {
		t.Errorf("expected source cleared after removing cam, got %q", *l.Source)
	}
}

func TestUpdateLayerDefaults(t *testing.T) {
	m, _ := newManager(t)
	m.CreateLayer(model.NewLayer("l", 1920, 1080))

	bad := 2.0
	if err := m.UpdateLayerDefaults("l", model.LayerDefaults{Opacity: &bad}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	o := 0.3
	pos := model.Vec2{5, 6}
	if err := m.UpdateLayerDefaults("l", model.LayerDefaults{Opacity: &o, Position: &pos}); err != nil {
		t.Fatalf("UpdateLayerDefaults failed: %v", err)
	}
	l, _ := m.GetLayer("l")
	if l.DefaultOpacity != 0.3 || l.DefaultPosition != pos || l.DefaultScale != (model.Vec2{1, 1}) {
		t.Errorf("unexpected defaults %+v", l)
	}
	if err := m.UpdateLayerDefaults("missing", model.LayerDefaults{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProcessInstances(t *testing.T) {
	m, _ := newManager(t)
	if _, err := m.DefineProcess(model.NewProcess("$sobel", []string{"video", "threshold"}, nil)); err != nil {
		t.Fatalf("DefineProcess failed: %v", err)
	}
	p, ok := m.GetProcess("$sobel")
	if !ok || p.Name != "sobel" {
		t.Fatalf("expected process sobel, got %+v", p)
	}

	m.StartProcessInstance("sobel", model.ProcessInstance{ID: "i1", Status: model.ProcessRunning})
	m.StartProcessInstance("sobel", model.ProcessInstance{ID: "i2", Status: model.ProcessRunning})
	p, _ = m.GetProcess("sobel")
	if p.Status != model.ProcessRunning || p.RunningCount() != 2 {
		t.Errorf("expected 2 running instances, got status %s count %d", p.Status, p.RunningCount())
	}
	if ids := m.RunningInstances(); len(ids) != 2 {
		t.Errorf("expected 2 running instance ids, got %v", ids)
	}

	stopped, err := m.StopProcessInstances("sobel", "i1")
	if err != nil || len(stopped) != 1 {
		t.Fatalf("expected one stopped instance, got %v, %v", stopped, err)
	}
	p, _ = m.GetProcess("sobel")
	if p.Status != model.ProcessRunning {
		t.Errorf("expected process still running, got %s", p.Status)
	}

	stopped, _ = m.StopProcessInstances("sobel", "")
	if len(stopped) != 1 || stopped[0] != "i2" {
		t.Errorf("expected i2 stopped, got %v", stopped)
	}
	p, _ = m.GetProcess("sobel")
	if p.Status != model.ProcessStopped {
		t.Errorf("expected stopped, got %s", p.Status)
	}

	if _, err := m.StopProcessInstances("sobel", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown instance, got %v", err)
	}
	if err := m.UpdateProcessStatus("sobel", "exploded"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for bad status, got %v", err)
	}
}

func TestFailedInstanceMarksProcessErrored(t *testing.T) {
	m, _ := newManager(t)
	body := "video"
	m.DefineProcess(model.NewProcess("$mine", []string{"video"}, &body))
	m.StartProcessInstance("mine", model.ProcessInstance{ID: "x", Status: model.ProcessError})
	p, _ := m.GetProcess("mine")
	if p.Status != model.ProcessError {
		t.Errorf("expected error status, got %s", p.Status)
	}
}

func TestRedefineProcessStopsRunningInstances(t *testing.T) {
	m, _ := newManager(t)
	m.DefineProcess(model.NewProcess("$sobel", []string{"video", "threshold"}, nil))
	m.StartProcessInstance("sobel", model.ProcessInstance{ID: "i1", Status: model.ProcessRunning})

	body := "video"
	stopped, err := m.DefineProcess(model.NewProcess("$sobel", []string{"video"}, &body))
	if err != nil {
		t.Fatalf("DefineProcess failed: %v", err)
	}
	if len(stopped) != 1 || stopped[0] != "i1" {
		t.Fatalf("expected i1 stopped, got %v", stopped)
	}
	p, _ := m.GetProcess("sobel")
	if p.RunningCount() != 0 || len(p.Instances) != 1 {
		t.Errorf("expected one stopped instance in history, got %+v", p.Instances)
	}
	if p.Status != model.ProcessDefined {
		t.Errorf("expected defined status, got %s", p.Status)
	}
	if ids := m.RunningInstances(); len(ids) != 0 {
		t.Errorf("expected no running instances, got %v", ids)
	}
}

func TestEnsureBuiltinKeepsExistingDefinition(t *testing.T) {
	m, _ := newManager(t)
	p, err := m.EnsureBuiltin("sobel", []string{"video", "threshold"})
	if err != nil {
		t.Fatalf("EnsureBuiltin failed: %v", err)
	}
	if !p.IsBuiltin() || len(p.Parameters) != 2 {
		t.Errorf("expected builtin sobel with 2 parameters, got %+v", p)
	}
	m.StartProcessInstance("sobel", model.ProcessInstance{ID: "i1", Status: model.ProcessRunning})

	p, err = m.EnsureBuiltin("$sobel", []string{"video", "threshold"})
	if err != nil {
		t.Fatalf("EnsureBuiltin failed: %v", err)
	}
	if p.RunningCount() != 1 {
		t.Errorf("expected running instance to survive, got %+v", p.Instances)
	}
	if ids := m.RunningInstances(); len(ids) != 1 || ids[0] != "i1" {
		t.Errorf("expected i1 still running, got %v", ids)
	}
}

func TestFunctions(t *testing.T) {
	m, _ := newManager(t)
	if err := m.DefineFunction(model.NewFunction("f", []string{"x", "x"}, "x")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for duplicate parameter, got %v", err)
	}
	if err := m.DefineFunction(model.NewFunction("ratio", []string{"x", "y"}, "x / y")); err != nil {
		t.Fatalf("DefineFunction failed: %v", err)
	}
	f, ok := m.GetFunction("ratio")
	if !ok || f.Body != "x / y" {
		t.Errorf("expected body verbatim, got %+v", f)
	}
	if err := m.RemoveFunction("ratio"); err != nil {
		t.Fatalf("RemoveFunction failed: %v", err)
	}
	if err := m.RemoveFunction("ratio"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPruneEngineDevices(t *testing.T) {
	m, path := newManager(t)
	m.RegisterDevice(model.Device{ID: 0, Kind: "video", EngineID: "e1", Connected: true})
	m.RegisterDevice(model.Device{ID: 1, Kind: "audio", EngineID: "e1", Connected: true})
	m.RegisterDevice(model.Device{ID: 2, Kind: "midi", EngineID: "e2", Connected: true})

	if n := m.PruneEngineDevices("e1", []string{"video0"}); n != 1 {
		t.Fatalf("expected 1 device removed, got %d", n)
	}
	if n := m.PruneEngineDevices("e1", []string{"video0"}); n != 0 {
		t.Errorf("expected nothing left to remove, got %d", n)
	}

	doc, err := dossier.LoadDocument(path)
	if err != nil {
		t.Fatalf("failed to load dossier: %v", err)
	}
	if _, ok := doc.Devices["audio1"]; ok {
		t.Error("expected audio1 removed from disk")
	}
	if len(doc.Devices) != 2 {
		t.Errorf("expected video0 and midi2 on disk, got %d devices", len(doc.Devices))
	}
	if got := len(m.Devices()); got != 2 {
		t.Errorf("expected 2 devices in memory, got %d", got)
	}
}

func TestResetAllKeepsDevices(t *testing.T) {
	m, path := newManager(t)
	m.SetVariable(model.NewVariable("n", model.VarNumber, model.NumberValue(1)))
	m.DefineFunction(model.NewFunction("f", nil, "1"))
	m.DefineProcess(model.NewProcess("$sobel", []string{"video", "threshold"}, nil))
	m.CreateLayer(model.NewLayer("l", 1920, 1080))
	m.CreateWindow(model.NewWindow("w", "", 1920, 1080))
	m.RegisterDevice(model.Device{ID: 0, Kind: "video", Direction: "in", EngineID: "e1", Connected: true})

	m.ResetAll()

	s := m.StateSummary(false)
	if s.Total() != 0 {
		t.Errorf("expected all collections empty, got %+v", s)
	}
	if s.Devices.Count != 1 {
		t.Errorf("expected device to survive reset, got %d", s.Devices.Count)
	}

	doc, err := dossier.LoadDocument(path)
	if err != nil {
		t.Fatalf("failed to load dossier: %v", err)
	}
	if len(doc.Variables)+len(doc.Functions)+len(doc.Processes)+len(doc.Layers)+len(doc.Windows) != 0 {
		t.Error("expected empty collections on disk")
	}
	if _, ok := doc.Devices["video0"]; !ok {
		t.Error("expected video0 on disk after reset")
	}
}

func TestSetEngineConnected(t *testing.T) {
	m, _ := newManager(t)
	m.RegisterDevice(model.Device{ID: 0, Kind: "video", EngineID: "e1", Connected: true})
	m.RegisterDevice(model.Device{ID: 1, Kind: "audio", EngineID: "e1", Connected: true})
	m.RegisterDevice(model.Device{ID: 0, Kind: "audio", EngineID: "e2", Connected: true})

	if n := m.SetEngineConnected("e1", false); n != 2 {
		t.Errorf("expected 2 devices changed, got %d", n)
	}
	if n := m.SetEngineConnected("e1", false); n != 0 {
		t.Errorf("expected no change on repeat, got %d", n)
	}
	for _, d := range m.Devices() {
		if d.EngineID == "e2" && !d.Connected {
			t.Error("expected e2 device untouched")
		}
	}
}

func TestStateSummaryVerbose(t *testing.T) {
	m, _ := newManager(t)
	m.SetVariable(model.NewVariable("b", model.VarNumber, model.NumberValue(1)))
	m.SetVariable(model.NewVariable("a", model.VarNumber, model.NumberValue(2)))

	s := m.StateSummary(true)
	if strings.Join(s.Variables.Names, ",") != "a,b" {
		t.Errorf("expected sorted names a,b, got %v", s.Variables.Names)
	}
	if m.StateSummary(false).Variables.Names != nil {
		t.Error("expected no names without verbose")
	}
}
