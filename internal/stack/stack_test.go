package stack

import (
    "os"
    "path/filepath"
    "testing"
)

func TestValidateName(t *testing.T) {
    t.Parallel()

    valid := []string{"web", "my-stack", "stack_2", "a"}
    for _, name := range valid {
        if err := ValidateName(name); err != nil {
            t.Errorf("ValidateName(%q) = %v, want nil", name, err)
        }
    }

    invalid := []string{"", "Web", "my stack", "stack/../etc", "stück", "UPPER"}
    for _, name := range invalid {
        if err := ValidateName(name); err == nil {
            t.Errorf("ValidateName(%q) = nil, want error", name)
        }
    }
}

func TestStackValidate(t *testing.T) {
    t.Parallel()

    tests := []struct {
        name    string
        stack   Stack
        wantErr bool
    }{
        {"valid", Stack{Name: "web", ComposeYAML: "services:\n  w:\n    image: nginx\n"}, false},
        {"bad name", Stack{Name: "Web!", ComposeYAML: "services: {}"}, true},
        {"bad yaml", Stack{Name: "web", ComposeYAML: ": not yaml ["}, true},
        {"empty env ok", Stack{Name: "web", ComposeYAML: "services: {}", ComposeENV: ""}, false},
        {"single env line with =", Stack{Name: "web", ComposeYAML: "services: {}", ComposeENV: "KEY=value"}, false},
        {"single env line without =", Stack{Name: "web", ComposeYAML: "services: {}", ComposeENV: "garbage"}, true},
        {"multiline env", Stack{Name: "web", ComposeYAML: "services: {}", ComposeENV: "A=1\nB=2\n"}, false},
    }

    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            err := tt.stack.Validate()
            if (err != nil) != tt.wantErr {
                t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
            }
        })
    }
}

func TestSaveToDiskAddSemantics(t *testing.T) {
    t.Parallel()
    dir := t.TempDir()

    s := &Stack{Name: "web", ComposeYAML: "services:\n  w:\n    image: nginx\n"}

    // isAdd on a fresh name succeeds and creates the directory
    if err := s.SaveToDisk(dir, true); err != nil {
        t.Fatalf("SaveToDisk(isAdd=true) on fresh name: %v", err)
    }
    if _, err := os.Stat(filepath.Join(dir, "web", "compose.yaml")); err != nil {
        t.Fatalf("compose.yaml not written: %v", err)
    }

    // isAdd again on the same name fails
    if err := s.SaveToDisk(dir, true); err == nil {
        t.Error("SaveToDisk(isAdd=true) on existing name should fail")
    }

    // plain save on the existing name succeeds
    s.ComposeYAML = "services:\n  w:\n    image: nginx:alpine\n"
    if err := s.SaveToDisk(dir, false); err != nil {
        t.Fatalf("SaveToDisk(isAdd=false) on existing name: %v", err)
    }

    // plain save on a name that was never added fails
    missing := &Stack{Name: "ghost", ComposeYAML: "services: {}"}
    if err := missing.SaveToDisk(dir, false); err == nil {
        t.Error("SaveToDisk(isAdd=false) on missing directory should fail")
    }
}

func TestSaveToDiskEnvHandling(t *testing.T) {
    t.Parallel()
    dir := t.TempDir()

    s := &Stack{Name: "web", ComposeYAML: "services: {}", ComposeENV: "A=1\n"}
    if err := s.SaveToDisk(dir, true); err != nil {
        t.Fatal(err)
    }
    envPath := filepath.Join(dir, "web", ".env")
    if _, err := os.Stat(envPath); err != nil {
        t.Fatalf(".env not written: %v", err)
    }

    // Emptying the env truncates the existing file rather than dropping it
    s.ComposeENV = ""
    if err := s.SaveToDisk(dir, false); err != nil {
        t.Fatal(err)
    }
    data, err := os.ReadFile(envPath)
    if err != nil {
        t.Fatalf(".env should still exist: %v", err)
    }
    if len(data) != 0 {
        t.Errorf(".env should be empty, got %q", data)
    }
}

func TestStatusConvert(t *testing.T) {
    t.Parallel()

    cases := map[string]int{
        "running(2)":            RUNNING,
        "running(2), exited(1)": EXITED,
        "exited(2)":             EXITED,
        "created(1)":            CREATED_STACK,
        "weird":                 UNKNOWN,
        "":                      UNKNOWN,
    }
    for in, want := range cases {
        if got := StatusConvert(in); got != want {
            t.Errorf("StatusConvert(%q) = %d, want %d", in, got, want)
        }
    }
}

func writeStackDir(t *testing.T, root, name, composeFile string) {
    t.Helper()
    dir := filepath.Join(root, name)
    if err := os.MkdirAll(dir, 0755); err != nil {
        t.Fatal(err)
    }
    if composeFile != "" {
        if err := os.WriteFile(filepath.Join(dir, composeFile), []byte("services: {}"), 0644); err != nil {
            t.Fatal(err)
        }
    }
}

func TestGetStackListDiscovery(t *testing.T) {
    t.Parallel()
    root := t.TempDir()

    writeStackDir(t, root, "alpha", "compose.yaml")
    writeStackDir(t, root, "beta", "docker-compose.yml")
    writeStackDir(t, root, "no-compose", "") // directory without a compose file

    composeLs := []byte(`[
        {"Name": "alpha", "Status": "running(2)", "ConfigFiles": "/opt/stacks/alpha/compose.yaml"},
        {"Name": "external", "Status": "exited(1)", "ConfigFiles": "/somewhere/compose.yaml"},
        {"Name": "dockru", "Status": "running(1)", "ConfigFiles": "/app/compose.yaml"}
    ]`)

    stacks := GetStackList(root, composeLs)

    if s := stacks["alpha"]; s == nil || s.Status != RUNNING || !s.IsManagedByDockru {
        t.Errorf("alpha = %+v, want managed RUNNING", s)
    }
    if s := stacks["beta"]; s == nil || s.Status != CREATED_FILE {
        t.Errorf("beta = %+v, want managed CREATED_FILE", s)
    }
    if _, ok := stacks["no-compose"]; ok {
        t.Error("directory without a compose file must not appear")
    }
    if s := stacks["external"]; s == nil || s.IsManagedByDockru || s.Status != EXITED {
        t.Errorf("external = %+v, want unmanaged EXITED", s)
    }
    if _, ok := stacks["dockru"]; ok {
        t.Error("unmanaged dockru project must never appear in the list")
    }
}

func TestGetStackListFromContainers(t *testing.T) {
    t.Parallel()
    root := t.TempDir()

    writeStackDir(t, root, "alpha", "compose.yaml")

    containers := []ContainerInfo{
        {Name: "alpha-web-1", Project: "alpha", Service: "web", State: "running"},
        {Name: "alpha-db-1", Project: "alpha", Service: "db", State: "exited"},
        {Name: "other-svc-1", Project: "other", Service: "svc", State: "running"},
    }

    stacks := GetStackListFromContainers(root, containers)

    // Any exited container marks the stack EXITED
    if s := stacks["alpha"]; s == nil || s.Status != EXITED {
        t.Errorf("alpha = %+v, want EXITED", s)
    }
    if s := stacks["other"]; s == nil || s.IsManagedByDockru {
        t.Errorf("other = %+v, want unmanaged", s)
    }
}

func TestToSimpleJSON(t *testing.T) {
    t.Parallel()

    s := &Stack{Name: "web", Status: RUNNING, IsManagedByDockru: true, ComposeFileName: "compose.yaml"}
    obj := s.ToSimpleJSON("peer:5001", false)
    if obj["name"] != "web" {
        t.Errorf("name = %v", obj["name"])
    }
    if obj["endpoint"] != "peer:5001" {
        t.Errorf("endpoint = %v", obj["endpoint"])
    }
    if obj["status"] != RUNNING {
        t.Errorf("status = %v", obj["status"])
    }
}
