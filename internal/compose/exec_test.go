package compose

import (
    "os"
    "path/filepath"
    "testing"
)

func TestGlobalEnvArgs(t *testing.T) {
    t.Parallel()

    write := func(t *testing.T, path string) {
        t.Helper()
        if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
            t.Fatal(err)
        }
        if err := os.WriteFile(path, []byte("A=1\n"), 0644); err != nil {
            t.Fatal(err)
        }
    }

    t.Run("no global.env", func(t *testing.T) {
        t.Parallel()
        dir := t.TempDir()
        // Even with a stack-local .env, no flags are produced: the local
        // flag rides along only when global.env is present.
        write(t, filepath.Join(dir, "web", ".env"))

        if got := GlobalEnvArgs(dir, "web"); got != nil {
            t.Errorf("expected nil args, got %v", got)
        }
    })

    t.Run("global.env only", func(t *testing.T) {
        t.Parallel()
        dir := t.TempDir()
        write(t, filepath.Join(dir, "global.env"))

        got := GlobalEnvArgs(dir, "web")
        want := []string{"--env-file", "../global.env"}
        if len(got) != len(want) {
            t.Fatalf("args = %v, want %v", got, want)
        }
        for i := range want {
            if got[i] != want[i] {
                t.Fatalf("args = %v, want %v", got, want)
            }
        }
    })

    t.Run("global.env plus stack .env", func(t *testing.T) {
        t.Parallel()
        dir := t.TempDir()
        write(t, filepath.Join(dir, "global.env"))
        write(t, filepath.Join(dir, "web", ".env"))

        got := GlobalEnvArgs(dir, "web")
        want := []string{"--env-file", "../global.env", "--env-file", "./.env"}
        if len(got) != len(want) {
            t.Fatalf("args = %v, want %v", got, want)
        }
        for i := range want {
            if got[i] != want[i] {
                t.Fatalf("args = %v, want %v", got, want)
            }
        }
    })
}
