package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPipelineYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "stepforge.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing stepforge.yaml: %v", err)
	}
	return path
}

// withConfig points the CLI at cfgPath and captures its output.
func withConfig(t *testing.T, cfgPath string) (out, errOut *bytes.Buffer) {
	t.Helper()
	oldCfg, oldOut, oldErr := cfgFile, stdout, stderr
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	cfgFile, stdout, stderr = cfgPath, out, errOut
	t.Cleanup(func() { cfgFile, stdout, stderr = oldCfg, oldOut, oldErr })
	return out, errOut
}
