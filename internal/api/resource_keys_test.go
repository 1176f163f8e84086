package api

import "testing"

func TestResourceKeyManager(t *testing.T) {
	m := NewResourceKeyManager()

	m.AddKey("file2", "key2")
	m.AddKey("file1", "key1")
	m.AddKey("file3", "")

	if key, ok := m.GetKey("file1"); !ok || key != "key1" {
		t.Errorf("GetKey(file1) = %q, %v", key, ok)
	}
	if _, ok := m.GetKey("file3"); ok {
		t.Error("empty resource keys should not be stored")
	}

	if got := m.BuildHeader("file2", "file1", "missing"); got != "file1/key1,file2/key2" {
		t.Errorf("BuildHeader() = %q", got)
	}
	if got := m.BuildHeader("missing"); got != "" {
		t.Errorf("BuildHeader(missing) = %q, want empty", got)
	}
}
