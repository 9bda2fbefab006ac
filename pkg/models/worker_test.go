package models

import "testing"

func TestWorkerState_IsTerminal(t *testing.T) {
	tests := []struct {
		state WorkerState
		want  bool
	}{
		{WorkerSpawning, false},
		{WorkerActive, false},
		{WorkerCompleted, true},
		{WorkerError, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.want {
				t.Errorf("WorkerState(%q).IsTerminal() = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestSandboxPolicy_Narrow(t *testing.T) {
	tests := []struct {
		name     string
		parent   SandboxPolicy
		override SandboxPolicy
		want     SandboxPolicy
		wantErr  bool
	}{
		{"empty override inherits", SandboxWorkspaceWrite, "", SandboxWorkspaceWrite, false},
		{"narrowing allowed", SandboxWorkspaceWrite, SandboxReadOnly, SandboxReadOnly, false},
		{"same level allowed", SandboxReadOnly, SandboxReadOnly, SandboxReadOnly, false},
		{"widening rejected", SandboxReadOnly, SandboxWorkspaceWrite, "", true},
		{"full access from workspace rejected", SandboxWorkspaceWrite, SandboxFullAccess, "", true},
		{"unknown override rejected", SandboxFullAccess, SandboxPolicy("root"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.parent.Narrow(tt.override)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Narrow(%q) from %q succeeded, want error", tt.override, tt.parent)
				}
				return
			}
			if err != nil {
				t.Fatalf("Narrow(%q) from %q: %v", tt.override, tt.parent, err)
			}
			if got != tt.want {
				t.Errorf("Narrow(%q) = %q, want %q", tt.override, got, tt.want)
			}
		})
	}
}

func TestNotificationKind_Valid(t *testing.T) {
	for _, k := range []NotificationKind{NotifyMessage, NotifyQuestion, NotifyCompleted, NotifyError} {
		if !k.Valid() {
			t.Errorf("NotificationKind(%q).Valid() = false, want true", k)
		}
	}
	if NotificationKind("reply").Valid() {
		t.Error("NotificationKind(reply).Valid() = true, want false")
	}
}
