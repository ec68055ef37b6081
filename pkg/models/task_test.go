package models

import "testing"

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"running is valid", TaskStatusRunning, true},
		{"done is valid", TaskStatusDone, true},
		{"failed is valid", TaskStatusFailed, true},
		{"skipped is valid", TaskStatusSkipped, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	terminal := map[TaskStatus]bool{
		TaskStatusPending: false,
		TaskStatusRunning: false,
		TaskStatusDone:    true,
		TaskStatusFailed:  true,
		TaskStatusSkipped: true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("TaskStatus(%q).IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestTask_CloneCopiesDependencies(t *testing.T) {
	orig := &Task{Name: "scripts:js", DependsOn: []string{"scripts:ts"}}
	c := orig.Clone()
	c.DependsOn[0] = "changed"

	if orig.DependsOn[0] != "scripts:ts" {
		t.Errorf("Clone shared DependsOn backing array: got %q", orig.DependsOn[0])
	}
	if c.Name != orig.Name {
		t.Errorf("Clone().Name = %q, want %q", c.Name, orig.Name)
	}
}
