package app

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"empty defaults to serve", []string{}, CommandServe},
		{"nil defaults to serve", nil, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"unknown defaults to serve", []string{"unknown"}, CommandServe},
		{"extra args ignored", []string{"worker", "--flag", "value"}, CommandWorker},
		{"case sensitive", []string{"Worker"}, CommandServe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%q) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseMigrateArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    MigrateArgs
		wantErr bool
	}{
		{"bare migrate applies", []string{"migrate"}, MigrateArgs{}, false},
		{"explicit up", []string{"migrate", "up"}, MigrateArgs{}, false},
		{"down defaults to one step", []string{"migrate", "down"}, MigrateArgs{Down: true, Steps: 1}, false},
		{"down with steps", []string{"migrate", "down", "3"}, MigrateArgs{Down: true, Steps: 3}, false},
		{"zero steps", []string{"migrate", "down", "0"}, MigrateArgs{}, true},
		{"negative steps", []string{"migrate", "down", "-2"}, MigrateArgs{}, true},
		{"non numeric steps", []string{"migrate", "down", "all"}, MigrateArgs{}, true},
		{"too many args", []string{"migrate", "down", "1", "2"}, MigrateArgs{}, true},
		{"up with extra", []string{"migrate", "up", "1"}, MigrateArgs{}, true},
		{"unknown direction", []string{"migrate", "sideways"}, MigrateArgs{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMigrateArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMigrateArgs(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseMigrateArgs(%q) mismatch (-want +got):\n%s", tt.args, diff)
			}
		})
	}
}
