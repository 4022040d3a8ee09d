package main

import (
	"context"
	"testing"
)

func TestRun_exitCodes(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"--help"}, 0},
		{"version", []string{"--version"}, 0},
		{"agent help", []string{"agent", "--help"}, 0},
		{"issue help", []string{"issue", "--help"}, 0},
		{"unknown flag", []string{"--no-such-flag"}, 1},
		{"unknown command", []string{"frobnicate"}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Run(context.Background(), tc.args); got != tc.want {
				t.Errorf("Run(%v) = %d, want %d", tc.args, got, tc.want)
			}
		})
	}
}
