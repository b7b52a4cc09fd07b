package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sundayezeilo/tips/internal/tips"
)

type fakeStore struct {
	mu       sync.Mutex
	calls    []string
	tips     map[string][]tips.Tip
	failConn string
}

func (f *fakeStore) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeStore) Migrate(ctx context.Context) error {
	f.record("migrate")
	return nil
}

func (f *fakeStore) ApproveTip(ctx context.Context, tipID int64, approved bool) error {
	if approved {
		f.record("approve")
	} else {
		f.record("unapprove")
	}
	return nil
}

func (f *fakeStore) DeleteTip(ctx context.Context, tipID int64) error {
	f.record("delete")
	return nil
}

func (f *fakeStore) RevertEdit(ctx context.Context, tipID int64) error {
	f.record("revert")
	return nil
}

func (f *fakeStore) GetTips(ctx context.Context, ids []string, includeUnapproved bool) ([]tips.Tip, error) {
	f.record("get:" + strings.Join(ids, ","))
	if len(ids) == 1 && ids[0] == f.failConn {
		return nil, errors.New("connection reset")
	}
	found := []tips.Tip{}
	for _, id := range ids {
		for _, tip := range f.tips[id] {
			if tip.Approved || includeUnapproved {
				found = append(found, tip)
			}
		}
	}
	return found, nil
}

func (f *fakeStore) GetUnapprovedTips(ctx context.Context) ([]tips.Tip, error) {
	f.record("pending")
	return []tips.Tip{{TipID: 3, ConnectionID: "a", Body: "waiting"}}, nil
}

func TestRun_Moderation(t *testing.T) {
	tests := []struct {
		args     []string
		wantCall string
	}{
		{[]string{"approve", "-id", "4"}, "approve"},
		{[]string{"reject", "-id", "4"}, "unapprove"},
		{[]string{"delete", "-id", "4"}, "delete"},
		{[]string{"revert", "-id", "4"}, "revert"},
		{[]string{"migrate"}, "migrate"},
	}

	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			store := &fakeStore{}
			var out bytes.Buffer

			if err := run(context.Background(), store, tt.args, &out); err != nil {
				t.Fatalf("run() error = %v", err)
			}
			if len(store.calls) != 1 || store.calls[0] != tt.wantCall {
				t.Errorf("expected call %q, got %v", tt.wantCall, store.calls)
			}
		})
	}
}

func TestRun_BadArguments(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantUsage bool
	}{
		{"no command", nil, true},
		{"unknown command", []string{"purge"}, true},
		{"missing id", []string{"approve"}, false},
		{"negative id", []string{"delete", "-id", "-2"}, false},
		{"non-numeric id", []string{"revert", "-id", "x"}, false},
		{"list without conn", []string{"list"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}

			err := run(context.Background(), store, tt.args, &bytes.Buffer{})

			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if errors.Is(err, errUsage) != tt.wantUsage {
				t.Errorf("usage error = %v, want %v (%v)", errors.Is(err, errUsage), tt.wantUsage, err)
			}
			if len(store.calls) != 0 {
				t.Errorf("store should not be called, got %v", store.calls)
			}
		})
	}
}

func TestRun_List(t *testing.T) {
	store := &fakeStore{tips: map[string][]tips.Tip{
		"a": {{TipID: 1, ConnectionID: "a", Approved: true}, {TipID: 2, ConnectionID: "a"}},
		"b": {{TipID: 5, ConnectionID: "b", Approved: true}},
	}}
	var out bytes.Buffer

	if err := run(context.Background(), store, []string{"list", "-conn", "a, b,a", "-all"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var got map[string][]tips.Tip
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if len(got["a"]) != 2 || len(got["b"]) != 1 {
		t.Errorf("unexpected listing %+v", got)
	}
	if len(store.calls) != 2 {
		t.Errorf("expected one query per distinct connection, got %v", store.calls)
	}
}

func TestRun_ListFailure(t *testing.T) {
	store := &fakeStore{failConn: "b"}

	err := run(context.Background(), store, []string{"list", "-conn", "a,b"}, &bytes.Buffer{})

	if err == nil || !strings.Contains(err.Error(), "list b") {
		t.Errorf("expected failure naming connection b, got %v", err)
	}
}

func TestRun_Pending(t *testing.T) {
	var out bytes.Buffer

	if err := run(context.Background(), &fakeStore{}, []string{"pending"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var got []tips.Tip
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(got) != 1 || got[0].TipID != 3 {
		t.Errorf("unexpected pending output %+v", got)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStderr string
	}{
		{"success", nil, 0, ""},
		{"usage", errUsage, 2, "usage: tipsctl"},
		{"store failure", errors.New("connection reset"), 1, "tipsctl: connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer

			if got := exitCode(tt.err, &stderr); got != tt.wantCode {
				t.Errorf("exitCode() = %d, want %d", got, tt.wantCode)
			}
			if !strings.Contains(stderr.String(), tt.wantStderr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.wantStderr)
			}
			if tt.err == nil && stderr.Len() != 0 {
				t.Errorf("stderr = %q, want empty", stderr.String())
			}
		})
	}
}
