package storage

import (
	"encoding/json"
	"testing"

	"taskdesk-api/domain"
)

func TestDecodeTaskEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"t1","RowKey":"t1","Title":"Ship it","State":"pending_review","AssigneeID":42,"ManagerID":7,"Deleted":false}`)
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		t.Fatalf("decode: %v", err)
	}
	task := ent.toTask()
	if task.ID != "t1" || task.Title != "Ship it" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.State != domain.StatePendingReview || task.AssigneeID != 42 || task.ManagerID != 7 {
		t.Fatalf("unexpected task fields: %+v", task)
	}
}

func TestApplyPayloadClearsDeadline(t *testing.T) {
	deadline := "2026-09-01T12:00:00Z"
	ent := taskEntity{Title: "Task", State: "assigned", DeadlineAt: &deadline}

	var p domain.TaskPayload
	p.MarkSet(domain.FieldDeadlineAt)
	applyPayload(&ent, p)

	if ent.DeadlineAt != nil {
		t.Fatalf("explicit null deadline must clear the stored value")
	}
	if ent.Title != "Task" || ent.State != "assigned" {
		t.Fatalf("untouched fields must survive: %+v", ent)
	}
}

func TestApplyPayloadLeavesAbsentKeysAlone(t *testing.T) {
	desc := "details"
	ent := taskEntity{Title: "Task", State: "assigned", Description: &desc}

	title := "Renamed"
	p := domain.TaskPayload{Title: &title}
	applyPayload(&ent, p)

	if ent.Title != "Renamed" {
		t.Fatalf("title not applied: %+v", ent)
	}
	if ent.Description == nil || *ent.Description != "details" {
		t.Fatalf("absent description key must not modify the row")
	}
}

func TestPartitionFilter(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"t1", "PartitionKey eq 't1'"},
		{"o'brien", "PartitionKey eq 'o''brien'"},
		{"a''b", "PartitionKey eq 'a''''b'"},
	}
	for _, tc := range cases {
		if got := partitionFilter(tc.key); got != tc.want {
			t.Fatalf("partitionFilter(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}

func TestDecodeLinkEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"t1","RowKey":"l1","URL":"https://example.com","CreatedBy":9}`)
	var ent linkEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		t.Fatalf("decode: %v", err)
	}
	link := ent.toLink()
	if link.ID != "l1" || link.TaskID != "t1" || link.URL != "https://example.com" || link.CreatedBy != 9 {
		t.Fatalf("unexpected link: %+v", link)
	}
}
