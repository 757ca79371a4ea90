package models

import "testing"

func TestStageTaskFromEvent(t *testing.T) {
	task := StageTask{RunID: "r1", Stage: "classify", InputDir: "in", OutputDir: "out", File: "1.json"}
	got, ok := StageTaskFromEvent(Event{Type: "task", Data: task.Map()})
	if !ok {
		t.Fatal("expected task to decode")
	}
	if got != task {
		t.Fatalf("unexpected task %+v", got)
	}

	if _, ok := StageTaskFromEvent(Event{Data: map[string]interface{}{"stage": "classify"}}); ok {
		t.Fatal("expected incomplete task to be rejected")
	}
}

func TestStageEventData(t *testing.T) {
	ev := StageEvent{RunID: "r1", Stage: "audit", RecordID: "7", File: "7.json", OutputDir: "audited", Labels: 3}
	if ev.Type() != "record.audit" {
		t.Fatalf("unexpected event type %q", ev.Type())
	}
	data := ev.Map()
	if data["record_id"] != "7" || data["labels"] != 3 || data["output_dir"] != "audited" {
		t.Fatalf("unexpected event data %v", data)
	}
}
