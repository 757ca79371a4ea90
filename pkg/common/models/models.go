package models

import "time"

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // record.classify, record.retrieve, record.select, record.audit, task
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// StageTask asks a worker to run one stage over one record file.
type StageTask struct {
	RunID     string `json:"run_id"`
	Stage     string `json:"stage"`
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir"`
	File      string `json:"file"`
}

// Map renders the task as event data.
func (t StageTask) Map() map[string]interface{} {
	return map[string]interface{}{
		"run_id":     t.RunID,
		"stage":      t.Stage,
		"input_dir":  t.InputDir,
		"output_dir": t.OutputDir,
		"file":       t.File,
	}
}

// StageTaskFromEvent reads a task back out of event data.
func StageTaskFromEvent(event Event) (StageTask, bool) {
	task := StageTask{
		RunID:     stringField(event.Data, "run_id"),
		Stage:     stringField(event.Data, "stage"),
		InputDir:  stringField(event.Data, "input_dir"),
		OutputDir: stringField(event.Data, "output_dir"),
		File:      stringField(event.Data, "file"),
	}
	if task.Stage == "" || task.InputDir == "" || task.OutputDir == "" || task.File == "" {
		return StageTask{}, false
	}
	return task, true
}

// StageEvent reports one record finishing a stage.
type StageEvent struct {
	RunID     string `json:"run_id"`
	Stage     string `json:"stage"`
	RecordID  string `json:"record_id"`
	File      string `json:"file"`
	OutputDir string `json:"output_dir"`
	Labels    int    `json:"labels"`
}

// Type is the event type the stage event is published under.
func (e StageEvent) Type() string {
	return "record." + e.Stage
}

func (e StageEvent) Map() map[string]interface{} {
	return map[string]interface{}{
		"run_id":     e.RunID,
		"stage":      e.Stage,
		"record_id":  e.RecordID,
		"file":       e.File,
		"output_dir": e.OutputDir,
		"labels":     e.Labels,
	}
}

func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
