package task

// Controls is the restricted surface handed to a Runner. It exposes only the
// checkpoint protocol and the control/query calls a body legitimately needs;
// runners never see the full *Task and cannot reach into dependency
// management or manager internals. Task variants with extra capabilities
// compose their own interface on top of this one.
type Controls interface {
	// SetProgress reports progress in [0, 1] without yielding.
	SetProgress(progress float64) error

	// Checkpoint yields to a pending pause or cancel request. If the task
	// has been cancelled it returns the cancellation error and the runner
	// must unwind; if paused it blocks until Resume or Cancel.
	Checkpoint() error

	// CheckpointProgress is Checkpoint with a progress update applied
	// first.
	CheckpointProgress(progress float64) error

	// Pause, Resume and Cancel behave exactly like the task-level calls.
	Pause() error
	Resume() error
	Cancel() error

	// IsPauseRequested and IsCancelRequested report pending intent flags.
	IsPauseRequested() bool
	IsCancelRequested() bool
}

type controls struct {
	t *Task
}

func (c controls) SetProgress(progress float64) error { return c.t.SetProgress(progress) }
func (c controls) Checkpoint() error                  { return c.t.checkpoint(0, false) }
func (c controls) CheckpointProgress(progress float64) error {
	return c.t.checkpoint(progress, true)
}
func (c controls) Pause() error            { return c.t.Pause() }
func (c controls) Resume() error           { return c.t.Resume() }
func (c controls) Cancel() error           { return c.t.Cancel() }
func (c controls) IsPauseRequested() bool  { return c.t.IsPauseRequested() }
func (c controls) IsCancelRequested() bool { return c.t.IsCancelRequested() }
