package headless

// Op names a driver call recorded in the device event log.
type Op string

const (
	OpCreateFence        Op = "create_fence"
	OpWaitFence          Op = "wait_fence"
	OpFenceBlocked       Op = "fence_blocked"
	OpResetFence         Op = "reset_fence"
	OpDestroyFence       Op = "destroy_fence"
	OpCreateSemaphore    Op = "create_semaphore"
	OpDestroySemaphore   Op = "destroy_semaphore"
	OpCreateCommandPool  Op = "create_command_pool"
	OpResetCommandPool   Op = "reset_command_pool"
	OpDestroyCommandPool Op = "destroy_command_pool"
	OpBeginCommandBuffer Op = "begin_command_buffer"
	OpEndCommandBuffer   Op = "end_command_buffer"
	OpCreateSwapchain    Op = "create_swapchain"
	OpDestroySwapchain   Op = "destroy_swapchain"
	OpCreateImageView    Op = "create_image_view"
	OpDestroyImageView   Op = "destroy_image_view"
	OpCreateRenderPass   Op = "create_render_pass"
	OpDestroyRenderPass  Op = "destroy_render_pass"
	OpCreateFramebuffer  Op = "create_framebuffer"
	OpDestroyFramebuffer Op = "destroy_framebuffer"
	OpCreateBuffer       Op = "create_buffer"
	OpWriteBuffer        Op = "write_buffer"
	OpDestroyBuffer      Op = "destroy_buffer"
	OpAcquire            Op = "acquire"
	OpSubmit             Op = "submit"
	OpRetire             Op = "retire"
	OpPresent            Op = "present"
	OpWaitIdle           Op = "wait_idle"
	OpDestroyDevice      Op = "destroy_device"
)

// Event is one entry of the device log. Handle is the object the call
// operated on; Value carries a call specific detail:
//
//	acquire, present: image index
//	submit: framebuffer of the recorded render pass
//	retire: fence signaled by the retired submission
//	wait_fence: 1 when the wait had to block on pending work
type Event struct {
	Op     Op
	Handle uint64
	Value  uint64
	Result string
}

func (d *Device) record(op Op, handle, value uint64) {
	d.recordResult(op, handle, value, "")
}

func (d *Device) recordResult(op Op, handle, value uint64, result string) {
	d.events = append(d.events, Event{Op: op, Handle: handle, Value: value, Result: result})
	if d.eventLimit > 0 && len(d.events) > d.eventLimit {
		keep := d.eventLimit / 2
		copy(d.events, d.events[len(d.events)-keep:])
		d.events = d.events[:keep]
	}
}

// Events returns a copy of the log.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// EventsOf returns the log entries with the given op.
func (d *Device) EventsOf(op Op) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Event
	for _, e := range d.events {
		if e.Op == op {
			out = append(out, e)
		}
	}
	return out
}

func (d *Device) ClearEvents() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = d.events[:0]
}
