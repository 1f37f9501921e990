package tools

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/user/bookbot/internal/runtime"
	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/internal/view"
)

const appointmentSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "description": "The name of the user"},
		"email": {"type": "string", "description": "The email of the user"},
		"date": {"type": "string", "description": "The date of the appointment, in ISO-8601 format"},
		"time": {"type": "string", "description": "The time of the appointment, in ISO-8601 format"},
		"description": {"type": "string", "description": "The description of the appointment"}
	},
	"required": ["name", "email", "date", "time", "description"]
}`

// ScheduleAppointment books an appointment. The recorded result is the
// appointment with a generated id.
type ScheduleAppointment struct{}

func (ScheduleAppointment) Name() string        { return "scheduleAppointment" }
func (ScheduleAppointment) Description() string { return "Schedule an appointment" }
func (ScheduleAppointment) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"appointment": ` + appointmentSchema + `},
		"required": ["appointment"]
	}`)
}
func (ScheduleAppointment) Placeholder() view.Node { return view.Skeleton(view.KindAppointmentHead) }

func (ScheduleAppointment) Generate(ctx context.Context, call *runtime.Call) iter.Seq[runtime.Step] {
	return func(yield func(runtime.Step) bool) {
		var args struct {
			Appointment view.Appointment `json:"appointment"`
		}
		if err := call.Decode(&args); err != nil {
			yield(failed(err))
			return
		}
		_ = call.Pause(ctx)

		booked := args.Appointment
		booked.ID = types.NewAppointmentID()
		yield(runtime.Step{Final: true, View: view.Card(view.KindAppointment, booked), Result: booked})
	}
}

// ShowAppointmentDetails lists the user's appointments.
type ShowAppointmentDetails struct{}

func (ShowAppointmentDetails) Name() string        { return "showAppointmentDetails" }
func (ShowAppointmentDetails) Description() string { return "Show the details of an appointment." }
func (ShowAppointmentDetails) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"appointment": {"type": "array", "items": ` + appointmentSchema + `}
		},
		"required": ["appointment"]
	}`)
}
func (ShowAppointmentDetails) Placeholder() view.Node { return view.BotCard(view.Spinner()) }

func (ShowAppointmentDetails) Generate(ctx context.Context, call *runtime.Call) iter.Seq[runtime.Step] {
	return func(yield func(runtime.Step) bool) {
		var args AppointmentList
		if err := call.Decode(&args); err != nil {
			yield(failed(err))
			return
		}
		_ = call.Pause(ctx)
		yield(runtime.Step{
			Final:  true,
			View:   view.Card(view.KindAppointments, args.Appointment),
			Result: args,
		})
	}
}

// AppointmentList is the argument and result shape of
// showAppointmentDetails.
type AppointmentList struct {
	Appointment []view.Appointment `json:"appointment"`
}
