package tools

import (
	"encoding/json"
	"log/slog"

	"github.com/user/bookbot/internal/runtime"
	"github.com/user/bookbot/internal/view"
)

// Default returns a registry with every built-in tool.
func Default() *runtime.Registry {
	r := runtime.NewRegistry()
	for _, t := range []runtime.Tool{
		ListStocks{},
		ShowStockPrice{},
		ShowStockPurchase{},
		GetEvents{},
		ScheduleAppointment{},
		ShowAppointmentDetails{},
	} {
		if err := r.Register(t); err != nil {
			// Built-in names are unique; a failure here is a programming error.
			panic(err)
		}
	}
	return r
}

// Renderer rebuilds a tool's final view from its recorded result. The
// boolean is false when the result cannot be rendered.
type Renderer func(result json.RawMessage) (view.Node, bool)

// Renderers maps tool names to the renderer used when a stored conversation
// is projected back into views.
var Renderers = map[string]Renderer{
	"listStocks": func(result json.RawMessage) (view.Node, bool) {
		var stocks []view.Stock
		if !decode(result, &stocks) {
			return view.Node{}, false
		}
		return view.Card(view.KindStocks, stocks), true
	},
	"showStockPrice": func(result json.RawMessage) (view.Node, bool) {
		var s view.Stock
		if !decode(result, &s) {
			return view.Node{}, false
		}
		return view.Card(view.KindStock, s), true
	},
	"showStockPurchase": func(result json.RawMessage) (view.Node, bool) {
		var p view.Purchase
		if !decode(result, &p) {
			return view.Node{}, false
		}
		if p.Status == "" {
			p.Status = view.PurchaseRequiresAction
		}
		return view.Card(view.KindPurchase, p), true
	},
	"getEvents": func(result json.RawMessage) (view.Node, bool) {
		var events []view.Event
		if !decode(result, &events) {
			return view.Node{}, false
		}
		return view.Card(view.KindEvents, events), true
	},
	"scheduleAppointment": func(result json.RawMessage) (view.Node, bool) {
		var a view.Appointment
		if !decode(result, &a) {
			return view.Node{}, false
		}
		return view.Card(view.KindAppointment, a), true
	},
	"showAppointmentDetails": func(result json.RawMessage) (view.Node, bool) {
		var list AppointmentList
		if !decode(result, &list) {
			return view.Node{}, false
		}
		return view.Card(view.KindAppointments, list.Appointment), true
	},
}

// decode reports whether result holds a value of v's shape. Error results
// ({"error": ...}) from failed calls decode into objects too, so they are
// rejected explicitly.
func decode(result json.RawMessage, v any) bool {
	var probe map[string]json.RawMessage
	if json.Unmarshal(result, &probe) == nil {
		if _, isErr := probe["error"]; isErr && len(probe) == 1 {
			return false
		}
	}
	if err := json.Unmarshal(result, v); err != nil {
		slog.Debug("tool result not renderable", "error", err)
		return false
	}
	return true
}
