package tools

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/user/bookbot/internal/runtime"
	"github.com/user/bookbot/internal/view"
)

// DefaultShares is used when a purchase request omits the share count.
const DefaultShares = 100

// ListStocks shows a table of trending stocks.
type ListStocks struct{}

func (ListStocks) Name() string        { return "listStocks" }
func (ListStocks) Description() string { return "List three imaginary stocks that are trending." }
func (ListStocks) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"stocks": {
				"type": "array",
				"items": ` + stockSchema + `
			}
		},
		"required": ["stocks"]
	}`)
}
func (ListStocks) Placeholder() view.Node { return view.Skeleton(view.KindStocksSkeleton) }

func (ListStocks) Generate(ctx context.Context, call *runtime.Call) iter.Seq[runtime.Step] {
	return func(yield func(runtime.Step) bool) {
		var args struct {
			Stocks []view.Stock `json:"stocks"`
		}
		if err := call.Decode(&args); err != nil {
			yield(failed(err))
			return
		}
		_ = call.Pause(ctx)
		yield(runtime.Step{
			Final:  true,
			View:   view.Card(view.KindStocks, args.Stocks),
			Result: args.Stocks,
		})
	}
}

// ShowStockPrice shows the price and daily change of one stock.
type ShowStockPrice struct{}

func (ShowStockPrice) Name() string { return "showStockPrice" }
func (ShowStockPrice) Description() string {
	return "Get the current stock price of a given stock or currency. Use this to show the price to the user."
}
func (ShowStockPrice) Parameters() json.RawMessage { return json.RawMessage(stockSchema) }
func (ShowStockPrice) Placeholder() view.Node      { return view.Skeleton(view.KindStockSkeleton) }

func (ShowStockPrice) Generate(ctx context.Context, call *runtime.Call) iter.Seq[runtime.Step] {
	return func(yield func(runtime.Step) bool) {
		var s view.Stock
		if err := call.Decode(&s); err != nil {
			yield(failed(err))
			return
		}
		_ = call.Pause(ctx)
		yield(runtime.Step{Final: true, View: view.Card(view.KindStock, s), Result: s})
	}
}

// ShowStockPurchase shows a purchase card the user can confirm. Share
// counts outside 1..MaxShares are a business rejection: the result is
// recorded as expired and the model is told the amount was invalid.
type ShowStockPurchase struct{}

func (ShowStockPurchase) Name() string { return "showStockPurchase" }
func (ShowStockPurchase) Description() string {
	return "Show price and the UI to purchase a stock or currency. Use this if the user wants to purchase a stock or currency."
}
func (ShowStockPurchase) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string", "description": "The name or symbol of the stock or currency. e.g. DOGE/AAPL/USD."},
			"price": {"type": "number", "description": "The price of the stock."},
			"numberOfShares": {"type": "integer", "description": "The **number of shares** for a stock or currency to purchase. Can be optional if the user did not specify it."}
		},
		"required": ["symbol", "price"]
	}`)
}
func (ShowStockPurchase) Placeholder() view.Node { return view.Node{} }

func (ShowStockPurchase) Generate(ctx context.Context, call *runtime.Call) iter.Seq[runtime.Step] {
	return func(yield func(runtime.Step) bool) {
		var args struct {
			Symbol         string  `json:"symbol"`
			Price          float64 `json:"price"`
			NumberOfShares *int    `json:"numberOfShares"`
		}
		if err := call.Decode(&args); err != nil {
			yield(failed(err))
			return
		}
		p := view.Purchase{Symbol: args.Symbol, Price: args.Price, NumberOfShares: DefaultShares}
		if args.NumberOfShares != nil {
			p.NumberOfShares = *args.NumberOfShares
		}

		if p.NumberOfShares <= 0 || p.NumberOfShares > runtime.MaxShares {
			p.Status = view.PurchaseExpired
			yield(runtime.Step{
				Final:  true,
				View:   view.BotMessage("Invalid amount"),
				Result: p,
				Notes:  []string{"[User has selected an invalid amount]"},
			})
			return
		}

		card := p
		card.Status = view.PurchaseRequiresAction
		yield(runtime.Step{Final: true, View: view.Card(view.KindPurchase, card), Result: p})
	}
}

// GetEvents shows recent events for a stock.
type GetEvents struct{}

func (GetEvents) Name() string { return "getEvents" }
func (GetEvents) Description() string {
	return "List funny imaginary events between user highlighted dates that describe stock activity."
}
func (GetEvents) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"events": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"date": {"type": "string", "description": "The date of the event, in ISO-8601 format"},
						"headline": {"type": "string", "description": "The headline of the event"},
						"description": {"type": "string", "description": "The description of the event"}
					},
					"required": ["date", "headline", "description"]
				}
			}
		},
		"required": ["events"]
	}`)
}
func (GetEvents) Placeholder() view.Node { return view.Skeleton(view.KindEventsSkeleton) }

func (GetEvents) Generate(ctx context.Context, call *runtime.Call) iter.Seq[runtime.Step] {
	return func(yield func(runtime.Step) bool) {
		var args struct {
			Events []view.Event `json:"events"`
		}
		if err := call.Decode(&args); err != nil {
			yield(failed(err))
			return
		}
		_ = call.Pause(ctx)
		yield(runtime.Step{Final: true, View: view.Card(view.KindEvents, args.Events), Result: args.Events})
	}
}

const stockSchema = `{
	"type": "object",
	"properties": {
		"symbol": {"type": "string", "description": "The name or symbol of the stock or currency. e.g. DOGE/AAPL/USD."},
		"price": {"type": "number", "description": "The price of the stock."},
		"delta": {"type": "number", "description": "The change in price of the stock"}
	},
	"required": ["symbol", "price", "delta"]
}`

// failed is the final step of a body that could not decode its input.
func failed(err error) runtime.Step {
	return runtime.Step{
		Final:  true,
		View:   view.ErrorMessage("Something went wrong. Please try again."),
		Result: map[string]string{"error": err.Error()},
	}
}
