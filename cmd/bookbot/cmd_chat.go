package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/bookbot/internal/gateway"
	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/internal/view"
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("chat", "", "chat id to continue (default: a new chat)")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.gateway.Start(ctx)
	defer a.gateway.Stop()

	chatID := types.NewChatID()
	if id, _ := cmd.Flags().GetString("chat"); id != "" {
		chatID = types.ChatID(id)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render("bookbot")+dimStyle.Render(" chat "+string(chatID)+" · /new starts over, /quit exits"))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, userStyle.Render("you> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			a.gateway.Queue.WaitIdle(10 * time.Second)
			return nil
		case "/new":
			chatID = types.NewChatID()
			fmt.Fprintln(out, dimStyle.Render("New chat "+string(chatID)))
			continue
		}

		key := types.NewSessionKey("cli", string(chatID))
		final, err := submitAndPrint(ctx, out, a.gateway, gateway.NewRun(chatID, key, line))
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("Error: "+err.Error()))
			continue
		}
		p, ok := view.PendingPurchase(final)
		if !ok || !confirm(out, scanner, p) {
			continue
		}
		run := gateway.NewPurchaseRun(chatID, key, gateway.Purchase{Symbol: p.Symbol, Price: p.Price, Amount: p.NumberOfShares})
		if _, err := submitAndPrint(ctx, out, a.gateway, run); err != nil {
			fmt.Fprintln(out, errorStyle.Render("Error: "+err.Error()))
		}
	}
	a.gateway.Queue.WaitIdle(10 * time.Second)
	return scanner.Err()
}

// submitAndPrint submits run and prints its views in order. It returns the
// final node of the last view.
func submitAndPrint(ctx context.Context, out io.Writer, gw *gateway.Gateway, run *gateway.Run) (view.Node, error) {
	views, err := gw.Submit(ctx, run)
	if err != nil {
		return view.Node{}, err
	}
	var final view.Node
	for _, v := range views {
		final = printView(ctx, out, v)
	}
	return final, nil
}

// printView follows v until it closes. Streaming bot text is printed as it
// arrives; everything else is printed once, in its final form.
func printView(ctx context.Context, out io.Writer, v *view.Streamable) view.Node {
	var (
		printed  string
		progress string
		final    view.Node
	)
	for u := range v.Subscribe(ctx) {
		final = u.Value
		n := u.Value
		switch {
		case n.Kind == view.KindSpinnerMessage && !u.Done:
			if t := n.Content(); t != "" && t != progress {
				progress = t
				fmt.Fprintln(out, dimStyle.Render(t))
			}
		case n.Kind == view.KindBotMessage && n.Stream != nil && !u.Done:
			text := n.Content()
			if strings.HasPrefix(text, printed) {
				fmt.Fprint(out, botStyle.Render(text[len(printed):]))
				printed = text
			}
		case u.Done:
			if printed != "" && n.Kind == view.KindBotMessage && strings.HasPrefix(n.Content(), printed) {
				fmt.Fprintln(out, botStyle.Render(n.Content()[len(printed):]))
				continue
			}
			if printed != "" {
				fmt.Fprintln(out)
			}
			rendered, err := renderNode(n)
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
				continue
			}
			if rendered != "" {
				fmt.Fprintln(out, rendered)
			}
		}
	}
	return final
}

func confirm(out io.Writer, scanner *bufio.Scanner, p view.Purchase) bool {
	total := p.Price * float64(p.NumberOfShares)
	fmt.Fprintf(out, "Buy %d $%s for %s? [y/N] ", p.NumberOfShares, p.Symbol, view.FormatNumber(total))
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
