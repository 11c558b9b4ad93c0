package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// Environment 命令运行环境
type Environment struct {
	Stderr io.Writer
	Stdout io.Writer
	Stdin  io.Reader
}

// Globals 全局参数
type Globals struct {
	Config   string `short:"c" type:"path" help:"Path to the config file. Defaults to ./config.yaml or ./config/config.yaml."`
	LogLevel string `help:"Override the configured log level (debug, info, warn, error)."`
}

type CLI struct {
	Globals

	Serve        ServeCmd        `cmd:"" help:"Serves the campaign HTTP API, the event indexer and scheduled jobs."`
	Campaigns    CampaignsCmd    `cmd:"" help:"Lists campaigns, optionally filtered by owner, donator or keyword."`
	Show         ShowCmd         `cmd:"" help:"Shows a campaign's details as seen by a viewer."`
	Quote        QuoteCmd        `cmd:"" help:"Quotes the payment required to buy an amount of campaign tokens."`
	Create       CreateCmd       `cmd:"" help:"Creates a campaign owned by the configured signer."`
	Donate       DonateCmd       `cmd:"" help:"Donates to a campaign by buying tokens."`
	Refund       RefundCmd       `cmd:"" help:"Refunds the signer's donations to a campaign."`
	End          EndCmd          `cmd:"" help:"Ends a campaign."`
	Withdraw     WithdrawCmd     `cmd:"" help:"Withdraws the funds of an ended campaign."`
	Mint         MintCmd         `cmd:"" help:"Mints campaign tokens from the token contract."`
	Transactions TransactionsCmd `cmd:"" help:"Lists recorded transactions."`
}

// exitCode kong 请求退出时携带的退出码
type exitCode int

func newParser(app *CLI, env Environment) (*kong.Kong, error) {
	return kong.New(app,
		kong.Name("tcf"),
		kong.Description("token crowdfunding utils"),
		kong.Writers(env.Stdout, env.Stderr),
		kong.Exit(func(code int) { panic(exitCode(code)) }),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
}

// Run 解析参数并执行命令，返回进程退出码
func Run(env Environment, args []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			c, ok := r.(exitCode)
			if !ok {
				panic(r)
			}
			code = int(c)
		}
	}()

	app := CLI{}

	parser, err := newParser(&app, env)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return 1
	}

	cntx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cntx.BindTo(ctx, (*context.Context)(nil))

	err = cntx.Run(&env, &app.Globals)
	cntx.FatalIfErrorf(err)

	return 0
}

// printJSON 以缩进 JSON 输出结果
func printJSON(w io.Writer, v interface{}) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
